package main

import (
	"os"

	"github.com/srv328/coffee-classification/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
