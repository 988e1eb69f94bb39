package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srv328/coffee-classification/internal/apiclient"
	"github.com/srv328/coffee-classification/internal/service"
)

func newClassifyCommand() *cobra.Command {
	var (
		serverURL   string
		method      string
		numeric     []string
		categorical []string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a sample against a running server",
		Example: `  coffeeclass classify --method strict -n acidity=7.5 -k roast=dark
  coffeeclass classify --method learned -n 1=7.5 -k 2=dark`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseSample(numeric, categorical)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			client := apiclient.NewClient(serverURL)
			var result any
			switch strings.ToLower(method) {
			case service.MethodStrict:
				result, err = client.ClassifyStrict(ctx, in)
			case service.MethodStatistical:
				result, err = client.ClassifyStatistical(ctx, in)
			case service.MethodLearned:
				result, err = client.ClassifyLearned(ctx, in)
			default:
				return fmt.Errorf("unknown method %q (want strict, statistical or learned)", method)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Server base URL")
	cmd.Flags().StringVarP(&method, "method", "m", service.MethodStatistical, "strict, statistical or learned")
	cmd.Flags().StringArrayVarP(&numeric, "numeric", "n", nil, "Numeric characteristic as key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&categorical, "categorical", "k", nil, "Categorical characteristic as key=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall request timeout")

	cmd.AddCommand(newStatusCommand(&serverURL))
	return cmd
}

func newStatusCommand(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server's model status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiclient.NewClient(*serverURL)
			if err := client.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("server is not healthy: %w", err)
			}
			status, err := client.ModelStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state: %s\n", status.State)
			if status.RunID != "" {
				fmt.Fprintf(out, "run: %s\n", status.RunID)
			}
			if status.TrainedAt != nil {
				fmt.Fprintf(out, "trained at: %s\n", status.TrainedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "classes: %d, features: %d\n", status.ClassCount, status.FeatureWidth)
			if status.LastError != "" {
				fmt.Fprintf(out, "last error: %s\n", status.LastError)
			}
			return nil
		},
	}
}

// parseSample turns repeated key=value flags into a classification input.
func parseSample(numeric, categorical []string) (service.RawInput, error) {
	in := service.RawInput{
		Numeric:     make(map[string]service.NumericValue, len(numeric)),
		Categorical: make(map[string]string, len(categorical)),
	}
	for _, kv := range numeric {
		key, value, err := splitPair(kv)
		if err != nil {
			return in, err
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return in, fmt.Errorf("numeric %q: %q is not a number", key, value)
		}
		in.Numeric[key] = service.NumericValue(f)
	}
	for _, kv := range categorical {
		key, value, err := splitPair(kv)
		if err != nil {
			return in, err
		}
		in.Categorical[key] = value
	}
	return in, nil
}

func splitPair(kv string) (string, string, error) {
	key, value, ok := strings.Cut(kv, "=")
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", kv)
	}
	return key, value, nil
}
