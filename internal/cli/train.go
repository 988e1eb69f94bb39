package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srv328/coffee-classification/internal/classifier"
)

func newTrainCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Retrain the model from the knowledge base and save the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()
			defer logger.Sync()

			model := newClassifier(cfg, db, logger)
			run, err := model.Retrain(cmd.Context(), classifier.TriggerManual)
			if err != nil {
				return fmt.Errorf("training failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %s\n", run.ID, run.Status)
			fmt.Fprintf(out, "samples %d, features %d, classes %d\n", run.SampleCount, run.FeatureWidth, run.ClassCount)
			fmt.Fprintf(out, "train loss %.4f, accuracy %.4f\n", run.TrainLoss, run.TrainAccuracy)
			if run.ValidationAccuracy > 0 || run.ValidationLoss > 0 {
				fmt.Fprintf(out, "validation loss %.4f, accuracy %.4f\n", run.ValidationLoss, run.ValidationAccuracy)
			}
			fmt.Fprintf(out, "artifact written to %s\n", cfg.Model.ArtifactPath)
			return nil
		},
	}
}
