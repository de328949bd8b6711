// Package commands holds the subcommands of the configuration CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trackwise/assistant/internal/config"
	"github.com/trackwise/assistant/internal/database"
	"github.com/trackwise/assistant/internal/models"
)

// NewTuningCmd creates the tuning command with list and set subcommands.
// Stored tuning overrides the environment defaults at server startup.
func NewTuningCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tuning",
		Short: "Manage classifier and rate limit tuning",
		Long:  "List or update classifier weights and per-user rate limit capacities. Stored in database.",
	}
	cmd.AddCommand(newTuningListCmd())
	cmd.AddCommand(newTuningSetCmd())
	return cmd
}

func openTuningRepo() (*database.TuningConfigRepository, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return database.NewTuningConfigRepository(db), func() { _ = db.Close() }, nil
}

func newTuningListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current tuning configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := openTuningRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			c, err := repo.Get(context.Background())
			if err != nil {
				return fmt.Errorf("get tuning config: %w", err)
			}
			if c == nil {
				fmt.Println("No tuning configuration in database; the server uses environment defaults.")
				return nil
			}
			fmt.Println("Tuning configuration:")
			fmt.Printf("  Fallback threshold:  %.2f\n", c.FallbackThreshold)
			fmt.Printf("  Entity bonus:        %.2f\n", c.EntityBonus)
			fmt.Printf("  Continuity bonus:    %.2f\n", c.ContinuityBonus)
			fmt.Printf("  Complex word count:  %d\n", c.ComplexWordCount)
			fmt.Printf("  Minute base/burst:   %d/%d\n", c.MinuteBase, c.MinuteBurst)
			fmt.Printf("  Hour capacity:       %d\n", c.HourCapacity)
			fmt.Printf("  Updated:             %s\n", c.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newTuningSetCmd() *cobra.Command {
	c := &models.TuningConfig{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set tuning configuration",
		Long:  "Update classifier weights and rate limit capacities. Takes effect on server restart.",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := openTuningRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := repo.Set(context.Background(), c); err != nil {
				return fmt.Errorf("set tuning config: %w", err)
			}
			fmt.Println("Tuning configuration updated. Restart the server to apply.")
			return nil
		},
	}
	cmd.Flags().Float64Var(&c.FallbackThreshold, "fallback-threshold", 0.7, "Confidence below which the generative fallback runs [0,1]")
	cmd.Flags().Float64Var(&c.EntityBonus, "entity-bonus", 0.2, "Confidence bonus when an entity is extracted")
	cmd.Flags().Float64Var(&c.ContinuityBonus, "continuity-bonus", 0.1, "Confidence bonus when the intent repeats the previous turn")
	cmd.Flags().IntVar(&c.ComplexWordCount, "complex-words", 25, "Word count above which a query counts as complex")
	cmd.Flags().IntVar(&c.MinuteBase, "minute-base", 60, "Per-user requests per minute")
	cmd.Flags().IntVar(&c.MinuteBurst, "minute-burst", 10, "Per-user burst allowance on top of the minute base")
	cmd.Flags().IntVar(&c.HourCapacity, "hour-capacity", 1000, "Per-user requests per hour")
	return cmd
}
