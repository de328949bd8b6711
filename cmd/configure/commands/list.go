package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trackwise/assistant/internal/config"
	"github.com/trackwise/assistant/internal/database"
)

// NewListCmd creates the list command showing the effective configuration:
// environment values plus any stored tuning override.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the effective assistant configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			fmt.Println("Environment configuration:")
			fmt.Printf("  Server port:        %s\n", cfg.ServerPort)
			fmt.Printf("  Retrieval URL:      %s\n", cfg.RetrievalURL)
			fmt.Printf("  Redis URL:          %s\n", cfg.RedisURL)
			fmt.Printf("  RabbitMQ:           %s\n", presence(cfg.RabbitMQURL))
			fmt.Printf("  Fallback model:     %s\n", cfg.AIModel)
			fmt.Printf("  Fallback API key:   %s\n", presence(cfg.OpenAIKey))
			fmt.Printf("  JWKS URL:           %s\n", cfg.JWKSURL)
			fmt.Printf("  Session TTL:        %s\n", cfg.SessionTTL)
			fmt.Printf("  Max query chars:    %d\n", cfg.MaxQueryChars)
			fmt.Printf("  Rate minute/burst:  %d/%d\n", cfg.MinuteBase, cfg.MinuteBurst)
			fmt.Printf("  Rate hour:          %d\n", cfg.HourCapacity)
			fmt.Printf("  Fallback threshold: %.2f\n", cfg.FallbackThreshold)

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			tuning, err := database.NewTuningConfigRepository(db).Get(context.Background())
			if err != nil {
				return fmt.Errorf("get tuning config: %w", err)
			}
			if tuning == nil {
				fmt.Println("\nNo stored tuning override; the values above are effective.")
				return nil
			}
			fmt.Println("\nStored tuning override (takes precedence at startup):")
			fmt.Printf("  Fallback threshold: %.2f\n", tuning.FallbackThreshold)
			fmt.Printf("  Entity bonus:       %.2f\n", tuning.EntityBonus)
			fmt.Printf("  Continuity bonus:   %.2f\n", tuning.ContinuityBonus)
			fmt.Printf("  Complex word count: %d\n", tuning.ComplexWordCount)
			fmt.Printf("  Rate minute/burst:  %d/%d\n", tuning.MinuteBase, tuning.MinuteBurst)
			fmt.Printf("  Rate hour:          %d\n", tuning.HourCapacity)
			return nil
		},
	}
}

func presence(value string) string {
	if value == "" {
		return "(not set)"
	}
	return "(configured)"
}
