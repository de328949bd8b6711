package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/config"
	"github.com/trackwise/assistant/internal/database"
	"github.com/trackwise/assistant/internal/queue"
	"github.com/trackwise/assistant/internal/services/ai"
	"github.com/trackwise/assistant/internal/services/retrieval"
	"github.com/trackwise/assistant/internal/session"
)

// NewTestCmd creates the connectivity test command
func NewTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connectivity to every dependency",
		Long:  "Probe the database, Redis, RabbitMQ, the retrieval backend and the fallback classifier.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			failures := 0

			fmt.Println("Testing database...")
			if db, err := database.New(cfg.DatabaseURL); err != nil {
				failures++
				fmt.Printf("✗ database: %v\n", err)
			} else {
				fmt.Println("✓ database reachable")
				_ = db.Close()
			}

			fmt.Println("Testing Redis...")
			if store, err := session.NewRedisStore(cfg.RedisURL, session.DefaultConfig()); err != nil {
				failures++
				fmt.Printf("✗ redis: %v\n", err)
			} else {
				fmt.Println("✓ redis reachable")
				_ = store.Close()
			}

			if cfg.RabbitMQURL != "" {
				fmt.Println("Testing RabbitMQ...")
				if q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zap.NewNop()); err != nil {
					failures++
					fmt.Printf("✗ rabbitmq: %v\n", err)
				} else {
					fmt.Println("✓ rabbitmq reachable")
					_ = q.Close()
				}
			} else {
				fmt.Println("- rabbitmq not configured, skipping")
			}

			fmt.Println("Testing retrieval backend...")
			backend := retrieval.NewHTTPClient(cfg.RetrievalURL, cfg.RetrievalTimeout, zap.NewNop())
			if err := backend.Ping(ctx); err != nil {
				failures++
				fmt.Printf("✗ retrieval: %v\n", err)
			} else {
				fmt.Println("✓ retrieval backend reachable")
			}

			if cfg.OpenAIKey != "" {
				fmt.Println("Testing fallback classifier...")
				provider := ai.NewOpenAIProviderWithLogger(
					cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, cfg.FallbackTimeout, zap.NewNop(), false)
				if err := provider.Ping(ctx); err != nil {
					failures++
					fmt.Printf("✗ fallback: %v\n", err)
				} else {
					fmt.Println("✓ fallback classifier reachable")
				}
			} else {
				fmt.Println("- fallback classifier not configured, skipping")
			}

			if failures > 0 {
				return fmt.Errorf("%d dependency check(s) failed", failures)
			}
			fmt.Println("\nAll configured dependencies reachable.")
			return nil
		},
	}
}
