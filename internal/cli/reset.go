package cli

import (
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"daily-trivia-service/internal/config"
	pgstore "daily-trivia-service/internal/infra/postgres"
)

// NewResetCmd wipes one player's attempt, answers, and daily score for a
// quiz. Development tool only; production flow never deletes.
func NewResetCmd(configPath *string) *cobra.Command {
	var playerID, quizID string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete a player's attempt for a quiz (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if playerID == "" || quizID == "" {
				return fmt.Errorf("--player and --quiz are required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := pgstore.NewAttemptStore(pool)
			if err := store.ResetAttempt(cmd.Context(), playerID, quizID); err != nil {
				return err
			}
			log.Printf("reset attempt for player %s on quiz %s", playerID, quizID)
			return nil
		},
	}

	cmd.Flags().StringVar(&playerID, "player", "", "player id to reset")
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id to reset")
	return cmd
}
