package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/eligibility"
)

// NewEligibilityCmd prints a user's eligibility and attempt history for a quiz.
func NewEligibilityCmd(configPath *string) *cobra.Command {
	var userID, quizID string
	cmd := &cobra.Command{
		Use:   "eligibility",
		Short: "Evaluate whether a user may start a quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			b, err := openBackends(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			service := app.NewSessionService(b.sessions, b.quizzes, b.ledger, b.events,
				app.WithLogger(logger),
				app.WithPolicy(eligibility.Policy{AllowRetakeAfterPass: cfg.Session.AllowRetakeAfterPass}),
			)
			decision, err := service.Eligibility(cmd.Context(), userID, quizID)
			if err != nil {
				return err
			}
			history, err := service.History(cmd.Context(), userID, quizID)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(map[string]any{"eligibility": decision, "attempts": history}, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}
