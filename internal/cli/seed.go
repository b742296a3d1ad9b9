package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-session-service/internal/infra/memory"
	pgstore "quiz-session-service/internal/infra/postgres"
)

// NewSeedCmd loads a YAML quiz catalog into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var catalog string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Validate a YAML quiz catalog and upsert it into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if catalog == "" {
				catalog = cfg.Quiz.CatalogPath
			}
			if catalog == "" {
				return fmt.Errorf("no catalog given: pass --catalog or set quiz.catalog_path")
			}
			quizzes, err := memory.LoadCatalogFile(catalog)
			if err != nil {
				return err
			}
			if err := runMigrations(cmd.Context(), cfg, logger); err != nil {
				return err
			}

			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			loader := pgstore.NewQuizLoader(pool)
			for _, quiz := range quizzes {
				if err := loader.SaveQuiz(cmd.Context(), quiz); err != nil {
					return err
				}
				logger.Info("quiz seeded", zap.String("quiz_id", quiz.ID), zap.Int("questions", len(quiz.Questions)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "", "YAML catalog file (defaults to quiz.catalog_path)")
	return cmd
}
