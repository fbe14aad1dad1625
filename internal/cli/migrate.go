package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"study-room-service/internal/config"
	"study-room-service/internal/domain"
	"study-room-service/internal/infra/postgres"
	pgmigrations "study-room-service/internal/infra/postgres/migrations"
)

// NewMigrateCmd applies database migrations and optionally seeds question content.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			if seed == "" {
				return nil
			}
			return seedQuestions(cmd.Context(), cfg, seed)
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", `JSON file of questions to load, or "sample" for the built-in bank`)
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Printf("no new migrations")
		return nil
	}
	log.Printf("migrations applied: %s", group)
	return nil
}

func seedQuestions(ctx context.Context, cfg config.Config, source string) error {
	var (
		questions []domain.Question
		err       error
	)
	if source == "sample" {
		questions, err = loadSampleQuestions()
	} else {
		questions, err = loadQuestionsFile(source)
	}
	if err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewContentStore(pool).SaveQuestions(ctx, questions); err != nil {
		return err
	}
	log.Printf("seeded %d questions from %s", len(questions), source)
	return nil
}
