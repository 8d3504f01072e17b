package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/altss/altss/internal/platform/db"
	"github.com/altss/altss/internal/savedsearch"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/migrations"
)

const schemaTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     TEXT PRIMARY KEY,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func newDBCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{Use: "db", Short: "Manage the Postgres schema"}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("PG_DSN"), "postgres connection string")

	connect := func(ctx context.Context) (*pgxpool.Pool, error) {
		if dsn == "" {
			return nil, errors.New("--dsn or PG_DSN is required")
		}
		return db.New(ctx, dsn, db.PoolOptions{MaxConns: 2})
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := applyMigrations(cmd.Context(), pool)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			}
			return nil
		},
	}

	var user string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo saved searches and activity for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			n, err := seedDemo(cmd.Context(), savedsearch.NewRepository(pool), shared.NewAuditLogger(pool), user, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d saved searches for %s\n", n, user)
			return nil
		},
	}
	seed.Flags().StringVar(&user, "user", "", "account id that owns the demo data")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune-keys",
		Short: "Delete expired bulk enrichment idempotency keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			n, err := shared.NewIdempotencyStore(pool).Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d keys\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour, "age of keys to delete")

	cmd.AddCommand(migrate, seed, prune)
	return cmd
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	names, bodies, err := migrations.Up()
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	var applied []string
	for _, name := range names {
		version := migrations.Version(name)
		err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := tx.Exec(ctx, bodies[name]); err != nil {
				return err
			}
			applied = append(applied, name)
			return nil
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return applied, nil
}

type searchInserter interface {
	Insert(ctx context.Context, s savedsearch.SavedSearch) error
}

type activityRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

var demoSearches = []struct {
	name   string
	filter savedsearch.Filter
}{
	{"Single family offices", savedsearch.Filter{FirmTypes: []string{"single_family_office"}}},
	{"Multi family offices in London", savedsearch.Filter{FirmTypes: []string{"multi_family_office"}, SearchQuery: "london"}},
	{"Venture-focused", savedsearch.Filter{SearchQuery: "venture"}},
}

func seedDemo(ctx context.Context, searches searchInserter, activity activityRecorder, user string, now time.Time) (int, error) {
	for i, demo := range demoSearches {
		s := savedsearch.SavedSearch{
			ID:        uuid.New(),
			OwnerID:   user,
			Name:      demo.name,
			Filter:    demo.filter,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}
		if err := searches.Insert(ctx, s); err != nil {
			return i, fmt.Errorf("seed %q: %w", demo.name, err)
		}
		err := activity.Record(ctx, shared.AuditLog{
			ActorID:  user,
			Action:   "saved_search.create",
			Entity:   "saved_search",
			EntityID: s.ID.String(),
			Meta:     map[string]any{"name": s.Name, "source": "seed"},
			At:       s.CreatedAt,
		})
		if err != nil {
			return i + 1, fmt.Errorf("record seed activity: %w", err)
		}
	}
	return len(demoSearches), nil
}
