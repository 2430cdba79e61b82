package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type schemaMigration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Name      string    `bun:"name,pk"`
	AppliedAt time.Time `bun:"applied_at,notnull"`
}

// Migrate applies the "-- +goose Up" section of every *.sql file in fsys, in
// name order, skipping files already recorded in schema_migrations. It
// returns the names applied by this call.
func Migrate(ctx context.Context, db *bun.DB, fsys fs.FS, log *slog.Logger) ([]string, error) {
	if log == nil {
		log = slog.Default()
	}

	if _, err := db.NewCreateTable().Model((*schemaMigration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := migrationNames(fsys)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return applied, fmt.Errorf("%s: %w", name, err)
		}

		ran := false
		err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			exists, err := tx.NewSelect().Model((*schemaMigration)(nil)).Where("name = ?", name).Exists(ctx)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			for _, stmt := range splitSQLStatements(upSQL) {
				if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
					return err
				}
			}
			_, err = tx.NewInsert().Model(&schemaMigration{Name: name, AppliedAt: time.Now().UTC()}).Exec(ctx)
			ran = err == nil
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		if ran {
			log.Info("migration applied", slog.String("name", name))
			applied = append(applied, name)
		}
	}
	return applied, nil
}

func migrationNames(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := strings.TrimLeft(sql[upIdx+len(upMarker):], "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
