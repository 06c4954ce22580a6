package character

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps characters in the characters table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresPool creates a pgx connection pool and verifies it with a ping.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates a store on pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Info("applied migration", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

const selectColumns = `id, name, role, personality, voice_type, style`

func scanCharacter(row pgx.Row) (types.Character, error) {
	var c types.Character
	var voice string
	if err := row.Scan(&c.ID, &c.Name, &c.Role, &c.Personality, &voice, &c.Style); err != nil {
		return types.Character{}, err
	}
	c.VoiceType = types.VoiceType(voice)
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]types.Character, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM characters ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	out := []types.Character{}
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (types.Character, error) {
	c, err := scanCharacter(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM characters WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Character{}, notFound(id)
	}
	if err != nil {
		return types.Character{}, fmt.Errorf("get character: %w", err)
	}
	return c, nil
}

// Save has the same create, merge and insert semantics as MemoryStore.Save.
// The merge runs under a row lock.
func (s *PostgresStore) Save(ctx context.Context, c types.Character) (types.Character, error) {
	if c.ID == "" {
		c.ID = NewID()
		if err := validate(c); err != nil {
			return types.Character{}, err
		}
		if err := s.insert(ctx, s.pool, c); err != nil {
			return types.Character{}, err
		}
		return c, nil
	}

	var saved types.Character
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		existing, err := scanCharacter(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM characters WHERE id = $1 FOR UPDATE`, c.ID))
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if err := validate(c); err != nil {
				return err
			}
			saved = c
			return s.insert(ctx, tx, c)
		case err != nil:
			return fmt.Errorf("load character: %w", err)
		}

		merged := Merge(existing, c)
		if err := validate(merged); err != nil {
			return err
		}
		const query = `UPDATE characters SET name = $2, role = $3, personality = $4, voice_type = $5, style = $6, updated_at = NOW()
			WHERE id = $1`
		if _, err := tx.Exec(ctx, query, merged.ID, merged.Name, merged.Role, merged.Personality, string(merged.VoiceType), merged.Style); err != nil {
			return fmt.Errorf("update character: %w", err)
		}
		saved = merged
		return nil
	})
	if err != nil {
		return types.Character{}, err
	}
	return saved, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) insert(ctx context.Context, db execer, c types.Character) error {
	const query = `INSERT INTO characters (id, name, role, personality, voice_type, style)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := db.Exec(ctx, query, c.ID, c.Name, c.Role, c.Personality, string(c.VoiceType), c.Style); err != nil {
		return fmt.Errorf("insert character: %w", err)
	}
	return nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM characters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete character: %w", err)
	}
	return nil
}
