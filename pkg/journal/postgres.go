package journal

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres stores entries in the turns table.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects, verifies the connection and applies pending migrations.
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("journal: migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("journal: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("journal: migrate up: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO turns (session_id, turn_index, transcript, script, output, summary,
			code_model, answer_model, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, turn_index) DO NOTHING`,
		e.SessionID, e.Turn, e.Transcript, e.Script, e.Output, e.Summary,
		e.CodeModel, e.AnswerModel, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("journal: insert turn: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
		SELECT session_id::text, turn_index, transcript, script, output, summary,
			code_model, answer_model, started_at, finished_at
		FROM turns
		ORDER BY finished_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query turns: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SessionID, &e.Turn, &e.Transcript, &e.Script, &e.Output, &e.Summary,
			&e.CodeModel, &e.AnswerModel, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("journal: scan turn: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: read turns: %w", err)
	}
	return out, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
