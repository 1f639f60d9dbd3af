// Package history keeps a log of predictions in Postgres.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/Brownie44l1/letter-api/internal/pipeline"
)

type Entry struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Confidences map[string]string `json:"confidences"`
	DurationMS  int64             `json:"duration_ms"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Repo struct{ DB *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{DB: db} }

// Open connects with the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

func (r *Repo) Migrate(ctx context.Context) error {
	const q = `
create table if not exists predictions (
	id          uuid primary key,
	label       text not null,
	confidences jsonb not null,
	duration_ms bigint not null,
	created_at  timestamptz not null default now()
)`
	_, err := r.DB.ExecContext(ctx, q)
	return err
}

// Record stores a finished prediction. It satisfies pipeline.Recorder.
func (r *Repo) Record(ctx context.Context, res pipeline.Result) error {
	js, err := json.Marshal(res.Confidences)
	if err != nil {
		return err
	}
	const q = `
insert into predictions(id, label, confidences, duration_ms)
values ($1,$2,$3,$4)
on conflict (id) do nothing`
	_, err = r.DB.ExecContext(ctx, q, res.ID, res.Label, js, res.Duration.Milliseconds())
	return err
}

// Recent returns up to limit predictions, newest first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `select id, label, confidences, duration_ms, created_at
	           from predictions
	           order by created_at desc
	           limit $1`
	rows, err := r.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			js []byte
		)
		if err := rows.Scan(&e.ID, &e.Label, &js, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(js, &e.Confidences); err != nil {
			return nil, fmt.Errorf("prediction %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
