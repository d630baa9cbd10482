package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/phonebridge/internal/store"
	"github.com/MrWong99/phonebridge/internal/transcript"
)

// Store implements [store.Store] on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Save implements [store.Store]. The call row and its entries are replaced in
// one transaction.
func (s *Store) Save(ctx context.Context, rec store.Record) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const upsert = `
			INSERT INTO calls (call_id, stream_id, mode, status, started_at, ended_at, caller_bytes, summary)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (call_id) DO UPDATE SET
			    stream_id = EXCLUDED.stream_id, mode = EXCLUDED.mode, status = EXCLUDED.status,
			    started_at = EXCLUDED.started_at, ended_at = EXCLUDED.ended_at,
			    caller_bytes = EXCLUDED.caller_bytes, summary = EXCLUDED.summary`
		if _, err := tx.Exec(ctx, upsert,
			rec.CallID, rec.StreamID, string(rec.Mode), string(rec.Status),
			rec.StartedAt, rec.EndedAt, rec.CallerBytes, rec.Summary,
		); err != nil {
			return fmt.Errorf("postgres store: save call: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM call_entries WHERE call_id = $1`, rec.CallID); err != nil {
			return fmt.Errorf("postgres store: clear entries: %w", err)
		}

		rows := make([][]any, 0, len(rec.Entries))
		for _, e := range rec.Entries {
			var at *time.Time
			if !e.Timestamp.IsZero() {
				ts := e.Timestamp
				at = &ts
			}
			rows = append(rows, []any{rec.CallID, e.Ordinal, e.Position, int64(e.Seq), string(e.Speaker), e.Text, at})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"call_entries"},
			[]string{"call_id", "ordinal", "position", "seq", "speaker", "text", "spoken_at"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("postgres store: write entries: %w", err)
		}
		return nil
	})
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, callID string) (store.Record, error) {
	const q = `
		SELECT call_id, stream_id, mode, status, started_at, ended_at, caller_bytes, summary
		FROM   calls
		WHERE  call_id = $1`
	rows, err := s.pool.Query(ctx, q, callID)
	if err != nil {
		return store.Record{}, fmt.Errorf("postgres store: get: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("postgres store: get: %w", err)
	}
	if rec.Entries, err = s.entries(ctx, callID); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// List implements [store.Store].
func (s *Store) List(ctx context.Context, limit int) ([]store.Record, error) {
	q := `
		SELECT call_id, stream_id, mode, status, started_at, ended_at, caller_bytes, summary
		FROM   calls
		ORDER  BY ended_at DESC, call_id`
	var args []any
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	for i := range recs {
		if recs[i].Entries, err = s.entries(ctx, recs[i].CallID); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *Store) entries(ctx context.Context, callID string) ([]transcript.Entry, error) {
	const q = `
		SELECT speaker, text, ordinal, position, seq, spoken_at
		FROM   call_entries
		WHERE  call_id = $1
		ORDER  BY ordinal, position, seq`
	rows, err := s.pool.Query(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Entry, error) {
		var (
			e       transcript.Entry
			speaker string
			seq     int64
			at      *time.Time
		)
		if err := row.Scan(&speaker, &e.Text, &e.Ordinal, &e.Position, &seq, &at); err != nil {
			return transcript.Entry{}, err
		}
		e.Speaker = transcript.Speaker(speaker)
		e.Seq = uint64(seq)
		if at != nil {
			e.Timestamp = *at
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan entries: %w", err)
	}
	return entries, nil
}

func scanRecord(row pgx.CollectableRow) (store.Record, error) {
	var (
		r            store.Record
		mode, status string
		callerBytes  int64
	)
	if err := row.Scan(&r.CallID, &r.StreamID, &mode, &status, &r.StartedAt, &r.EndedAt, &callerBytes, &r.Summary); err != nil {
		return store.Record{}, err
	}
	r.Mode = transcript.Mode(mode)
	r.Status = store.Status(status)
	r.CallerBytes = int(callerBytes)
	return r, nil
}
