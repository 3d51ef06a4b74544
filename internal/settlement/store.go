package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"susmarket/internal/domain"
	"susmarket/internal/settlement/migrations"
)

// Store persists match results and market resolutions in SQLite
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the database at path and applies the embedded migrations
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordMatch stores a finished match and its resolved markets. Recording
// the same match or market twice keeps the first write.
func (s *Store) RecordMatch(ctx context.Context, r Result) error {
	if r.MatchID == "" || r.Code == "" {
		return fmt.Errorf("%w: match id and code are required", ErrInvalidResult)
	}
	if !r.Winner.Valid() {
		return fmt.Errorf("%w: winner %q", ErrInvalidResult, r.Winner)
	}
	for _, m := range r.Markets {
		if !m.IsResolved() {
			return fmt.Errorf("%w: market %s is %s", ErrInvalidResult, m.ID, m.Status)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record match: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	endedAt := toMillis(r.EndedAt)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO matches (id, code, winner, imposter, final_price, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		r.MatchID, r.Code, string(r.Winner), r.Imposter, r.FinalPrice.String(), endedAt,
	); err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	for _, m := range r.Markets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO resolutions (market_id, match_id, question, kind, outcome, resolved_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (market_id) DO NOTHING`,
			m.ID, r.MatchID, m.Question, string(m.Kind), outcomeValue(m.Resolved), endedAt,
		); err != nil {
			return fmt.Errorf("insert resolution %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record match: %w", err)
	}
	return nil
}

// ListResolutions returns the markets of one match in creation order
func (s *Store) ListResolutions(ctx context.Context, matchID string) ([]Resolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT market_id, match_id, question, kind, outcome, resolved_at, settled_at
		 FROM resolutions WHERE match_id = ? ORDER BY rowid`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list resolutions: %w", err)
	}
	defer rows.Close()

	out := []Resolution{}
	for rows.Next() {
		var (
			r          Resolution
			kind       string
			outcome    sql.NullString
			resolvedAt int64
			settledAt  sql.NullInt64
		)
		if err := rows.Scan(&r.MarketID, &r.MatchID, &r.Question, &kind, &outcome, &resolvedAt, &settledAt); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		r.Kind = domain.MarketKind(kind)
		r.Outcome = domain.Outcome(outcome.String)
		r.ResolvedAt = fromMillis(resolvedAt)
		if settledAt.Valid {
			t := fromMillis(settledAt.Int64)
			r.SettledAt = &t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resolutions: %w", err)
	}
	return out, nil
}

// ListMatches returns the matches played under a code, newest first, each
// with its resolutions
func (s *Store) ListMatches(ctx context.Context, code string, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, winner, imposter, final_price, ended_at
		 FROM matches WHERE code = ? ORDER BY ended_at DESC, rowid DESC LIMIT ?`,
		code, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	var records []MatchRecord
	for rows.Next() {
		var (
			m       MatchRecord
			winner  string
			price   string
			endedAt int64
		)
		if err := rows.Scan(&m.ID, &m.Code, &winner, &m.Imposter, &price, &endedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Winner = domain.Winner(winner)
		m.EndedAt = fromMillis(endedAt)
		if m.FinalPrice, err = decimal.NewFromString(price); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse final price %q: %w", price, err)
		}
		records = append(records, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	rows.Close()

	for i := range records {
		if records[i].Resolutions, err = s.ListResolutions(ctx, records[i].ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// MarkSettled stamps a resolution as paid out
func (s *Store) MarkSettled(ctx context.Context, marketID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE resolutions SET settled_at = ? WHERE market_id = ? AND settled_at IS NULL`,
		toMillis(at), marketID,
	)
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM resolutions WHERE market_id = ?`, marketID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup resolution: %w", err)
	}
	return ErrAlreadySettled
}

// void outcomes are stored as NULL
func outcomeValue(o domain.Outcome) any {
	if o == domain.OutcomeNone {
		return nil
	}
	return string(o)
}
