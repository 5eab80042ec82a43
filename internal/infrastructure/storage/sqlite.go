package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists contract listings so the instrument catalog can
// warm-start when the venue is unreachable.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `CREATE TABLE IF NOT EXISTS instruments (
		symbol TEXT PRIMARY KEY,
		underlying TEXT NOT NULL,
		expiry TEXT NOT NULL DEFAULT '',
		is_perpetual BOOLEAN NOT NULL DEFAULT 0
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to exec query %s: %w", query, err)
	}
	return nil
}

// ReplaceInstruments swaps the stored listings for the given set in one
// transaction.
func (s *SQLiteStore) ReplaceInstruments(ctx context.Context, instruments []domain.Instrument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instruments`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO instruments (symbol, underlying, expiry, is_perpetual) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, inst := range instruments {
		expiry := ""
		if !inst.Expiry.IsZero() {
			expiry = inst.Expiry.Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx, inst.Symbol, inst.Underlying, expiry, inst.IsPerpetual); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, underlying, expiry, is_perpetual FROM instruments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []domain.Instrument
	for rows.Next() {
		var inst domain.Instrument
		var expiry string
		if err := rows.Scan(&inst.Symbol, &inst.Underlying, &expiry, &inst.IsPerpetual); err != nil {
			return nil, err
		}
		if expiry != "" {
			t, err := time.Parse(time.RFC3339Nano, expiry)
			if err != nil {
				return nil, fmt.Errorf("bad stored expiry for %s: %w", inst.Symbol, err)
			}
			inst.Expiry = t
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
