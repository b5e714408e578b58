// Package store persists evaluation reports to PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS evaluation_runs (
	id              BIGSERIAL PRIMARY KEY,
	mode            TEXT NOT NULL,
	dataset         TEXT NOT NULL,
	cutoff_k        INTEGER NOT NULL,
	queries         INTEGER NOT NULL,
	micro_precision DOUBLE PRECISION NOT NULL,
	micro_recall    DOUBLE PRECISION NOT NULL,
	micro_f1        DOUBLE PRECISION NOT NULL,
	macro_precision DOUBLE PRECISION NOT NULL,
	macro_recall    DOUBLE PRECISION NOT NULL,
	macro_f1        DOUBLE PRECISION NOT NULL,
	report          JSONB NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	duration_ms     BIGINT NOT NULL
)`

// RunSummary is one row of evaluation_runs without the full report.
type RunSummary struct {
	ID        int64              `json:"id"`
	Mode      string             `json:"mode"`
	Dataset   string             `json:"dataset"`
	CutoffK   int                `json:"cutoff_k"`
	StartedAt time.Time          `json:"started_at"`
	Summary   evaluation.Summary `json:"summary"`
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "evaluation-store"),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.EnsureSchema(ctx, schema)
}

// Save inserts report and returns its row id.
func (s *Store) Save(ctx context.Context, report *evaluation.Report) (int64, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshaling evaluation report: %w", err)
	}
	sum := report.Summary

	var id int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO evaluation_runs (
				mode, dataset, cutoff_k, queries,
				micro_precision, micro_recall, micro_f1,
				macro_precision, macro_recall, macro_f1,
				report, started_at, duration_ms
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id`,
			report.Mode, report.Dataset, report.CutoffK, sum.Queries,
			sum.MicroPrecision, sum.MicroRecall, sum.MicroF1,
			sum.MacroPrecision, sum.MacroRecall, sum.MacroF1,
			data, report.StartedAt, report.Duration.Milliseconds(),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("saving evaluation run: %w", err)
	}
	s.logger.Info("evaluation run saved", "id", id, "mode", report.Mode, "micro_f1", sum.MicroF1)
	return id, nil
}

// Recent lists the newest runs, optionally filtered by mode.
func (s *Store) Recent(ctx context.Context, mode string, limit int) ([]RunSummary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, mode, dataset, cutoff_k, started_at, queries,
			micro_precision, micro_recall, micro_f1,
			macro_precision, macro_recall, macro_f1
		FROM evaluation_runs
		WHERE $1 = '' OR mode = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		mode, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing evaluation runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(
			&r.ID, &r.Mode, &r.Dataset, &r.CutoffK, &r.StartedAt, &r.Summary.Queries,
			&r.Summary.MicroPrecision, &r.Summary.MicroRecall, &r.Summary.MicroF1,
			&r.Summary.MacroPrecision, &r.Summary.MacroRecall, &r.Summary.MacroF1,
		); err != nil {
			return nil, fmt.Errorf("scanning evaluation run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
