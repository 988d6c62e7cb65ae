package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteSink 周期与迁移写入 SQLite（cycles / transitions 两张表）
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink 打开数据库并建表。path 为 ":memory:" 时使用内存库。
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "mkdir db dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS cycles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  pair TEXT NOT NULL,
  ts TEXT NOT NULL,
  price_y REAL NOT NULL,
  price_x REAL NOT NULL,
  beta_raw REAL,
  spread REAL,
  mean REAL,
  std_dev REAL,
  z_score REAL,
  stage TEXT NOT NULL,
  state TEXT NOT NULL,
  halted INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_pair_ts ON cycles(pair, ts DESC);`,
		`
CREATE TABLE IF NOT EXISTS transitions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  pair TEXT NOT NULL,
  ts TEXT NOT NULL,
  kind TEXT NOT NULL,
  side TEXT NOT NULL,
  exit_reason TEXT NOT NULL DEFAULT '',
  z_score REAL NOT NULL,
  spread REAL NOT NULL,
  beta_raw REAL NOT NULL,
  beta_used REAL NOT NULL,
  inverted INTEGER NOT NULL,
  units_y TEXT NOT NULL,
  units_x TEXT NOT NULL,
  legs_json TEXT NOT NULL,
  order_ids TEXT NOT NULL DEFAULT ''
);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_pair_ts ON transitions(pair, ts DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "migrate exec failed")
		}
	}
	return nil
}

func (s *SQLiteSink) RecordCycle(rec CycleRecord) error {
	_, err := s.db.Exec(`INSERT INTO cycles (pair, ts, price_y, price_x, beta_raw, spread, mean, std_dev, z_score, stage, state, halted)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Pair, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.PriceY, rec.PriceX,
		nullFloat(rec.BetaRaw), nullFloat(rec.Spread), nullFloat(rec.Mean), nullFloat(rec.StdDev), nullFloat(rec.ZScore),
		rec.Stage, rec.State, boolInt(rec.Halted))
	return errors.Wrap(err, "insert cycle")
}

func (s *SQLiteSink) RecordTransition(rec TransitionRecord) error {
	legs, err := json.Marshal(rec.Legs)
	if err != nil {
		return errors.Wrap(err, "marshal legs")
	}
	_, err = s.db.Exec(`INSERT INTO transitions (pair, ts, kind, side, exit_reason, z_score, spread, beta_raw, beta_used, inverted, units_y, units_x, legs_json, order_ids)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Pair, rec.Timestamp.UTC().Format(time.RFC3339Nano), string(rec.Kind), string(rec.Side), string(rec.ExitReason),
		rec.ZScore, rec.Spread, rec.BetaRaw, rec.BetaUsed, boolInt(rec.Inverted),
		rec.UnitsY.String(), rec.UnitsX.String(), string(legs), strings.Join(rec.OrderIDs, ","))
	return errors.Wrap(err, "insert transition")
}

// TransitionSummary 迁移计数（status 命令使用）
type TransitionSummary struct {
	Pair          string
	Entries       int
	MeanReversion int
	StopLoss      int
	LastAt        string
}

// Summaries 按配对汇总迁移
func (s *SQLiteSink) Summaries(ctx context.Context) ([]TransitionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT pair,
  SUM(CASE WHEN kind = 'entry' THEN 1 ELSE 0 END),
  SUM(CASE WHEN exit_reason = 'mean_reversion' THEN 1 ELSE 0 END),
  SUM(CASE WHEN exit_reason = 'stop_loss' THEN 1 ELSE 0 END),
  MAX(ts)
FROM transitions GROUP BY pair ORDER BY pair`)
	if err != nil {
		return nil, errors.Wrap(err, "query transitions")
	}
	defer rows.Close()

	var out []TransitionSummary
	for rows.Next() {
		var t TransitionSummary
		if err := rows.Scan(&t.Pair, &t.Entries, &t.MeanReversion, &t.StopLoss, &t.LastAt); err != nil {
			return nil, errors.Wrap(err, "scan transition summary")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate transitions")
}

// CycleCount 某配对已记录的周期数
func (s *SQLiteSink) CycleCount(ctx context.Context, pair string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycles WHERE pair = ?`, pair).Scan(&n)
	return n, errors.Wrap(err, "count cycles")
}

func (s *SQLiteSink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
