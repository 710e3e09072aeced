// Package store keeps angle readings and computed scores in SQLite. It is
// the reading source and the chunked score sink of the batch job.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"phasewatch/models"

	// Pure Go SQLite driver
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that text order equals time order.
const timeLayout = "2006-01-02 15:04:05.000000"

// parseLayouts are tried in order when reading stored timestamps, which may
// have been written by other tools.
var parseLayouts = []string{
	timeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"20060102150405",
}

var ErrNoChannels = errors.New("no channels requested")

// Config configures the SQLite store.
type Config struct {
	// Path to the SQLite database file
	Path string

	// ChunkSize is the number of scores committed per transaction
	ChunkSize int

	// Limit caps the number of distinct timestamps loaded per run
	Limit int

	// BusyTimeout is the lock wait in milliseconds
	BusyTimeout int

	MaxConnections int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Path:           "phasewatch.db",
		ChunkSize:      5000,
		Limit:          5000,
		BusyTimeout:    5000,
		MaxConnections: 4,
	}
}

type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Open opens (creating if needed) the database at cfg.Path.
func Open(cfg Config) (*SQLiteStore, error) {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = def.BusyTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)

	s := &SQLiteStore{db: db, cfg: cfg}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS readings (
			rdate TEXT NOT NULL,
			channel TEXT NOT NULL,
			angle REAL,
			PRIMARY KEY (rdate, channel)
		);

		CREATE TABLE IF NOT EXISTS scores (
			rdate TEXT NOT NULL,
			channel TEXT NOT NULL,
			score REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (rdate, channel)
		);

		CREATE INDEX IF NOT EXISTS idx_readings_channel_rdate ON readings(channel, rdate);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertReadings upserts every angle of the table, nil angles included.
func (s *SQLiteStore) InsertReadings(ctx context.Context, table models.ReadingTable) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (rdate, channel, angle) VALUES (?, ?, ?)
		ON CONFLICT(rdate, channel) DO UPDATE SET angle = excluded.angle`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, row := range table.Rows {
		rdate := formatTime(row.Timestamp)
		for ch, angle := range row.Angles {
			var v sql.NullFloat64
			if angle != nil {
				v = sql.NullFloat64{Float64: *angle, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, rdate, ch, v); err != nil {
				return 0, fmt.Errorf("insert reading %s/%s: %w", rdate, ch, err)
			}
			n++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// LoadReadings returns the earliest Limit timestamps that carry any of the
// channels, sorted by time. Channels missing at a timestamp are left absent
// from that row; rows whose timestamp cannot be parsed are skipped.
func (s *SQLiteStore) LoadReadings(ctx context.Context, channels []string) (models.ReadingTable, error) {
	if len(channels) == 0 {
		return models.ReadingTable{}, ErrNoChannels
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(channels)), ",")
	query := fmt.Sprintf(`
		SELECT rdate, channel, angle FROM readings
		WHERE channel IN (%[1]s) AND rdate IN (
			SELECT DISTINCT rdate FROM readings
			WHERE channel IN (%[1]s)
			ORDER BY rdate LIMIT ?
		)
		ORDER BY rdate`, placeholders)

	args := make([]any, 0, 2*len(channels)+1)
	for _, ch := range channels {
		args = append(args, ch)
	}
	args = append(args, args...)
	args = append(args, s.cfg.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.ReadingTable{}, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	byTime := make(map[time.Time]*models.Row)
	skipped := make(map[string]struct{})
	for rows.Next() {
		var (
			rdate, channel string
			angle          sql.NullFloat64
		)
		if err := rows.Scan(&rdate, &channel, &angle); err != nil {
			return models.ReadingTable{}, err
		}

		ts, err := parseTime(rdate)
		if err != nil {
			skipped[rdate] = struct{}{}
			continue
		}

		row, ok := byTime[ts]
		if !ok {
			row = &models.Row{Timestamp: ts, Angles: make(map[string]*float64, len(channels))}
			byTime[ts] = row
		}
		var v *float64
		if angle.Valid {
			v = models.Float(angle.Float64)
		}
		row.Angles[channel] = v
	}
	if err := rows.Err(); err != nil {
		return models.ReadingTable{}, err
	}

	if len(skipped) > 0 {
		slog.Warn("skipped rows with unparseable timestamps", "count", len(skipped))
	}

	table := models.ReadingTable{Rows: make([]models.Row, 0, len(byTime))}
	for _, row := range byTime {
		table.Rows = append(table.Rows, *row)
	}
	sort.Slice(table.Rows, func(i, j int) bool {
		return table.Rows[i].Timestamp.Before(table.Rows[j].Timestamp)
	})
	return table, nil
}

type scoreEntry struct {
	rdate   string
	channel string
	score   float64
}

// WriteScores upserts every defined score, ChunkSize per transaction.
// Undefined scores are not written. On failure the count of scores already
// committed by earlier chunks is returned with the error.
func (s *SQLiteStore) WriteScores(ctx context.Context, table models.ScoreTable) (int, error) {
	var entries []scoreEntry
	for _, row := range table.Rows {
		rdate := formatTime(row.Timestamp)
		for _, ch := range table.Channels {
			if sc := row.Scores[ch]; sc.Defined {
				entries = append(entries, scoreEntry{rdate: rdate, channel: ch, score: sc.Value})
			}
		}
	}

	total := len(entries)
	slog.Info("score write-back prepared", "scores", humanize.Comma(int64(total)), "chunk_size", s.cfg.ChunkSize)

	start := time.Now()
	written := 0
	for i := 0; i < total; i += s.cfg.ChunkSize {
		end := min(i+s.cfg.ChunkSize, total)
		if err := s.writeChunk(ctx, entries[i:end]); err != nil {
			return written, fmt.Errorf("chunk %d: %w", i/s.cfg.ChunkSize+1, err)
		}
		written += end - i
		slog.Info("chunk committed",
			"chunk", i/s.cfg.ChunkSize+1,
			"scores", humanize.Comma(int64(end-i)))
	}

	elapsed := time.Since(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(written) / elapsed.Seconds()
	}
	slog.Info("score write-back finished",
		"scores", humanize.Comma(int64(written)),
		"elapsed", elapsed,
		"scores_per_sec", humanize.FormatFloat("#,###.##", rate))
	return written, nil
}

func (s *SQLiteStore) writeChunk(ctx context.Context, chunk []scoreEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scores (rdate, channel, score, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(rdate, channel) DO UPDATE SET
			score = excluded.score, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, e := range chunk {
		if _, err := stmt.ExecContext(ctx, e.rdate, e.channel, e.score, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ScoreAt reads back one stored score.
func (s *SQLiteStore) ScoreAt(ctx context.Context, ts time.Time, channel string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM scores WHERE rdate = ? AND channel = ?`,
		formatTime(ts), channel).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range parseLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
