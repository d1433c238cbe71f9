// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
	"github.com/bureau-foundation/nominal-ffi/lib/codec"
	"github.com/bureau-foundation/nominal-ffi/lib/sqlitepool"
)

const databaseSchema = `
CREATE TABLE IF NOT EXISTS batches (
	session    TEXT    NOT NULL,
	sequence   INTEGER NOT NULL,
	resource   TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (session, sequence)
);
CREATE TABLE IF NOT EXISTS samples (
	session     TEXT    NOT NULL,
	sequence    INTEGER NOT NULL,
	series      INTEGER NOT NULL,
	channel     TEXT    NOT NULL,
	tags        TEXT,
	kind        INTEGER NOT NULL,
	timestamp   INTEGER NOT NULL,
	value_real  REAL,
	value_int   INTEGER,
	value_text  TEXT
);
CREATE INDEX IF NOT EXISTS samples_by_batch ON samples (session, sequence, series);
CREATE INDEX IF NOT EXISTS samples_by_channel ON samples (channel, timestamp);
`

// IsDatabasePath reports whether a fallback path selects the SQLite
// destination rather than the framed file.
func IsDatabasePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sqlite", ".sqlite3", ".db":
		return true
	default:
		return false
	}
}

// databaseSink writes batches as rows through a SQLite pool.
type databaseSink struct {
	pool *sqlitepool.Pool
}

func openDatabaseSink(ctx context.Context, path string, options Options, logger *slog.Logger) (*databaseSink, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: 1,
		Durable:  options.FallbackSync,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, databaseSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFallbackOpen, err)
	}

	// Connections are prepared lazily; take one now so a bad path or
	// schema fails the build instead of the first flush.
	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrFallbackOpen, err)
	}
	pool.Put(conn)

	return &databaseSink{pool: pool}, nil
}

func (s *databaseSink) Write(ctx context.Context, data []byte) (err error) {
	var batch Batch
	if err := codec.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("engine: decoding batch for database: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("engine: fallback database: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("engine: fallback database: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		"INSERT INTO batches (session, sequence, resource, created_at) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{batch.Session, int64(batch.Sequence), batch.Resource, batch.CreatedAt}})
	if err != nil {
		return fmt.Errorf("engine: fallback database: insert batch: %w", err)
	}

	for seriesIndex := range batch.Series {
		series := &batch.Series[seriesIndex]
		var tags any
		if len(series.Tags) > 0 {
			encoded, err := json.Marshal(series.Tags)
			if err != nil {
				return fmt.Errorf("engine: fallback database: encoding tags: %w", err)
			}
			tags = string(encoded)
		}
		for i, timestamp := range series.Timestamps {
			var realValue, intValue, textValue any
			switch series.Kind {
			case KindFloat64:
				realValue = series.Float64s[i]
			case KindInt64:
				intValue = series.Int64s[i]
			case KindBool:
				intValue = int64(0)
				if series.Bools[i] {
					intValue = int64(1)
				}
			case KindString:
				textValue = series.Strings[i]
			}
			err = sqlitex.Execute(conn,
				`INSERT INTO samples (session, sequence, series, channel, tags, kind, timestamp, value_real, value_int, value_text)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					batch.Session, int64(batch.Sequence), seriesIndex, series.Channel, tags,
					int(series.Kind), timestamp, realValue, intValue, textValue,
				}})
			if err != nil {
				return fmt.Errorf("engine: fallback database: insert sample: %w", err)
			}
		}
	}
	return nil
}

func (s *databaseSink) Close() error {
	return s.pool.Close()
}

func (s *databaseSink) Describe() string {
	return s.pool.Path()
}

// ScanFallbackDatabase decodes the batches of a fallback database in
// insertion order, calling fn for each.
func ScanFallbackDatabase(ctx context.Context, path string, fn func(*Batch) error) error {
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, PoolSize: 1, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer pool.Put(conn)

	var batches []*Batch
	err = sqlitex.Execute(conn,
		"SELECT session, sequence, resource, created_at FROM batches ORDER BY rowid",
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			batches = append(batches, &Batch{
				Session:   stmt.ColumnText(0),
				Sequence:  uint64(stmt.ColumnInt64(1)),
				Resource:  stmt.ColumnText(2),
				CreatedAt: stmt.ColumnInt64(3),
			})
			return nil
		}})
	if err != nil {
		return fmt.Errorf("engine: %s: reading batches: %w", path, err)
	}

	for _, batch := range batches {
		if err := loadSeries(conn, batch); err != nil {
			return fmt.Errorf("engine: %s: batch %s/%d: %w", path, batch.Session, batch.Sequence, err)
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func loadSeries(conn *sqlite.Conn, batch *Batch) error {
	return sqlitex.Execute(conn,
		`SELECT series, channel, tags, kind, timestamp, value_real, value_int, value_text
		 FROM samples WHERE session = ? AND sequence = ? ORDER BY series, rowid`,
		&sqlitex.ExecOptions{
			Args: []any{batch.Session, int64(batch.Sequence)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				index := stmt.ColumnInt(0)
				for len(batch.Series) <= index {
					batch.Series = append(batch.Series, Series{})
				}
				series := &batch.Series[index]
				if series.Kind == 0 {
					series.Channel = stmt.ColumnText(1)
					series.Kind = Kind(stmt.ColumnInt(3))
					if !stmt.ColumnIsNull(2) {
						var tags []channel.Tag
						if err := json.Unmarshal([]byte(stmt.ColumnText(2)), &tags); err != nil {
							return fmt.Errorf("decoding tags: %w", err)
						}
						series.Tags = tags
					}
				}
				series.Timestamps = append(series.Timestamps, stmt.ColumnInt64(4))
				switch series.Kind {
				case KindFloat64:
					series.Float64s = append(series.Float64s, stmt.ColumnFloat(5))
				case KindInt64:
					series.Int64s = append(series.Int64s, stmt.ColumnInt64(6))
				case KindBool:
					series.Bools = append(series.Bools, stmt.ColumnInt64(6) != 0)
				case KindString:
					series.Strings = append(series.Strings, stmt.ColumnText(7))
				}
				return nil
			},
		})
}

// ReadFallbackDatabase returns every batch in a fallback database.
func ReadFallbackDatabase(ctx context.Context, path string) ([]Batch, error) {
	var batches []Batch
	err := ScanFallbackDatabase(ctx, path, func(batch *Batch) error {
		batches = append(batches, *batch)
		return nil
	})
	return batches, err
}
