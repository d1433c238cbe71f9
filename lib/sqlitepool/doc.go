// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// engine's database fallback destination.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool with fixed pragmas:
//
//   - journal_mode=WAL: a reader (the nominal-fallback tool) never
//     blocks the stream writing to the same file.
//   - synchronous=FULL when Config.Durable is set, NORMAL otherwise.
//     Fallback data exists because the network was unavailable, so
//     streams open their database durable.
//   - busy_timeout=5000: wait for the write lock instead of failing
//     with SQLITE_BUSY.
//   - temp_store=MEMORY.
//
// Callers [Pool.Take] a connection, do their work, and [Pool.Put] it
// back. Connections are not safe for concurrent use.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:      "/data/run-42.sqlite",
//	    PoolSize:  1,
//	    Durable:   true,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
package sqlitepool
