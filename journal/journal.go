// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package journal keeps the blocks read by decoding sessions in an
// SQLite database, so that pages missed by one session can be scanned
// again and combined with what was read before.
package journal // import "github.com/unixdj/paperqr/journal"

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/unixdj/paperqr/block"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrSession = errors.New("paperqr: no such session")

// A Journal is an open observation database.
type Journal struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens the journal at path, creating it if needed, and brings
// its schema up to date.
func Open(path string, log zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	j := &Journal{db, log.With().Str("journal", path).Logger()}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite driver: %w", err)
	}
	// Closing m would close the database.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	m.Log = migrateLogger{j.log}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct {
	log zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debug().Str("component", "migrate").Msgf(format, v...)
}

func (l migrateLogger) Verbose() bool { return false }

// A Session is one decoding run recorded in the journal.
type Session struct {
	ID      uuid.UUID
	Started time.Time
	Blocks  int // observations recorded
}

// Begin starts session id.
func (j *Journal) Begin(ctx context.Context, id uuid.UUID) (Session, error) {
	s := Session{ID: id, Started: time.Now().UTC()}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started) VALUES (?, ?)`,
		s.ID.String(), s.Started.Format(time.RFC3339Nano))
	if err != nil {
		return Session{}, err
	}
	j.log.Info().Stringer("session", s.ID).Msg("session started")
	return s, nil
}

// Record appends obs to session id, all or nothing.
func (j *Journal) Record(ctx context.Context, id uuid.UUID, obs []block.Observation) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var n int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`,
		id.String()).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", ErrSession, id)
	}
	st, err := tx.PrepareContext(ctx, `INSERT INTO observations
		(session, run, idx, content, file, page, cell_x, cell_y, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer st.Close()
	for _, o := range obs {
		b, src := o.Block, o.Source
		if _, err := st.ExecContext(ctx, id.String(), int64(b.RunID), b.Index,
			b.Content, src.File, src.Page, src.Cell.X, src.Cell.Y, src.Line); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	j.log.Info().Stringer("session", id).Int("blocks", len(obs)).Msg("observations recorded")
	return nil
}

// Observations returns every observation in the journal, in the
// order recorded.
func (j *Journal) Observations(ctx context.Context) ([]block.Observation, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT run, idx, content, file, page,
		cell_x, cell_y, line FROM observations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var obs []block.Observation
	for rows.Next() {
		var (
			o   block.Observation
			run int64
			c   image.Point
		)
		if err := rows.Scan(&run, &o.Block.Index, &o.Block.Content,
			&o.Source.File, &o.Source.Page, &c.X, &c.Y, &o.Source.Line); err != nil {
			return nil, err
		}
		o.Block.RunID = block.RunID(run)
		o.Source.Cell = c
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// Sessions lists the sessions in the order started.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT s.id, s.started, COUNT(o.id)
		FROM sessions s LEFT JOIN observations o ON o.session = s.id
		GROUP BY s.id ORDER BY s.started, s.rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ss []Session
	for rows.Next() {
		var (
			s         Session
			id, start string
		)
		if err := rows.Scan(&id, &start, &s.Blocks); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session %q: %w", id, err)
		}
		if s.Started, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return nil, fmt.Errorf("session %q: %w", id, err)
		}
		ss = append(ss, s)
	}
	return ss, rows.Err()
}
