package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/stupiduntilnot/rdmochat/internal/message"
)

// dialect holds the statements of one SQL backend. Lookups compare
// project_id null-safely so the project-less conversation is addressable.
type dialect struct {
	name        string
	createTable string
	count       string // user, project
	selectRow   string // user, project
	upsert      string // user, project, messages
	selectNull  string // user
	updateByID  string // messages, id
	insertNull  string // user, messages
	delete      string // user, project
}

// sqlStore implements Store on database/sql. When reopen is set, a statement
// that fails on a stale connection triggers one reconnect and one retry.
type sqlStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	d      dialect
	reopen func(ctx context.Context) (*sql.DB, error)
	logger *zap.Logger
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, reopen func(context.Context) (*sql.DB, error), logger *zap.Logger) (*sqlStore, error) {
	s := &sqlStore{db: db, d: d, reopen: reopen, logger: logger}
	if err := s.createTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) createTable(ctx context.Context) error {
	return s.run(ctx, opBootstrap, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, s.d.createTable)
		return err
	})
}

func (s *sqlStore) HasHistory(ctx context.Context, key Key) (bool, error) {
	var n int64
	err := s.run(ctx, opHas, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, s.d.count, key.UserIdentifier, key.ProjectID).Scan(&n)
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqlStore) GetHistory(ctx context.Context, key Key) ([]message.Message, error) {
	var raw []byte
	err := s.run(ctx, opGet, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, s.d.selectRow, key.UserIdentifier, key.ProjectID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			raw = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	msgs, err := message.Unmarshal(raw)
	if err != nil {
		return nil, wrap(s.d.name, opGet, err)
	}
	return msgs, nil
}

func (s *sqlStore) SetHistory(ctx context.Context, key Key, msgs []message.Message) error {
	data, err := message.Marshal(msgs)
	if err != nil {
		return wrap(s.d.name, opSet, err)
	}
	payload := string(data)
	return s.run(ctx, opSet, func(db *sql.DB) error {
		if key.ProjectID.Valid {
			_, err := db.ExecContext(ctx, s.d.upsert, key.UserIdentifier, key.ProjectID, payload)
			return err
		}
		return s.setNullProject(ctx, db, key.UserIdentifier, payload)
	})
}

// setNullProject upserts the project-less row. Unique constraints do not
// consider NULLs equal, so the conflict clause of the upsert never fires for
// it; select-then-write inside a transaction keeps a single row instead.
func (s *sqlStore) setNullProject(ctx context.Context, db *sql.DB, user, payload string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, s.d.selectNull, user).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, s.d.insertNull, user, payload); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	case err != nil:
		return err
	default:
		if _, err := tx.ExecContext(ctx, s.d.updateByID, payload, id); err != nil {
			return fmt.Errorf("update id=%d: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) ResetHistory(ctx context.Context, key Key) error {
	return s.run(ctx, opReset, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, s.d.delete, key.UserIdentifier, key.ProjectID)
		return err
	})
}

// Close releases the database handle.
func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *sqlStore) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *sqlStore) run(ctx context.Context, op string, fn func(db *sql.DB) error) error {
	db := s.handle()
	err := fn(db)
	if err == nil {
		return nil
	}
	if s.reopen == nil || !IsStaleConnection(err) {
		return wrap(s.d.name, op, err)
	}

	s.logger.Warn("stale database connection, reconnecting",
		zap.String("backend", s.d.name), zap.String("op", op), zap.Error(err))
	if rerr := s.reconnect(ctx, db); rerr != nil {
		return wrap(s.d.name, op, errors.Join(err, rerr))
	}
	if err := fn(s.handle()); err != nil {
		return wrap(s.d.name, op, err)
	}
	return nil
}

// reconnect swaps stale for a fresh handle. The stale handle is closed only
// once a replacement has been opened and pinged; on failure it stays in place
// so the next stale error triggers another attempt. If another caller already
// replaced it, the current handle is kept.
func (s *sqlStore) reconnect(ctx context.Context, stale *sql.DB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != stale {
		return nil
	}
	db, err := s.reopen(ctx)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("reconnect ping: %w", err)
	}
	s.db = db
	if err := stale.Close(); err != nil {
		s.logger.Debug("closing stale handle failed", zap.String("backend", s.d.name), zap.Error(err))
	}
	s.logger.Info("database connection re-established", zap.String("backend", s.d.name))
	return nil
}
