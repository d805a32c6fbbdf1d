// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/perety/airwave/registry"
)

// Audit queues an audit record for background persistence. Never
// blocks: if the queue is full or the store is closing, the record is
// dropped with a warning.
func (s *Store) Audit(event registry.AuditEvent) {
	defer func() {
		// Audit racing Close sends on a closed queue; the record is
		// dropped like any other overflow.
		if recover() != nil {
			s.logger.Warn("audit record dropped, store closing",
				"user", event.User, "action", event.Action)
		}
	}()

	select {
	case s.auditQueue <- event:
	default:
		s.logger.Warn("audit record dropped, queue full",
			"user", event.User, "action", event.Action)
	}
}

// auditWriter drains the queue until Close.
func (s *Store) auditWriter() {
	defer close(s.auditDone)
	for event := range s.auditQueue {
		s.writeAudit(event)
	}
}

func (s *Store) writeAudit(event registry.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		s.logger.Warn("audit write failed",
			"user", event.User, "action", event.Action, "error", err)
		return
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO audit_log (id, user, action, channel, at)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			uuid.NewString(), event.User, event.Action, event.Channel,
			event.Time.UnixMilli(),
		}})
	if err != nil {
		s.logger.Warn("audit write failed",
			"user", event.User, "action", event.Action, "error", err)
	}
}

// AuditRecord is one persisted audit entry.
type AuditRecord struct {
	ID      string
	User    string
	Action  string
	Channel string
	At      time.Time
}

// AuditLog returns the most recent limit audit records, newest first.
func (s *Store) AuditLog(ctx context.Context, limit int) ([]AuditRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var records []AuditRecord
	err = sqlitex.Execute(conn,
		`SELECT id, user, action, channel, at FROM audit_log
		  ORDER BY at DESC, id LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, AuditRecord{
					ID:      stmt.ColumnText(0),
					User:    stmt.ColumnText(1),
					Action:  stmt.ColumnText(2),
					Channel: stmt.ColumnText(3),
					At:      time.UnixMilli(stmt.ColumnInt64(4)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	return records, nil
}
