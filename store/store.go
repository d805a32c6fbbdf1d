// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/perety/airwave/lib/codec"
	"github.com/perety/airwave/lib/sqlitepool"
	"github.com/perety/airwave/policy"
	"github.com/perety/airwave/radio"
	"github.com/perety/airwave/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    tag       TEXT NOT NULL DEFAULT '',
    kind      TEXT NOT NULL,
    capacity  INTEGER NOT NULL DEFAULT 0,
    priority  INTEGER NOT NULL DEFAULT 0,
    active    INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS role_grants (
    role         TEXT NOT NULL,
    channel_id   TEXT NOT NULL,
    can_join     INTEGER NOT NULL DEFAULT 0,
    can_transmit INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (role, channel_id)
);

CREATE TABLE IF NOT EXISTS user_roles (
    user               TEXT NOT NULL,
    role               TEXT NOT NULL,
    on_duty_emergency  INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user, role)
);

CREATE TABLE IF NOT EXISTS audio_configs (
    user TEXT PRIMARY KEY,
    blob BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id      TEXT PRIMARY KEY,
    user    TEXT NOT NULL,
    action  TEXT NOT NULL,
    channel TEXT NOT NULL,
    at      INTEGER NOT NULL
);
`

// auditQueueSize bounds buffered audit records. Overflow drops the
// record with a warning rather than blocking a join.
const auditQueueSize = 256

// Store is the relay's SQLite-backed persistence layer.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger

	auditQueue chan registry.AuditEvent
	auditDone  chan struct{}
	closeOnce  sync.Once
}

var (
	_ policy.Directory   = (*Store)(nil)
	_ policy.GrantSource = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and starts the
// audit writer.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	store := &Store{
		pool:       pool,
		logger:     logger,
		auditQueue: make(chan registry.AuditEvent, auditQueueSize),
		auditDone:  make(chan struct{}),
	}
	go store.auditWriter()
	return store, nil
}

// Close drains the audit queue and closes the pool.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.auditQueue) })
	<-s.auditDone
	return s.pool.Close()
}

// Channels loads every channel definition. Failures wrap
// radio.ErrRegistryUnavailable: without the channel set there is no
// registry to serve.
func (s *Store) Channels(ctx context.Context) ([]radio.Channel, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: loading channels: %w: %w", radio.ErrRegistryUnavailable, err)
	}
	defer s.pool.Put(conn)

	var channels []radio.Channel
	err = sqlitex.Execute(conn,
		`SELECT id, name, tag, kind, capacity, priority, active
		   FROM channels ORDER BY id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				channels = append(channels, radio.Channel{
					ID:       stmt.ColumnText(0),
					Name:     stmt.ColumnText(1),
					Tag:      stmt.ColumnText(2),
					Kind:     radio.ChannelKind(stmt.ColumnText(3)),
					Capacity: int(stmt.ColumnInt64(4)),
					Priority: int(stmt.ColumnInt64(5)),
					Active:   stmt.ColumnInt64(6) != 0,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: loading channels: %w: %w", radio.ErrRegistryUnavailable, err)
	}
	return channels, nil
}

// UpsertChannel writes a channel definition. Used by the dashboard
// side and by test fixtures.
func (s *Store) UpsertChannel(ctx context.Context, channel radio.Channel) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO channels (id, name, tag, kind, capacity, priority, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, tag = excluded.tag, kind = excluded.kind,
		   capacity = excluded.capacity, priority = excluded.priority,
		   active = excluded.active`,
		&sqlitex.ExecOptions{Args: []any{
			channel.ID, channel.Name, channel.Tag, string(channel.Kind),
			channel.Capacity, channel.Priority, boolInt(channel.Active),
		}})
	if err != nil {
		return fmt.Errorf("store: upserting channel %s: %w", channel.ID, err)
	}
	return nil
}

// SetGrant writes an explicit per-role grant for a channel.
func (s *Store) SetGrant(ctx context.Context, role, channelID string, grant policy.Grant) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO role_grants (role, channel_id, can_join, can_transmit)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (role, channel_id) DO UPDATE SET
		   can_join = excluded.can_join, can_transmit = excluded.can_transmit`,
		&sqlitex.ExecOptions{Args: []any{
			role, channelID, boolInt(grant.CanJoin), boolInt(grant.CanTransmit),
		}})
	if err != nil {
		return fmt.Errorf("store: setting grant %s/%s: %w", role, channelID, err)
	}
	return nil
}

// AssignRole gives the user a role. onDutyEmergency marks the user as
// an on-duty emergency responder under that role.
func (s *Store) AssignRole(ctx context.Context, user, role string, onDutyEmergency bool) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO user_roles (user, role, on_duty_emergency)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user, role) DO UPDATE SET
		   on_duty_emergency = excluded.on_duty_emergency`,
		&sqlitex.ExecOptions{Args: []any{user, role, boolInt(onDutyEmergency)}})
	if err != nil {
		return fmt.Errorf("store: assigning role %s to %s: %w", role, user, err)
	}
	return nil
}

// Roles implements policy.Directory. Read failures resolve to no
// roles; the error is logged, and the permission layer falls back to
// kind defaults.
func (s *Store) Roles(user string) []string {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		s.logger.Error("role lookup failed", "user", user, "error", err)
		return nil
	}
	defer s.pool.Put(conn)

	var roles []string
	err = sqlitex.Execute(conn,
		`SELECT role FROM user_roles WHERE user = ? ORDER BY role`,
		&sqlitex.ExecOptions{
			Args: []any{user},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				roles = append(roles, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		s.logger.Error("role lookup failed", "user", user, "error", err)
		return nil
	}
	return roles
}

// OnDutyEmergency implements policy.Directory.
func (s *Store) OnDutyEmergency(user string) bool {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		s.logger.Error("on-duty lookup failed", "user", user, "error", err)
		return false
	}
	defer s.pool.Put(conn)

	onDuty := false
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM user_roles WHERE user = ? AND on_duty_emergency = 1 LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{user},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				onDuty = true
				return nil
			},
		})
	if err != nil {
		s.logger.Error("on-duty lookup failed", "user", user, "error", err)
		return false
	}
	return onDuty
}

// Grant implements policy.GrantSource. A read failure resolves to "no
// explicit grant", which denies private channels by default.
func (s *Store) Grant(role, channelID string) (policy.Grant, bool) {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		s.logger.Error("grant lookup failed", "role", role, "channel", channelID, "error", err)
		return policy.Grant{}, false
	}
	defer s.pool.Put(conn)

	var grant policy.Grant
	found := false
	err = sqlitex.Execute(conn,
		`SELECT can_join, can_transmit FROM role_grants
		  WHERE role = ? AND channel_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{role, channelID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				grant.CanJoin = stmt.ColumnInt64(0) != 0
				grant.CanTransmit = stmt.ColumnInt64(1) != 0
				found = true
				return nil
			},
		})
	if err != nil {
		s.logger.Error("grant lookup failed", "role", role, "channel", channelID, "error", err)
		return policy.Grant{}, false
	}
	return grant, found
}

// AudioConfig loads the user's saved audio configuration, or the
// default if none was ever saved.
func (s *Store) AudioConfig(ctx context.Context, user string) (radio.AudioConfig, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return radio.AudioConfig{}, err
	}
	defer s.pool.Put(conn)

	config := radio.DefaultAudioConfig()
	err = sqlitex.Execute(conn,
		`SELECT blob FROM audio_configs WHERE user = ?`,
		&sqlitex.ExecOptions{
			Args: []any{user},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob := make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, blob)
				return codec.Unmarshal(blob, &config)
			},
		})
	if err != nil {
		return radio.AudioConfig{}, fmt.Errorf("store: loading audio config for %s: %w", user, err)
	}
	return config, nil
}

// SaveAudioConfig persists the user's audio configuration as a
// deterministic CBOR blob.
func (s *Store) SaveAudioConfig(ctx context.Context, user string, config radio.AudioConfig) error {
	blob, err := codec.Marshal(config)
	if err != nil {
		return fmt.Errorf("store: encoding audio config: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO audio_configs (user, blob) VALUES (?, ?)
		 ON CONFLICT (user) DO UPDATE SET blob = excluded.blob`,
		&sqlitex.ExecOptions{Args: []any{user, blob}})
	if err != nil {
		return fmt.Errorf("store: saving audio config for %s: %w", user, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
