// Package db reads CRM state from Postgres so scenarios can check what the
// UI and API did: reset OTPs, company master rows, bulk upload batches and
// their staging rows, activities.
package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devicelab-dev/crm-e2e/pkg/config"
	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Connection names.
const (
	DefaultConnection = "crm"
	driverName        = "postgres"
	pingTimeout       = 10 * time.Second
)

// Manager opens database connections on first use and shares them across
// scenarios. It is safe for concurrent use; Close it at suite teardown.
type Manager struct {
	mu    sync.Mutex
	props map[string]config.DatabaseProperties
	conns map[string]*sqlx.DB
}

// NewManager creates a Manager with props registered as DefaultConnection.
func NewManager(props config.DatabaseProperties) *Manager {
	m := &Manager{
		props: map[string]config.DatabaseProperties{},
		conns: map[string]*sqlx.DB{},
	}
	m.Register(DefaultConnection, props)
	return m
}

// Register adds a named connection, e.g. a reporting replica.
func (m *Manager) Register(name string, props config.DatabaseProperties) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[name] = props
}

// Attach installs an already open connection under name. Tests use it to
// plug in sqlmock.
func (m *Manager) Attach(name string, db *sqlx.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[name] = db
}

// DB returns the connection called name, opening and pinging it on first use.
// The ping runs without holding the lock, so a slow database does not stall
// other connections.
func (m *Manager) DB(ctx context.Context, name string) (*sqlx.DB, error) {
	m.mu.Lock()
	db, ok := m.conns[name]
	props, registered := m.props[name]
	m.mu.Unlock()

	if ok {
		return db, nil
	}
	if !registered {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("no database connection named %q", name))
	}
	if props.Name == "" {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("database %q: db.name is not set in %s", name, config.DatabasePropertiesFile))
	}

	db, err := open(ctx, name, props)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.conns[name]; ok {
		db.Close()
		return existing, nil
	}
	m.conns[name] = db
	return db, nil
}

func open(ctx context.Context, name string, props config.DatabaseProperties) (*sqlx.DB, error) {
	logger.Info("opening database %s: %s", name, props.Redacted())
	db, err := sqlx.Open(driverName, props.DSN())
	if err != nil {
		return nil, core.ErrDatabaseUnavailable.WithMessage("open " + name).WithCause(err)
	}
	if props.MaxOpenConns > 0 {
		db.SetMaxOpenConns(props.MaxOpenConns)
		db.SetMaxIdleConns(props.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, core.ErrDatabaseUnavailable.
			WithMessage(fmt.Sprintf("ping %s at %s:%d", name, props.Host, props.Port)).
			WithCause(err)
	}
	return db, nil
}

// Schema returns the schema tables of connection name live in.
func (m *Manager) Schema(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.props[name].Schema; s != "" {
		return s
	}
	return DefaultSchema
}

// Repositories opens the default connection and returns its repositories.
func (m *Manager) Repositories(ctx context.Context) (*Repositories, error) {
	db, err := m.DB(ctx, DefaultConnection)
	if err != nil {
		return nil, err
	}
	return NewRepositories(db, m.Schema(DefaultConnection))
}

// Close closes every open connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := m.conns[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(m.conns, name)
	}
	return errors.Join(errs...)
}

// queryError classifies a driver error. Schema mistakes are reported as
// configuration errors since retrying cannot fix them.
func queryError(what string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "42": // syntax error or access rule violation
			return core.ErrInvalidConfig.
				WithMessage(fmt.Sprintf("%s: %s (SQLSTATE %s)", what, pqErr.Message, pqErr.Code)).
				WithCause(err)
		case "08": // connection exception
			return core.ErrDatabaseUnavailable.WithMessage(what).WithCause(err)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
