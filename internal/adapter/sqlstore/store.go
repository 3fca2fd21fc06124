// Package sqlstore implements the table and attachment contracts on a SQL
// database through gorm. Every table is created from a typed model; rows are
// read and written as attribute maps with lowercase column names.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const slowQueryThreshold = 500 * time.Millisecond

// Store is a SQL database holding every NHA table.
type Store struct {
	db     *gorm.DB
	clock  clockwork.Clock
	logger *slog.Logger
	tables map[string]*Table
}

// Open connects to the database and migrates the schema. dsn is a file path
// for sqlite and a connection string for postgres.
func Open(driver, dsn string, clock clockwork.Clock, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	logger = logger.With("component", "sqlstore", "driver", driver)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newGormLogger(logger, slowQueryThreshold, gormlogger.Warn),
		NowFunc: func() time.Time { return clock.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	all := append(models(), &attachment{})
	if err := db.AutoMigrate(all...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	s := &Store{db: db, clock: clock, logger: logger, tables: make(map[string]*Table)}
	for _, m := range models() {
		t, err := s.newTable(m)
		if err != nil {
			return nil, err
		}
		s.tables[t.name] = t
	}
	logger.Info("database ready", "tables", len(s.tables))
	return s, nil
}

// Table returns the named table.
func (s *Store) Table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", name, errNoTable)
	}
	return t, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var errNoTable = errors.New("no such table")

func (s *Store) newTable(model any) (*Table, error) {
	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(model); err != nil {
		return nil, fmt.Errorf("parse model %T: %w", model, err)
	}
	columns := make(map[string]bool, len(stmt.Schema.DBNames))
	for _, name := range stmt.Schema.DBNames {
		columns[name] = true
	}
	typ := reflect.TypeOf(model).Elem()
	return &Table{
		db:      s.db,
		name:    stmt.Schema.Table,
		columns: columns,
		model:   func() any { return reflect.New(typ).Interface() },
		clock:   s.clock,
		logger:  s.logger.With("table", stmt.Schema.Table),
	}, nil
}
