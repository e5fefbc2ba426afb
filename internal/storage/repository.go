package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"openmetric/internal/core"
	"openmetric/internal/sources"
)

type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

var (
	_ sources.Store     = (*Repository)(nil)
	_ sources.Versioner = (*Repository)(nil)
)

// Repository stores events and cohorts in SQLite or MySQL.
type Repository struct {
	db      *sql.DB
	queries *Queries
	dialect Dialect
	name    string
}

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectSQLite, dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		queries: New(db, DialectSQLite),
		dialect: DialectSQLite,
		name:    strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath)),
	}, nil
}

// NewMySQLRepository accepts either a driver DSN or a mysql:// / mariadb://
// URL.
func NewMySQLRepository(dsn string) (*Repository, error) {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectMySQL, mysqlDSN); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		queries: New(db, DialectMySQL),
		dialect: DialectMySQL,
		name:    "mysql",
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// LoadDataset reads every event and cohort. Both reads run in one
// transaction so the snapshot is consistent.
func (r *Repository) LoadDataset(ctx context.Context) (core.Dataset, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: r.dialect == DialectMySQL})
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%w: begin: %v", core.ErrSourceUnavailable, err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	eventRows, err := q.ListEvents(ctx)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%w: list events: %v", core.ErrSourceUnavailable, err)
	}
	cohortRows, err := q.ListCohorts(ctx)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%w: list cohorts: %v", core.ErrSourceUnavailable, err)
	}

	events := make([]core.Event, 0, len(eventRows))
	for _, row := range eventRows {
		events = append(events, eventFromRow(row))
	}
	cohorts := make(core.CohortTable, len(cohortRows))
	for _, row := range cohortRows {
		c, err := cohortFromRow(row)
		if err != nil {
			return core.Dataset{}, err
		}
		cohorts[core.MonthKey(row.Month)] = c
	}
	return core.Dataset{Name: r.name, Events: events, Cohorts: cohorts}, nil
}

// AppendEvent implements sources.EventWriter
func (r *Repository) AppendEvent(ctx context.Context, e core.Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	var id int64
	err := r.withTx(ctx, func(q *Queries) error {
		var err error
		id, err = q.InsertEvent(ctx, InsertEventParams{
			EventType:   string(e.Type),
			CustomerID:  nullInt64(e.CustomerID),
			Amount:      nullFloat64(e.Amount),
			Description: nullString(e.Description),
			OccurredAt:  e.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return q.BumpRevision(ctx)
	})
	if err != nil {
		return "", err
	}

	slog.DebugContext(ctx, "Event stored",
		"id", id,
		"event_type", e.Type,
		"timestamp", e.Timestamp,
		"dialect", r.dialect)

	return strconv.FormatInt(id, 10), nil
}

// PutCohort implements sources.CohortWriter. An existing month is replaced.
func (r *Repository) PutCohort(ctx context.Context, month core.MonthKey, c core.RetentionCohort) error {
	if _, err := core.ParseMonthKey(string(month)); err != nil {
		return err
	}
	active := c.Active
	if active == nil {
		active = []uint32{}
	}
	activeJSON, err := json.Marshal(active)
	if err != nil {
		return fmt.Errorf("encode active counts: %w", err)
	}
	return r.withTx(ctx, func(q *Queries) error {
		if err := q.UpsertCohort(ctx, CohortRow{
			Month:      string(month),
			Acquired:   int64(c.Acquired),
			ActiveJSON: string(activeJSON),
		}); err != nil {
			return fmt.Errorf("upsert cohort %s: %w", month, err)
		}
		return q.BumpRevision(ctx)
	})
}

// Version returns the write revision counter.
func (r *Repository) Version(ctx context.Context) (string, error) {
	rev, err := r.queries.GetRevision(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: read revision: %v", core.ErrSourceUnavailable, err)
	}
	return string(r.dialect) + ":" + strconv.FormatInt(rev, 10), nil
}

func (r *Repository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func eventFromRow(row EventRow) core.Event {
	e := core.Event{
		Type:      core.EventType(row.EventType),
		Timestamp: row.OccurredAt,
	}
	if row.CustomerID.Valid {
		v := row.CustomerID.Int64
		e.CustomerID = &v
	}
	if row.Amount.Valid {
		v := row.Amount.Float64
		e.Amount = &v
	}
	if row.Description.Valid {
		v := row.Description.String
		e.Description = &v
	}
	return e
}

func cohortFromRow(row CohortRow) (core.RetentionCohort, error) {
	c := core.RetentionCohort{Acquired: uint32(row.Acquired), Active: []uint32{}}
	if strings.TrimSpace(row.ActiveJSON) == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(row.ActiveJSON), &c.Active); err != nil {
		return core.RetentionCohort{}, fmt.Errorf("%w: cohort %s: %v", core.ErrMalformedRecord, row.Month, err)
	}
	return c, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pass, _ = u.User.Password()
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("incomplete dsn: user, host and database are required")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&interpolateParams=true", user, pass, host, db), nil
	}
	return dsn, nil
}

func withMultiStatements(dsn string) string {
	if strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&multiStatements=true"
	}
	return dsn + "?multiStatements=true"
}
