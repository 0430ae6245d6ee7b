package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/vyrodovalexey/avagate/internal/auth"
)

const tracerName = "avagate/store"

const schema = `
CREATE TABLE IF NOT EXISTS principals (
    id            TEXT PRIMARY KEY,
    display_name  TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
    role          TEXT NOT NULL,
    active        INTEGER NOT NULL DEFAULT 1,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_principals_created_at
    ON principals(created_at);
`

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const principalColumns = `id, display_name, email, role, active, password_hash, created_at, updated_at`

// SQLiteStore persists principals in SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at dsn and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite dsn is empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps in-memory databases shared and serializes
	// writers the way SQLite expects.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "sqlite")),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !isExpected(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*auth.Principal, error) {
	var (
		p                auth.Principal
		role             string
		active           int
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.DisplayName, &p.Email, &role, &active, &p.PasswordHash, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	p.Role = auth.Role(role)
	p.Active = active != 0

	var err error
	if p.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IsTransient reports SQLite errors that clear once another connection
// releases its lock.
func IsTransient(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// LookupActivePrincipal implements auth.PrincipalLookup.
func (s *SQLiteStore) LookupActivePrincipal(ctx context.Context, id string) (p *auth.Principal, err error) {
	ctx, span := s.span(ctx, "LookupActivePrincipal")
	defer func() { endSpan(span, err) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ? AND active = 1`, id)
	return scanPrincipal(row)
}

// LookupByEmail implements auth.PrincipalStore.
func (s *SQLiteStore) LookupByEmail(ctx context.Context, email string) (p *auth.Principal, err error) {
	ctx, span := s.span(ctx, "LookupByEmail")
	defer func() { endSpan(span, err) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = ?`, NormalizeEmail(email))
	return scanPrincipal(row)
}

// Get implements auth.PrincipalStore.
func (s *SQLiteStore) Get(ctx context.Context, id string) (p *auth.Principal, err error) {
	ctx, span := s.span(ctx, "Get")
	defer func() { endSpan(span, err) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	return scanPrincipal(row)
}

// List implements auth.PrincipalStore.
func (s *SQLiteStore) List(ctx context.Context) (out []*auth.Principal, err error) {
	ctx, span := s.span(ctx, "List")
	defer func() { endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	return out, nil
}

// Create implements auth.PrincipalStore.
func (s *SQLiteStore) Create(ctx context.Context, p *auth.Principal) (err error) {
	ctx, span := s.span(ctx, "Create")
	defer func() { endSpan(span, err) }()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO principals (`+principalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DisplayName, NormalizeEmail(p.Email), string(p.Role), boolInt(p.Active),
		p.PasswordHash, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

// Update implements auth.PrincipalStore.
func (s *SQLiteStore) Update(ctx context.Context, p *auth.Principal) (err error) {
	ctx, span := s.span(ctx, "Update")
	defer func() { endSpan(span, err) }()

	res, err := s.db.ExecContext(ctx,
		`UPDATE principals
		    SET display_name = ?, email = ?, role = ?, active = ?, password_hash = ?, updated_at = ?
		  WHERE id = ?`,
		p.DisplayName, NormalizeEmail(p.Email), string(p.Role), boolInt(p.Active),
		p.PasswordHash, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("update principal: %w", err)
	}
	return requireOneRow(res)
}

// Deactivate implements auth.PrincipalStore.
func (s *SQLiteStore) Deactivate(ctx context.Context, id string) (err error) {
	ctx, span := s.span(ctx, "Deactivate")
	defer func() { endSpan(span, err) }()

	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET active = 0, updated_at = ? WHERE id = ?`,
		formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("deactivate principal: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return auth.ErrPrincipalNotFound
	}
	return nil
}

// Ping implements auth.PrincipalStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements auth.PrincipalStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
