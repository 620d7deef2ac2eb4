package member

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads members from PostgreSQL.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// DirectoryOption configures PostgresDirectory.
type DirectoryOption func(*PostgresDirectory) error

// WithSchema sets the DB schema (default: "memberdesk").
func WithSchema(schema string) DirectoryOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool *pgxpool.Pool, opts ...DirectoryOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{pool: pool, schema: "memberdesk"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, ErrInvalidInput
	}
	return d, nil
}

// GetMember implements Directory.
func (d *PostgresDirectory) GetMember(ctx context.Context, id string) (Member, error) {
	if d == nil || d.pool == nil {
		return Member{}, ErrInvalidInput
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Member{}, ErrInvalidInput
	}

	members := pgx.Identifier{d.schema, "members"}.Sanitize()
	var m Member
	err := d.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, COALESCE(email, '')
		   FROM `+members+`
		  WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}
