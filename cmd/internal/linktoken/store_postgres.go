package linktoken

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenColumns = `id, member_id, purpose, secret_hash, issued_at, expires_at, used_at,
		        used_from_ip, is_live, issued_by, superseded_reason, superseded_at`

// PostgresStore persists claim-link tokens in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "memberdesk").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "memberdesk"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "claim_tokens"}.Sanitize()
}

// FindBySecretHash fetches a token by secret hash.
func (s *PostgresStore) FindBySecretHash(ctx context.Context, secretHash string) (Token, error) {
	secretHash = strings.TrimSpace(secretHash)
	if secretHash == "" {
		return Token{}, ErrInvalidInput
	}
	var out Token
	err := pgxscan.Get(ctx, s.pool, &out,
		`SELECT `+tokenColumns+`
		   FROM `+s.table()+`
		  WHERE secret_hash = $1`,
		secretHash,
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	return out, nil
}

// FindLiveByMemberAndPurpose lists live tokens for the pair, oldest first.
func (s *PostgresStore) FindLiveByMemberAndPurpose(ctx context.Context, memberID string, purpose Purpose) ([]Token, error) {
	var out []Token
	err := pgxscan.Select(ctx, s.pool, &out,
		`SELECT `+tokenColumns+`
		   FROM `+s.table()+`
		  WHERE member_id = $1
		    AND purpose = $2
		    AND is_live
		  ORDER BY issued_at ASC`,
		memberID, string(purpose),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID fetches a token by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Token, error) {
	var out Token
	err := pgxscan.Get(ctx, s.pool, &out,
		`SELECT `+tokenColumns+`
		   FROM `+s.table()+`
		  WHERE id = $1`,
		id,
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	return out, nil
}

// Insert writes a new live token. A concurrent live token for the same pair
// trips uq_claim_tokens_live and surfaces as ErrConflict.
func (s *PostgresStore) Insert(ctx context.Context, in InsertRecord) (Token, error) {
	if err := validateInsert(in); err != nil {
		return Token{}, err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (
		     id, member_id, purpose, secret_hash, issued_at, expires_at, is_live, issued_by
		   ) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)`,
		in.ID,
		in.MemberID,
		string(in.Purpose),
		in.SecretHash,
		in.IssuedAt,
		in.ExpiresAt,
		in.IssuedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return Token{}, ErrConflict
			case pgerrcode.ForeignKeyViolation:
				return Token{}, ErrMemberNotFound
			}
		}
		return Token{}, err
	}
	return Token{
		ID:         in.ID,
		MemberID:   in.MemberID,
		Purpose:    in.Purpose,
		SecretHash: in.SecretHash,
		IssuedAt:   in.IssuedAt,
		ExpiresAt:  in.ExpiresAt,
		IsLive:     true,
		IssuedBy:   in.IssuedBy,
	}, nil
}

// Supersede marks a live token non-live. Already non-live tokens are left untouched.
func (s *PostgresStore) Supersede(ctx context.Context, id string, reason string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET is_live = FALSE,
		        superseded_reason = $2,
		        superseded_at = $3
		  WHERE id = $1
		    AND is_live`,
		id, reason, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Distinguish not-found vs already-dead.
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}

// MarkUsedIfLive consumes the token when it is still unused and live.
func (s *PostgresStore) MarkUsedIfLive(ctx context.Context, id string, now time.Time, usedFromIP *string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET used_at = $2,
		        used_from_ip = $3
		  WHERE id = $1
		    AND used_at IS NULL
		    AND is_live`,
		id, now, usedFromIP,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
