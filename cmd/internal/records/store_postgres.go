package records

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"memberdesk/cmd/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists documents, declarations and activity in PostgreSQL.
// File bytes are not stored here; see S3FileStore.
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

func (s *PostgresStore) ident(table string) string {
	return pgx.Identifier{s.schema, table}.Sanitize()
}

// RecordDocument inserts a member_documents row.
func (s *PostgresStore) RecordDocument(ctx context.Context, in DocumentRecord) (Document, error) {
	if strings.TrimSpace(in.MemberID) == "" || in.Location.Key == "" {
		return Document{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ID:           id,
		MemberID:     in.MemberID,
		TokenID:      in.TokenID,
		DocType:      in.DocType,
		Location:     in.Location.String(),
		OriginalName: in.OriginalName,
		ContentType:  in.ContentType,
		SizeBytes:    in.Location.Size,
		UploadedAt:   in.Now,
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.ident("member_documents")+` (
		     id, member_id, token_id, doc_type, location, sha256, original_name, content_type, size_bytes, uploaded_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID,
		doc.MemberID,
		nullIfEmpty(doc.TokenID),
		string(doc.DocType),
		doc.Location,
		nullIfEmpty(in.Location.SHA256),
		nullIfEmpty(doc.OriginalName),
		nullIfEmpty(doc.ContentType),
		doc.SizeBytes,
		doc.UploadedAt,
	)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// RecordDeclaration inserts a member_declarations row.
func (s *PostgresStore) RecordDeclaration(ctx context.Context, in SignatureFields) (Declaration, error) {
	if strings.TrimSpace(in.MemberID) == "" || strings.TrimSpace(in.Signature) == "" {
		return Declaration{}, ErrInvalidInput
	}
	if in.SignedAt.IsZero() {
		in.SignedAt = time.Now().UTC()
	}
	id, err := ids.NewULID(in.SignedAt)
	if err != nil {
		return Declaration{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.ident("member_declarations")+` (
		     id, member_id, token_id, confirm_accuracy, accept_terms, signature, signed_at, ip, user_agent
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id,
		in.MemberID,
		nullIfEmpty(in.TokenID),
		in.ConfirmAccuracy,
		in.AcceptTerms,
		in.Signature,
		in.SignedAt,
		in.IP,
		in.UserAgent,
	)
	if err != nil {
		return Declaration{}, err
	}
	return Declaration{
		ID:              id,
		MemberID:        in.MemberID,
		TokenID:         in.TokenID,
		ConfirmAccuracy: in.ConfirmAccuracy,
		AcceptTerms:     in.AcceptTerms,
		Signature:       in.Signature,
		SignedAt:        in.SignedAt,
		IP:              in.IP,
		UserAgent:       in.UserAgent,
	}, nil
}

// AppendActivity inserts an activity_log row.
func (s *PostgresStore) AppendActivity(ctx context.Context, a Activity) error {
	a.ActionType = strings.TrimSpace(a.ActionType)
	if strings.TrimSpace(a.MemberID) == "" || a.ActionType == "" {
		return ErrInvalidInput
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.ID == "" {
		id, err := ids.NewULID(a.CreatedAt)
		if err != nil {
			return err
		}
		a.ID = id
	}

	var metaVal *string
	if len(a.Meta) > 0 {
		if b, err := json.Marshal(a.Meta); err == nil {
			m := string(b)
			metaVal = &m
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.ident("activity_log")+` (
		     id, member_id, action_type, description, actor, meta, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		a.ID, a.MemberID, a.ActionType, a.Description, a.Actor, metaVal, a.CreatedAt,
	)
	return err
}

func nullIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
