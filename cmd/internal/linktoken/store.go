package linktoken

import (
	"context"
	"time"
)

// InsertRecord is a normalized token insert payload.
type InsertRecord struct {
	ID         string
	MemberID   string
	Purpose    Purpose
	SecretHash string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	IssuedBy   *string
}

// Store is the persistence boundary for claim-link tokens.
//
// Requirements:
//   - FindBySecretHash returns ErrNotFound for unknown hashes.
//   - Insert fails with ErrConflict when a live token already exists for the
//     (member, purpose) pair.
//   - Supersede is idempotent: superseding a non-live token is a no-op.
//   - MarkUsedIfLive is a single conditional write
//     (used_at IS NULL AND is_live); it reports whether this call won.
type Store interface {
	FindBySecretHash(ctx context.Context, secretHash string) (Token, error)
	FindLiveByMemberAndPurpose(ctx context.Context, memberID string, purpose Purpose) ([]Token, error)
	GetByID(ctx context.Context, id string) (Token, error)
	Insert(ctx context.Context, in InsertRecord) (Token, error)
	Supersede(ctx context.Context, id string, reason string, now time.Time) error
	MarkUsedIfLive(ctx context.Context, id string, now time.Time, usedFromIP *string) (bool, error)
}
