package linktoken

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
// It enforces the same invariants as the Postgres store: unique secret hashes,
// at most one live token per (member, purpose), conditional consumption.
type InMemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Token
	byHash map[string]string
	writes int
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]*Token),
		byHash: make(map[string]string),
	}
}

// Writes returns the number of successful mutations applied so far.
func (s *InMemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Snapshot returns copies of all tokens ordered by issuance.
func (s *InMemoryStore) Snapshot() []Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Token, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, cloneToken(*t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindBySecretHash implements Store.
func (s *InMemoryStore) FindBySecretHash(ctx context.Context, secretHash string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	secretHash = strings.TrimSpace(secretHash)
	if secretHash == "" {
		return Token{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[secretHash]
	if !ok {
		return Token{}, ErrNotFound
	}
	return cloneToken(*s.byID[id]), nil
}

// FindLiveByMemberAndPurpose implements Store.
func (s *InMemoryStore) FindLiveByMemberAndPurpose(ctx context.Context, memberID string, purpose Purpose) ([]Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(memberID, purpose), nil
}

// GetByID implements Store.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return Token{}, ErrNotFound
	}
	return cloneToken(*t), nil
}

// Insert implements Store.
func (s *InMemoryStore) Insert(ctx context.Context, in InsertRecord) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	if err := validateInsert(in); err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byID[in.ID]; dup {
		return Token{}, ErrConflict
	}
	if _, dup := s.byHash[in.SecretHash]; dup {
		return Token{}, ErrConflict
	}
	if len(s.liveLocked(in.MemberID, in.Purpose)) > 0 {
		return Token{}, ErrConflict
	}

	t := &Token{
		ID:         in.ID,
		MemberID:   in.MemberID,
		Purpose:    in.Purpose,
		SecretHash: in.SecretHash,
		IssuedAt:   in.IssuedAt,
		ExpiresAt:  in.ExpiresAt,
		IsLive:     true,
		IssuedBy:   in.IssuedBy,
	}
	s.byID[t.ID] = t
	s.byHash[t.SecretHash] = t.ID
	s.writes++
	return cloneToken(*t), nil
}

// Supersede implements Store.
func (s *InMemoryStore) Supersede(ctx context.Context, id string, reason string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !t.IsLive {
		return nil
	}
	t.IsLive = false
	r := reason
	at := now
	t.SupersededReason = &r
	t.SupersededAt = &at
	s.writes++
	return nil
}

// MarkUsedIfLive implements Store.
func (s *InMemoryStore) MarkUsedIfLive(ctx context.Context, id string, now time.Time, usedFromIP *string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok || t.UsedAt != nil || !t.IsLive {
		return false, nil
	}
	at := now
	t.UsedAt = &at
	t.UsedFromIP = usedFromIP
	s.writes++
	return true, nil
}

func (s *InMemoryStore) liveLocked(memberID string, purpose Purpose) []Token {
	var out []Token
	for _, t := range s.byID {
		if t.MemberID == memberID && t.Purpose == purpose && t.IsLive {
			out = append(out, cloneToken(*t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

func validateInsert(in InsertRecord) error {
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.MemberID) == "" || strings.TrimSpace(in.SecretHash) == "" {
		return ErrInvalidInput
	}
	if !in.Purpose.Valid() {
		return ErrInvalidInput
	}
	if !in.ExpiresAt.After(in.IssuedAt) {
		return ErrInvalidInput
	}
	return nil
}

func cloneToken(t Token) Token {
	out := t
	out.UsedAt = clonePtr(t.UsedAt)
	out.UsedFromIP = clonePtr(t.UsedFromIP)
	out.IssuedBy = clonePtr(t.IssuedBy)
	out.SupersededReason = clonePtr(t.SupersededReason)
	out.SupersededAt = clonePtr(t.SupersededAt)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
