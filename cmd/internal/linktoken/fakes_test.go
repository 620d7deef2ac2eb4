package linktoken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memberdesk/cmd/internal/member"
	"memberdesk/cmd/internal/notify"
	"memberdesk/cmd/internal/records"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// faultyStore wraps InMemoryStore with per-operation fault injection.
type faultyStore struct {
	*InMemoryStore

	mu            sync.Mutex
	calls         int
	failFind      error
	failInsert    error
	conflictsLeft int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{InMemoryStore: NewInMemoryStore()}
}

func (s *faultyStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *faultyStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *faultyStore) FindBySecretHash(ctx context.Context, h string) (Token, error) {
	s.hit()
	if s.failFind != nil {
		return Token{}, s.failFind
	}
	return s.InMemoryStore.FindBySecretHash(ctx, h)
}

func (s *faultyStore) FindLiveByMemberAndPurpose(ctx context.Context, memberID string, p Purpose) ([]Token, error) {
	s.hit()
	return s.InMemoryStore.FindLiveByMemberAndPurpose(ctx, memberID, p)
}

func (s *faultyStore) Insert(ctx context.Context, in InsertRecord) (Token, error) {
	s.hit()
	s.mu.Lock()
	failInsert := s.failInsert
	conflict := s.conflictsLeft > 0
	if conflict {
		s.conflictsLeft--
	}
	s.mu.Unlock()
	if failInsert != nil {
		return Token{}, failInsert
	}
	if conflict {
		// Simulate a concurrent issuer winning the live slot between supersede and insert.
		_, err := s.InMemoryStore.Insert(ctx, InsertRecord{
			ID:         in.ID + "-racer",
			MemberID:   in.MemberID,
			Purpose:    in.Purpose,
			SecretHash: in.SecretHash + "-racer",
			IssuedAt:   in.IssuedAt,
			ExpiresAt:  in.ExpiresAt,
		})
		if err != nil {
			return Token{}, err
		}
		return Token{}, ErrConflict
	}
	return s.InMemoryStore.Insert(ctx, in)
}

type failingActivity struct{}

func (failingActivity) AppendActivity(context.Context, records.Activity) error { return errBoom }

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

type countingRecorder struct {
	mu        sync.Mutex
	issued    int
	revoked   int
	validated map[Outcome]int
}

func (r *countingRecorder) TokenIssued(Purpose) {
	r.mu.Lock()
	r.issued++
	r.mu.Unlock()
}

func (r *countingRecorder) TokenRevoked(Purpose) {
	r.mu.Lock()
	r.revoked++
	r.mu.Unlock()
}

func (r *countingRecorder) TokenValidated(_ Purpose, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.validated == nil {
		r.validated = make(map[Outcome]int)
	}
	r.validated[o]++
}

type fixture struct {
	store     *faultyStore
	members   *member.InMemoryDirectory
	records   *records.InMemoryStore
	issuer    *Issuer
	validator *Validator
}

func jane() member.Member {
	return member.Member{ID: "m-jane", FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}
}

func newFixture(t *testing.T, opts ...IssuerOption) fixture {
	t.Helper()
	f := fixture{
		store:   newFaultyStore(),
		members: member.NewInMemoryDirectory(jane()),
		records: records.NewInMemoryStore(),
	}
	all := append([]IssuerOption{WithActivityLog(f.records)}, opts...)
	iss, err := NewIssuer(f.store, f.members, "https://portal.example.org", all...)
	require.NoError(t, err)
	val, err := NewValidator(f.store, f.members)
	require.NoError(t, err)
	f.issuer = iss
	f.validator = val
	return f
}

func (f fixture) issue(t *testing.T, p Purpose, now time.Time) Issued {
	t.Helper()
	out, err := f.issuer.Issue(context.Background(), IssueInput{MemberID: jane().ID, Purpose: p, ActorID: "staff-1", Now: now})
	require.NoError(t, err)
	return out
}
