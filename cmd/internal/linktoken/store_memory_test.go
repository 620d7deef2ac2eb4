package linktoken

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"memberdesk/cmd/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertLive(t *testing.T, s Store, memberID string, p Purpose, now time.Time) Token {
	t.Helper()
	tok, err := s.Insert(context.Background(), InsertRecord{
		ID:         ids.MustULID(now),
		MemberID:   memberID,
		Purpose:    p,
		SecretHash: ids.MustULID(now),
		IssuedAt:   now,
		ExpiresAt:  now.Add(TTL),
	})
	require.NoError(t, err)
	return tok
}

func TestInMemoryStore_OneLivePerPair(t *testing.T) {
	s := NewInMemoryStore()
	insertLive(t, s, "m1", PurposeDocumentUpload, t0)
	insertLive(t, s, "m1", PurposeDeclarationSignature, t0)

	_, err := s.Insert(context.Background(), InsertRecord{
		ID: "x", MemberID: "m1", Purpose: PurposeDocumentUpload, SecretHash: "h",
		IssuedAt: t0, ExpiresAt: t0.Add(TTL),
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestInMemoryStore_InsertValidation(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Insert(context.Background(), InsertRecord{ID: "x", MemberID: "m1", Purpose: PurposeDocumentUpload, SecretHash: "h", IssuedAt: t0, ExpiresAt: t0})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Insert(context.Background(), InsertRecord{ID: "x", MemberID: "m1", Purpose: "other", SecretHash: "h", IssuedAt: t0, ExpiresAt: t0.Add(TTL)})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestInMemoryStore_Supersede(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tok := insertLive(t, s, "m1", PurposeDocumentUpload, t0)

	require.NoError(t, s.Supersede(ctx, tok.ID, ReasonNewTokenIssued, t0.Add(time.Minute)))
	writes := s.Writes()
	require.NoError(t, s.Supersede(ctx, tok.ID, ReasonRevokedByStaff, t0.Add(time.Hour)))
	assert.Equal(t, writes, s.Writes())

	got, err := s.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonNewTokenIssued, *got.SupersededReason)

	require.ErrorIs(t, s.Supersede(ctx, "missing", ReasonNewTokenIssued, t0), ErrNotFound)

	live, err := s.FindLiveByMemberAndPurpose(ctx, "m1", PurposeDocumentUpload)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestInMemoryStore_MarkUsedIfLive(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	tok := insertLive(t, s, "m1", PurposeDeclarationSignature, t0)
	ip := "203.0.113.7"

	ok, err := s.MarkUsedIfLive(ctx, tok.ID, t0.Add(time.Hour), &ip)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkUsedIfLive(ctx, tok.ID, t0.Add(2*time.Hour), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UsedAt)
	assert.Equal(t, t0.Add(time.Hour), *got.UsedAt)
	assert.Equal(t, ip, *got.UsedFromIP)

	dead := insertLive(t, s, "m2", PurposeDeclarationSignature, t0)
	require.NoError(t, s.Supersede(ctx, dead.ID, ReasonNewTokenIssued, t0))
	ok, err = s.MarkUsedIfLive(ctx, dead.ID, t0, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryStore_ConcurrentMarkUsedHasOneWinner(t *testing.T) {
	s := NewInMemoryStore()
	tok := insertLive(t, s, "m1", PurposeDocumentUpload, t0)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkUsedIfLive(context.Background(), tok.ID, t0.Add(time.Minute), nil)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	tok := insertLive(t, s, "m1", PurposeDocumentUpload, t0)

	got, err := s.GetByID(context.Background(), tok.ID)
	require.NoError(t, err)
	got.IsLive = false

	again, err := s.GetByID(context.Background(), tok.ID)
	require.NoError(t, err)
	assert.True(t, again.IsLive)
}
