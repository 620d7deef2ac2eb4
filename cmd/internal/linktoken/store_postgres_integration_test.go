package linktoken

import (
	"context"
	"sync"
	"testing"
	"time"

	"memberdesk/cmd/internal/member"
	"memberdesk/cmd/internal/pgtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Lifecycle(t *testing.T) {
	pool := pgtest.Open(t)
	memberID := pgtest.InsertMember(t, pool, "Jane", "Doe", "jane@example.com")

	store, err := NewPostgresStore(pool)
	require.NoError(t, err)
	dir, err := member.NewPostgresDirectory(pool)
	require.NoError(t, err)
	iss, err := NewIssuer(store, dir, "https://portal.example.org")
	require.NoError(t, err)
	val, err := NewValidator(store, dir)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first, err := iss.Issue(ctx, IssueInput{MemberID: memberID, Purpose: PurposeDocumentUpload, Now: now})
	require.NoError(t, err)
	second, err := iss.Issue(ctx, IssueInput{MemberID: memberID, Purpose: PurposeDocumentUpload, Now: now.Add(time.Second)})
	require.NoError(t, err)

	live, err := store.FindLiveByMemberAndPurpose(ctx, memberID, PurposeDocumentUpload)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, second.TokenID, live[0].ID)

	res, err := val.Validate(ctx, first.Secret, PurposeDocumentUpload, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevoked, res.Outcome)

	res, err = val.Validate(ctx, second.Secret, PurposeDocumentUpload, now.Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, OutcomeValid, res.Outcome)
	assert.Equal(t, "Jane", res.Member.FirstName)

	ip := "198.51.100.4"
	ok, err := store.MarkUsedIfLive(ctx, second.TokenID, now.Add(3*time.Second), &ip)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.MarkUsedIfLive(ctx, second.TokenID, now.Add(4*time.Second), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	res, err = val.Validate(ctx, second.Secret, PurposeDocumentUpload, now.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyUsed, res.Outcome)

	require.ErrorIs(t, store.Supersede(ctx, "01J00000000000000000000000", ReasonRevokedByStaff, now), ErrNotFound)
}

func TestPostgresStore_LiveIndexRejectsSecondLiveToken(t *testing.T) {
	pool := pgtest.Open(t)
	memberID := pgtest.InsertMember(t, pool, "Ada", "Lovelace", "ada@example.com")
	store, err := NewPostgresStore(pool)
	require.NoError(t, err)

	now := time.Now().UTC()
	insertLive(t, store, memberID, PurposeDeclarationSignature, now)

	_, err = store.Insert(context.Background(), InsertRecord{
		ID: "01J00000000000000000000001", MemberID: memberID, Purpose: PurposeDeclarationSignature,
		SecretHash: "another-hash", IssuedAt: now, ExpiresAt: now.Add(TTL),
	})
	require.ErrorIs(t, err, ErrConflict)

	_, err = store.Insert(context.Background(), InsertRecord{
		ID: "01J00000000000000000000002", MemberID: "no-such-member", Purpose: PurposeDeclarationSignature,
		SecretHash: "third-hash", IssuedAt: now, ExpiresAt: now.Add(TTL),
	})
	require.ErrorIs(t, err, ErrMemberNotFound)
}

func TestPostgresStore_ConcurrentIssueKeepsOneLive(t *testing.T) {
	pool := pgtest.Open(t)
	memberID := pgtest.InsertMember(t, pool, "Grace", "Hopper", "grace@example.com")
	store, err := NewPostgresStore(pool)
	require.NoError(t, err)
	dir, err := member.NewPostgresDirectory(pool)
	require.NoError(t, err)
	iss, err := NewIssuer(store, dir, "https://portal.example.org")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = iss.Issue(context.Background(), IssueInput{MemberID: memberID, Purpose: PurposeDocumentUpload})
		}()
	}
	wg.Wait()

	live, err := store.FindLiveByMemberAndPurpose(context.Background(), memberID, PurposeDocumentUpload)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}
