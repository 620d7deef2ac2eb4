package linktoken

import (
	"context"
	"testing"
	"time"

	"memberdesk/cmd/security/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	out := f.issue(t, PurposeDocumentUpload, t0)
	ctx := context.Background()

	res, err := f.validator.Validate(ctx, out.Secret, PurposeDocumentUpload, t0.Add(6*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, OutcomeValid, res.Outcome)
	assert.Equal(t, "Jane", res.Member.FirstName)
	assert.Equal(t, out.TokenID, res.Token.ID)

	res, err = f.validator.Validate(ctx, out.Secret, PurposeDocumentUpload, out.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeValid, res.Outcome)

	res, err = f.validator.Validate(ctx, out.Secret, PurposeDocumentUpload, t0.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Outcome)
}

func TestValidator_PurposeMismatchIsNotFound(t *testing.T) {
	f := newFixture(t)
	out := f.issue(t, PurposeDocumentUpload, t0)

	res, err := f.validator.Validate(context.Background(), out.Secret, PurposeDeclarationSignature, t0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Empty(t, res.Token.ID)
}

func TestValidator_UnknownAndMalformedSecrets(t *testing.T) {
	f := newFixture(t)
	f.issue(t, PurposeDocumentUpload, t0)
	ctx := context.Background()

	unknown, err := token.NewSecret(token.DefaultSecretBytes)
	require.NoError(t, err)
	res, err := f.validator.Validate(ctx, unknown, PurposeDocumentUpload, t0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)

	before := f.store.Calls()
	for _, bad := range []string{"", "   ", "not base64 !!", "c2hvcnQ"} {
		res, err := f.validator.Validate(ctx, bad, PurposeDocumentUpload, t0)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, res.Outcome, bad)
	}
	assert.Equal(t, before, f.store.Calls())
}

func TestValidator_UsedBeatsExpired(t *testing.T) {
	f := newFixture(t)
	out := f.issue(t, PurposeDeclarationSignature, t0)
	ctx := context.Background()

	ok, err := f.store.MarkUsedIfLive(ctx, out.TokenID, t0.Add(time.Hour), nil)
	require.NoError(t, err)
	require.True(t, ok)

	for _, now := range []time.Time{t0.Add(2 * time.Hour), t0.Add(30 * 24 * time.Hour)} {
		res, err := f.validator.Validate(ctx, out.Secret, PurposeDeclarationSignature, now)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyUsed, res.Outcome)
	}
}

func TestValidator_ExpiredBeatsRevoked(t *testing.T) {
	f := newFixture(t)
	out := f.issue(t, PurposeDocumentUpload, t0)
	f.issue(t, PurposeDocumentUpload, t0.Add(time.Hour))
	ctx := context.Background()

	res, err := f.validator.Validate(ctx, out.Secret, PurposeDocumentUpload, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevoked, res.Outcome)

	res, err = f.validator.Validate(ctx, out.Secret, PurposeDocumentUpload, t0.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Outcome)
}

func TestValidator_MissingMemberIsNotFound(t *testing.T) {
	f := newFixture(t)
	out := f.issue(t, PurposeDocumentUpload, t0)
	f.members.Delete(jane().ID)

	res, err := f.validator.Validate(context.Background(), out.Secret, PurposeDocumentUpload, t0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestValidator_IsReadOnly(t *testing.T) {
	rec := &countingRecorder{}
	f := newFixture(t)
	val, err := NewValidator(f.store, f.members, WithValidatorMetrics(rec))
	require.NoError(t, err)
	out := f.issue(t, PurposeDocumentUpload, t0)
	writes := f.store.Writes()

	for i := 0; i < 5; i++ {
		res, err := val.Validate(context.Background(), out.Secret, PurposeDocumentUpload, t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, OutcomeValid, res.Outcome)
	}
	assert.Equal(t, writes, f.store.Writes())
	assert.Equal(t, 5, rec.validated[OutcomeValid])
}

func TestValidator_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	out := f.issue(t, PurposeDocumentUpload, t0)
	f.store.failFind = errBoom

	_, err := f.validator.Validate(context.Background(), out.Secret, PurposeDocumentUpload, t0)
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.ErrorIs(t, err, errBoom)
}

func TestValidator_HasherMustMatchIssuer(t *testing.T) {
	f := newFixture(t)
	out := f.issue(t, PurposeDocumentUpload, t0)

	other, err := NewValidator(f.store, f.members, WithValidatorHasher(func(s string) (string, error) {
		return token.HashHMACSHA256Hex(s, []byte("a-completely-different-hmac-key!!")), nil
	}))
	require.NoError(t, err)

	res, err := other.Validate(context.Background(), out.Secret, PurposeDocumentUpload, t0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestClassify(t *testing.T) {
	used := t0.Add(time.Hour)
	base := Token{Purpose: PurposeDocumentUpload, IssuedAt: t0, ExpiresAt: t0.Add(TTL), IsLive: true}

	cases := []struct {
		name string
		tok  func(Token) Token
		now  time.Time
		want Outcome
	}{
		{"valid", func(t Token) Token { return t }, t0, OutcomeValid},
		{"purpose", func(t Token) Token { t.Purpose = PurposeDeclarationSignature; return t }, t0, OutcomeNotFound},
		{"used_and_expired", func(t Token) Token { t.UsedAt = &used; return t }, t0.Add(30 * 24 * time.Hour), OutcomeAlreadyUsed},
		{"used_and_dead", func(t Token) Token { t.UsedAt = &used; t.IsLive = false; return t }, t0, OutcomeAlreadyUsed},
		{"expired_and_dead", func(t Token) Token { t.IsLive = false; return t }, t0.Add(8 * 24 * time.Hour), OutcomeExpired},
		{"dead", func(t Token) Token { t.IsLive = false; return t }, t0, OutcomeRevoked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.tok(base), PurposeDocumentUpload, tc.now))
		})
	}
}
