package linktoken

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"memberdesk/cmd/ids"
	"memberdesk/cmd/internal/member"
	"memberdesk/cmd/internal/notify"
	"memberdesk/cmd/internal/records"
	"memberdesk/cmd/security/token"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultStoreTimeout = 5 * time.Second
	maxIssueAttempts    = 3
)

var tracer = otel.Tracer("memberdesk/linktoken")

// Hasher turns a plain secret into the value persisted as secret_hash.
type Hasher func(secret string) (string, error)

// DefaultHasher hashes with HMAC-SHA256 when a key is configured, SHA-256 otherwise.
func DefaultHasher(secret string) (string, error) {
	return token.HashSecretHex(secret), nil
}

// Recorder receives token lifecycle counts.
type Recorder interface {
	TokenIssued(purpose Purpose)
	TokenRevoked(purpose Purpose)
	TokenValidated(purpose Purpose, outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) TokenIssued(Purpose)             {}
func (nopRecorder) TokenRevoked(Purpose)            {}
func (nopRecorder) TokenValidated(Purpose, Outcome) {}

// IssueInput describes a token issuance.
type IssueInput struct {
	MemberID string
	Purpose  Purpose
	ActorID  string
	Now      time.Time
}

// Issued is the result of a successful issuance. Secret is returned exactly once.
type Issued struct {
	TokenID    string
	MemberID   string
	Purpose    Purpose
	Secret     string
	ClaimURL   string
	ExpiresAt  time.Time
	Dispatched bool
}

// Issuer mints claim-link tokens and keeps at most one live token per
// (member, purpose).
type Issuer struct {
	log          *slog.Logger
	store        Store
	members      member.Directory
	activity     records.ActivityLog
	dispatcher   notify.Dispatcher
	metrics      Recorder
	hash         Hasher
	baseURL      *url.URL
	secretBytes  int
	storeTimeout time.Duration
}

// IssuerOption configures the Issuer.
type IssuerOption func(*Issuer) error

// WithIssuerLogger sets the logger.
func WithIssuerLogger(log *slog.Logger) IssuerOption {
	return func(i *Issuer) error {
		if log != nil {
			i.log = log
		}
		return nil
	}
}

// WithActivityLog records an "email_sent" entry for each issued token.
func WithActivityLog(a records.ActivityLog) IssuerOption {
	return func(i *Issuer) error {
		i.activity = a
		return nil
	}
}

// WithDispatcher hands each issued claim link to d.
func WithDispatcher(d notify.Dispatcher) IssuerOption {
	return func(i *Issuer) error {
		i.dispatcher = d
		return nil
	}
}

// WithIssuerMetrics sets the metrics recorder.
func WithIssuerMetrics(r Recorder) IssuerOption {
	return func(i *Issuer) error {
		if r != nil {
			i.metrics = r
		}
		return nil
	}
}

// WithHasher overrides the secret hasher. Issuer and Validator must agree.
func WithHasher(h Hasher) IssuerOption {
	return func(i *Issuer) error {
		if h == nil {
			return ErrInvalidInput
		}
		i.hash = h
		return nil
	}
}

// WithSecretBytes sets the length of generated secrets in bytes.
func WithSecretBytes(n int) IssuerOption {
	return func(i *Issuer) error {
		if n < token.MinSecretBytes {
			return ErrInvalidInput
		}
		i.secretBytes = n
		return nil
	}
}

// WithIssuerStoreTimeout bounds each store call.
func WithIssuerStoreTimeout(d time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		i.storeTimeout = d
		return nil
	}
}

// NewIssuer constructs an Issuer. baseURL is the public origin claim links
// are built on, e.g. "https://portal.example.org".
func NewIssuer(store Store, members member.Directory, baseURL string, opts ...IssuerOption) (*Issuer, error) {
	if store == nil || members == nil {
		return nil, ErrInvalidInput
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, OpError{Op: "issuer.new", Kind: ErrInvalidInput, Err: err}
	}
	i := &Issuer{
		log:          slog.Default(),
		store:        store,
		members:      members,
		metrics:      nopRecorder{},
		hash:         DefaultHasher,
		baseURL:      base,
		secretBytes:  token.DefaultSecretBytes,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// Issue supersedes every live token for the (member, purpose) pair and mints
// a fresh one. A retry after a partial failure is safe: the next attempt
// supersedes whatever the failed one left live.
func (i *Issuer) Issue(ctx context.Context, in IssueInput) (Issued, error) {
	const op = "issue"
	if i == nil || i.store == nil {
		return Issued{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}

	in.MemberID = strings.TrimSpace(in.MemberID)
	if in.MemberID == "" || !in.Purpose.Valid() {
		return Issued{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ctx, span := tracer.Start(ctx, "linktoken.Issue")
	defer span.End()
	span.SetAttributes(
		attribute.String("memberdesk.member_id", in.MemberID),
		attribute.String("memberdesk.purpose", string(in.Purpose)),
	)

	m, err := i.lookupMember(ctx, in.MemberID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return Issued{}, OpError{Op: op, Kind: ErrMemberNotFound}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "member lookup")
		i.log.ErrorContext(ctx, "token.issue.member.fail", "member_id", in.MemberID, "err", err)
		return Issued{}, storeUnavailable(op, err)
	}

	var (
		tok    Token
		secret string
	)
	for attempt := 1; ; attempt++ {
		if err := i.supersedeLive(ctx, in.MemberID, in.Purpose, ReasonNewTokenIssued, now); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "supersede")
			return Issued{}, storeUnavailable(op, err)
		}

		tok, secret, err = i.insert(ctx, in, now)
		if err == nil {
			break
		}
		if errors.Is(err, ErrMemberNotFound) {
			return Issued{}, OpError{Op: op, Kind: ErrMemberNotFound}
		}
		if errors.Is(err, ErrConflict) && attempt < maxIssueAttempts {
			// A concurrent issuance won the live slot; supersede it and retry.
			i.log.WarnContext(ctx, "token.issue.conflict", "member_id", in.MemberID, "purpose", in.Purpose, "attempt", attempt)
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert")
		i.log.ErrorContext(ctx, "token.issue.insert.fail", "member_id", in.MemberID, "purpose", in.Purpose, "err", err)
		return Issued{}, storeUnavailable(op, err)
	}

	claimURL := i.claimURL(in.Purpose, secret)
	out := Issued{
		TokenID:   tok.ID,
		MemberID:  tok.MemberID,
		Purpose:   tok.Purpose,
		Secret:    secret,
		ClaimURL:  claimURL,
		ExpiresAt: tok.ExpiresAt,
	}

	if i.dispatcher != nil {
		err := i.dispatcher.Dispatch(ctx, notify.Notification{
			MemberID:  m.ID,
			TokenID:   tok.ID,
			Email:     m.Email,
			FirstName: m.FirstName,
			Purpose:   string(tok.Purpose),
			ClaimURL:  claimURL,
			ExpiresAt: tok.ExpiresAt,
		})
		if err != nil {
			i.log.WarnContext(ctx, "token.issue.dispatch.fail", "token_id", tok.ID, "err", err)
		} else {
			out.Dispatched = true
		}
	}

	i.appendActivity(ctx, records.Activity{
		MemberID:    in.MemberID,
		ActionType:  records.ActionEmailSent,
		Description: "Claim link sent for " + string(in.Purpose),
		Actor:       actorPtr(in.ActorID),
		Meta:        map[string]any{"token_id": tok.ID, "purpose": string(in.Purpose)},
		CreatedAt:   now,
	})

	i.metrics.TokenIssued(in.Purpose)
	i.log.InfoContext(ctx, "token.issue.ok", "token_id", tok.ID, "member_id", in.MemberID, "purpose", in.Purpose)
	return out, nil
}

// Revoke supersedes a live token on staff request. Revoking a token that is
// already dead is a no-op.
func (i *Issuer) Revoke(ctx context.Context, tokenID, actorID string, now time.Time) error {
	const op = "revoke"
	if i == nil || i.store == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return OpError{Op: op, Kind: ErrInvalidInput}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ctx, span := tracer.Start(ctx, "linktoken.Revoke")
	defer span.End()

	sctx, cancel := context.WithTimeout(ctx, i.storeTimeout)
	tok, err := i.store.GetByID(sctx, tokenID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OpError{Op: op, Kind: ErrNotFound}
		}
		span.RecordError(err)
		return storeUnavailable(op, err)
	}
	if !tok.IsLive {
		return nil
	}

	sctx, cancel = context.WithTimeout(ctx, i.storeTimeout)
	err = i.store.Supersede(sctx, tok.ID, ReasonRevokedByStaff, now)
	cancel()
	if err != nil {
		span.RecordError(err)
		i.log.ErrorContext(ctx, "token.revoke.fail", "token_id", tok.ID, "err", err)
		return storeUnavailable(op, err)
	}

	i.appendActivity(ctx, records.Activity{
		MemberID:    tok.MemberID,
		ActionType:  records.ActionTokenRevoked,
		Description: "Claim link revoked for " + string(tok.Purpose),
		Actor:       actorPtr(actorID),
		Meta:        map[string]any{"token_id": tok.ID, "purpose": string(tok.Purpose)},
		CreatedAt:   now,
	})
	i.metrics.TokenRevoked(tok.Purpose)
	i.log.InfoContext(ctx, "token.revoke.ok", "token_id", tok.ID, "member_id", tok.MemberID)
	return nil
}

func (i *Issuer) lookupMember(ctx context.Context, id string) (member.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, i.storeTimeout)
	defer cancel()
	return i.members.GetMember(ctx, id)
}

func (i *Issuer) supersedeLive(ctx context.Context, memberID string, purpose Purpose, reason string, now time.Time) error {
	sctx, cancel := context.WithTimeout(ctx, i.storeTimeout)
	live, err := i.store.FindLiveByMemberAndPurpose(sctx, memberID, purpose)
	cancel()
	if err != nil {
		return err
	}
	for _, t := range live {
		sctx, cancel := context.WithTimeout(ctx, i.storeTimeout)
		err := i.store.Supersede(sctx, t.ID, reason, now)
		cancel()
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		i.log.InfoContext(ctx, "token.issue.supersede", "token_id", t.ID, "member_id", memberID, "purpose", purpose)
	}
	return nil
}

func (i *Issuer) insert(ctx context.Context, in IssueInput, now time.Time) (Token, string, error) {
	secret, err := token.NewSecret(i.secretBytes)
	if err != nil {
		return Token{}, "", err
	}
	secretHash, err := i.hash(secret)
	if err != nil {
		return Token{}, "", err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Token{}, "", err
	}

	sctx, cancel := context.WithTimeout(ctx, i.storeTimeout)
	defer cancel()
	tok, err := i.store.Insert(sctx, InsertRecord{
		ID:         id,
		MemberID:   in.MemberID,
		Purpose:    in.Purpose,
		SecretHash: secretHash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(TTL),
		IssuedBy:   actorPtr(in.ActorID),
	})
	if err != nil {
		return Token{}, "", err
	}
	return tok, secret, nil
}

func (i *Issuer) appendActivity(ctx context.Context, a records.Activity) {
	if i.activity == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, i.storeTimeout)
	defer cancel()
	if err := i.activity.AppendActivity(sctx, a); err != nil {
		i.log.WarnContext(ctx, "token.activity.fail", "member_id", a.MemberID, "action", a.ActionType, "err", err)
	}
}

// claimURL builds "<base>/<path>?token=<secret>".
func (i *Issuer) claimURL(p Purpose, secret string) string {
	u := *i.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + p.Path()
	u.RawQuery = url.Values{"token": {secret}}.Encode()
	return u.String()
}

func actorPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
