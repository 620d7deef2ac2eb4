package claim

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"memberdesk/cmd/internal/linktoken"
	"memberdesk/cmd/internal/member"
	"memberdesk/cmd/internal/records"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultEffectTimeout = 30 * time.Second
)

var tracer = otel.Tracer("memberdesk/claim")

// Payload is the purpose-specific working data collected while Ready.
type Payload interface {
	Purpose() linktoken.Purpose
	// Complete returns FieldErrors when the payload cannot be submitted yet.
	Complete() error
}

// Claim is what a side effect sees: the token being consumed, its member,
// and the request that submitted it.
type Claim struct {
	Token  linktoken.Token
	Member member.Member
	Client ClientInfo
	Now    time.Time
}

// ClientInfo describes the submitting request as observed by the server.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Flow binds a payload type to its purpose, its blank form and its durable write.
type Flow[P Payload] struct {
	Purpose linktoken.Purpose
	// New builds the empty payload for a Ready session.
	New func(m member.Member) P
	// Effect performs the durable write and returns the activity entry to record.
	Effect func(ctx context.Context, c Claim, p P) (records.Activity, error)
}

// TokenValidator resolves a secret into a validation outcome.
type TokenValidator interface {
	Validate(ctx context.Context, secret string, expected linktoken.Purpose, now time.Time) (linktoken.Validation, error)
}

// TokenMarker consumes tokens. linktoken.Store satisfies it.
type TokenMarker interface {
	GetByID(ctx context.Context, id string) (linktoken.Token, error)
	MarkUsedIfLive(ctx context.Context, id string, now time.Time, usedFromIP *string) (bool, error)
}

// Recorder receives claim outcome counts.
type Recorder interface {
	ClaimOpened(purpose linktoken.Purpose, state State)
	ClaimSubmitted(purpose linktoken.Purpose, state State)
}

type nopRecorder struct{}

func (nopRecorder) ClaimOpened(linktoken.Purpose, State)    {}
func (nopRecorder) ClaimSubmitted(linktoken.Purpose, State) {}

type options struct {
	log           *slog.Logger
	activity      records.ActivityLog
	metrics       Recorder
	clock         func() time.Time
	storeTimeout  time.Duration
	effectTimeout time.Duration
}

// Option configures an Engine.
type Option func(*options) error

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) error {
		if log != nil {
			o.log = log
		}
		return nil
	}
}

// WithActivityLog records an activity entry for each successful claim.
func WithActivityLog(a records.ActivityLog) Option {
	return func(o *options) error {
		o.activity = a
		return nil
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(o *options) error {
		if r != nil {
			o.metrics = r
		}
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return ErrInvalidInput
		}
		o.clock = now
		return nil
	}
}

// WithStoreTimeout bounds each token store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		o.storeTimeout = d
		return nil
	}
}

// WithEffectTimeout bounds the purpose-specific durable write.
func WithEffectTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		o.effectTimeout = d
		return nil
	}
}

// Engine drives claim sessions for one purpose.
type Engine[P Payload] struct {
	opts      options
	validator TokenValidator
	tokens    TokenMarker
	flow      Flow[P]
}

// NewEngine constructs an Engine for flow.
func NewEngine[P Payload](v TokenValidator, tokens TokenMarker, flow Flow[P], opts ...Option) (*Engine[P], error) {
	if v == nil || tokens == nil || flow.New == nil || flow.Effect == nil || !flow.Purpose.Valid() {
		return nil, ErrInvalidInput
	}
	o := options{
		log:           slog.Default(),
		metrics:       nopRecorder{},
		clock:         func() time.Time { return time.Now().UTC() },
		storeTimeout:  defaultStoreTimeout,
		effectTimeout: defaultEffectTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	return &Engine[P]{opts: o, validator: v, tokens: tokens, flow: flow}, nil
}

// Purpose returns the purpose this engine serves.
func (e *Engine[P]) Purpose() linktoken.Purpose { return e.flow.Purpose }

// Open starts a session for secret. The secret is validated exactly once; a
// blank secret is Invalid without touching the store.
func (e *Engine[P]) Open(ctx context.Context, secret string) *Session[P] {
	s := &Session[P]{purpose: e.flow.Purpose, state: StateLoading}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		s.finish(StateInvalid, ReasonMissingToken)
		e.opts.metrics.ClaimOpened(e.flow.Purpose, s.state)
		return s
	}

	ctx, span := tracer.Start(ctx, "claim.Open")
	defer span.End()
	span.SetAttributes(attribute.String("memberdesk.purpose", string(e.flow.Purpose)))

	res, err := e.validator.Validate(ctx, secret, e.flow.Purpose, e.opts.clock())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validate")
		e.opts.log.ErrorContext(ctx, "claim.open.fail", "purpose", e.flow.Purpose, "err", err)
		s.finish(StateError, ReasonUnavailable)
		e.opts.metrics.ClaimOpened(e.flow.Purpose, s.state)
		return s
	}

	switch res.Outcome {
	case linktoken.OutcomeValid:
		s.token = res.Token
		s.member = res.Member
		s.payload = e.flow.New(res.Member)
		s.state = StateReady
	case linktoken.OutcomeExpired:
		s.finish(StateExpired, "")
	case linktoken.OutcomeAlreadyUsed:
		s.finish(StateAlreadyUsed, "")
	case linktoken.OutcomeRevoked:
		s.finish(StateInvalid, ReasonSuperseded)
	default:
		s.finish(StateInvalid, ReasonNotFound)
	}
	span.SetAttributes(attribute.String("memberdesk.state", string(s.state)))
	e.opts.metrics.ClaimOpened(e.flow.Purpose, s.state)
	return s
}

// Submit performs the claim: the durable write, then the conditional
// consumption of the token, then the activity entry.
//
// It returns ErrNotReady when the session is not Ready and FieldErrors when
// the payload is incomplete; in both cases the state is unchanged. Otherwise
// the returned state is Success or Error and the error is nil.
func (e *Engine[P]) Submit(ctx context.Context, s *Session[P], client ClientInfo) (State, error) {
	if s == nil {
		return "", ErrInvalidInput
	}
	if err := s.begin(); err != nil {
		return s.State(), err
	}

	ctx, span := tracer.Start(ctx, "claim.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("memberdesk.purpose", string(e.flow.Purpose)),
		attribute.String("memberdesk.token_id", s.token.ID),
	)

	state, reason := e.submit(ctx, s, client)
	s.finish(state, reason)
	if state == StateError {
		span.SetStatus(codes.Error, reason)
	}
	span.SetAttributes(attribute.String("memberdesk.state", string(state)))
	e.opts.metrics.ClaimSubmitted(e.flow.Purpose, state)
	return state, nil
}

func (e *Engine[P]) submit(ctx context.Context, s *Session[P], client ClientInfo) (State, string) {
	log := e.opts.log.With("token_id", s.token.ID, "member_id", s.member.ID, "purpose", e.flow.Purpose)
	now := e.opts.clock()
	c := Claim{Token: s.token, Member: s.member, Client: client, Now: now}

	ectx, cancel := context.WithTimeout(ctx, e.opts.effectTimeout)
	act, err := e.flow.Effect(ectx, c, s.payload)
	cancel()
	if err != nil {
		log.ErrorContext(ctx, "claim.submit.effect.fail", "err", err)
		return StateError, ReasonSubmitFailed
	}

	var ip *string
	if v := strings.TrimSpace(client.IP); v != "" {
		ip = &v
	}
	sctx, cancel := context.WithTimeout(ctx, e.opts.storeTimeout)
	won, err := e.tokens.MarkUsedIfLive(sctx, s.token.ID, now, ip)
	cancel()
	if err != nil {
		log.ErrorContext(ctx, "claim.submit.mark.fail", "err", err)
		return StateError, ReasonSubmitFailed
	}
	if !won {
		sctx, cancel := context.WithTimeout(ctx, e.opts.storeTimeout)
		cur, err := e.tokens.GetByID(sctx, s.token.ID)
		cancel()
		switch {
		case err != nil:
			log.ErrorContext(ctx, "claim.submit.reread.fail", "err", err)
			return StateError, ReasonSubmitFailed
		case cur.Used():
			// Another session consumed the token first. Our write is durable too.
			log.WarnContext(ctx, "claim.submit.double_claim")
		default:
			log.WarnContext(ctx, "claim.submit.superseded")
			return StateError, ReasonSuperseded
		}
	}

	e.appendActivity(ctx, log, act, c)
	log.InfoContext(ctx, "claim.submit.ok")
	return StateSuccess, ""
}

func (e *Engine[P]) appendActivity(ctx context.Context, log *slog.Logger, a records.Activity, c Claim) {
	if e.opts.activity == nil {
		return
	}
	a.MemberID = c.Member.ID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = c.Now
	}
	if a.Meta == nil {
		a.Meta = map[string]any{}
	}
	a.Meta["token_id"] = c.Token.ID
	if c.Client.IP != "" {
		a.Meta["ip"] = c.Client.IP
	}

	actx, cancel := context.WithTimeout(ctx, e.opts.storeTimeout)
	defer cancel()
	if err := e.opts.activity.AppendActivity(actx, a); err != nil {
		log.WarnContext(ctx, "claim.activity.fail", "action", a.ActionType, "err", err)
	}
}

// Session is one member's pass through the claim state machine. It is built
// fresh for every page load and never shared between requests.
type Session[P Payload] struct {
	mu      sync.Mutex
	purpose linktoken.Purpose
	state   State
	reason  string
	token   linktoken.Token
	member  member.Member
	payload P
}

// State returns the current state.
func (s *Session[P]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason qualifies a terminal state; empty otherwise.
func (s *Session[P]) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Purpose returns the session's purpose.
func (s *Session[P]) Purpose() linktoken.Purpose { return s.purpose }

// Member returns the resolved member. Zero unless the session reached Ready.
func (s *Session[P]) Member() member.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.member
}

// TokenID returns the resolved token ID. Empty unless the session reached Ready.
func (s *Session[P]) TokenID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.ID
}

// Payload returns the working data. It is only meaningful while Ready.
func (s *Session[P]) Payload() P {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload
}

// View renders the current state for the member.
func (s *Session[P]) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return render(s.purpose, s.state, s.reason, s.member)
}

func (s *Session[P]) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrNotReady
	}
	if err := s.payload.Complete(); err != nil {
		return err
	}
	s.state = StateSubmitting
	return nil
}

func (s *Session[P]) finish(state State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.reason = reason
}
