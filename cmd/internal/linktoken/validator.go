package linktoken

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"memberdesk/cmd/internal/member"
	"memberdesk/cmd/security/token"

	"go.opentelemetry.io/otel/attribute"
)

// Validation is the result of Validate. Token is set for every outcome except
// NotFound; Member only for Valid.
type Validation struct {
	Outcome Outcome
	Token   Token
	Member  member.Member
}

// Valid reports whether the validation outcome permits claiming.
func (v Validation) Valid() bool { return v.Outcome == OutcomeValid }

// Validator classifies secrets. It never writes.
type Validator struct {
	log          *slog.Logger
	store        Store
	members      member.Directory
	metrics      Recorder
	hash         Hasher
	storeTimeout time.Duration
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator) error

// WithValidatorLogger sets the logger.
func WithValidatorLogger(log *slog.Logger) ValidatorOption {
	return func(v *Validator) error {
		if log != nil {
			v.log = log
		}
		return nil
	}
}

// WithValidatorMetrics sets the metrics recorder.
func WithValidatorMetrics(r Recorder) ValidatorOption {
	return func(v *Validator) error {
		if r != nil {
			v.metrics = r
		}
		return nil
	}
}

// WithValidatorHasher overrides the secret hasher.
func WithValidatorHasher(h Hasher) ValidatorOption {
	return func(v *Validator) error {
		if h == nil {
			return ErrInvalidInput
		}
		v.hash = h
		return nil
	}
}

// WithValidatorStoreTimeout bounds each store call.
func WithValidatorStoreTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		v.storeTimeout = d
		return nil
	}
}

// NewValidator constructs a Validator.
func NewValidator(store Store, members member.Directory, opts ...ValidatorOption) (*Validator, error) {
	if store == nil || members == nil {
		return nil, ErrInvalidInput
	}
	v := &Validator{
		log:          slog.Default(),
		store:        store,
		members:      members,
		metrics:      nopRecorder{},
		hash:         DefaultHasher,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Validate resolves secret for the expected purpose at now.
//
// Precedence: NotFound (unknown secret, purpose mismatch, missing member),
// AlreadyUsed, Expired, Revoked, Valid. The error return is reserved for
// infrastructure failures and is always ErrStoreUnavailable.
func (v *Validator) Validate(ctx context.Context, secret string, expected Purpose, now time.Time) (Validation, error) {
	const op = "validate"
	if v == nil || v.store == nil {
		return Validation{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Validation{}, storeUnavailable(op, err)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ctx, span := tracer.Start(ctx, "linktoken.Validate")
	defer span.End()
	span.SetAttributes(attribute.String("memberdesk.purpose", string(expected)))

	res, err := v.validate(ctx, strings.TrimSpace(secret), expected, now)
	if err != nil {
		span.RecordError(err)
		v.log.ErrorContext(ctx, "token.validate.fail", "purpose", expected, "err", err)
		return Validation{}, storeUnavailable(op, err)
	}
	span.SetAttributes(attribute.String("memberdesk.outcome", string(res.Outcome)))
	v.metrics.TokenValidated(expected, res.Outcome)
	return res, nil
}

func (v *Validator) validate(ctx context.Context, secret string, expected Purpose, now time.Time) (Validation, error) {
	notFound := Validation{Outcome: OutcomeNotFound}
	if !expected.Valid() || !token.WellFormedSecret(secret) {
		return notFound, nil
	}

	secretHash, err := v.hash(secret)
	if err != nil {
		return Validation{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, v.storeTimeout)
	tok, err := v.store.FindBySecretHash(sctx, secretHash)
	cancel()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound, nil
		}
		return Validation{}, err
	}

	outcome := Classify(tok, expected, now)
	switch outcome {
	case OutcomeNotFound:
		return notFound, nil
	case OutcomeValid:
	default:
		return Validation{Outcome: outcome, Token: tok}, nil
	}

	sctx, cancel = context.WithTimeout(ctx, v.storeTimeout)
	m, err := v.members.GetMember(sctx, tok.MemberID)
	cancel()
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return notFound, nil
		}
		return Validation{}, err
	}
	return Validation{Outcome: OutcomeValid, Token: tok, Member: m}, nil
}
