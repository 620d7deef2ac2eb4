package claimapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinStaffKeyBytes is the shortest accepted HS256 signing key.
const MinStaffKeyBytes = 32

var (
	ErrStaffKeyTooShort = errors.New("claimapi: staff signing key too short")
	ErrUnauthorized     = errors.New("claimapi: unauthorized")
)

// StaffRoles may issue and revoke claim links.
var StaffRoles = []string{"staff", "admin"}

// StaffClaims are the claims carried by a staff bearer token.
type StaffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// StaffAuth verifies HS256 staff bearer tokens minted by the back-office SSO.
type StaffAuth struct {
	key      []byte
	issuer   string
	audience string
}

// NewStaffAuth constructs a StaffAuth.
func NewStaffAuth(key, issuer, audience string) (*StaffAuth, error) {
	key = strings.TrimSpace(key)
	if len(key) < MinStaffKeyBytes {
		return nil, ErrStaffKeyTooShort
	}
	return &StaffAuth{key: []byte(key), issuer: issuer, audience: audience}, nil
}

// Sign mints a token for actorID. Used by the CLI and tests.
func (a *StaffAuth) Sign(actorID, role string, ttl time.Duration, now time.Time) (string, error) {
	claims := StaffClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}

// Verify parses and checks a bearer token.
func (a *StaffAuth) Verify(raw string) (StaffClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	var claims StaffClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return StaffClaims{}, ErrUnauthorized
	}
	if strings.TrimSpace(claims.Subject) == "" || !staffRole(claims.Role) {
		return StaffClaims{}, ErrUnauthorized
	}
	return claims, nil
}

func staffRole(role string) bool {
	for _, r := range StaffRoles {
		if strings.EqualFold(role, r) {
			return true
		}
	}
	return false
}

type actorKey struct{}

// ActorFrom returns the authenticated staff actor ID.
func ActorFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorKey{}).(string)
	return v, ok && v != ""
}

// RequireStaff rejects requests without a valid staff bearer token.
func (a *StaffAuth) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := a.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
