package linktoken

import (
	"strings"
	"time"
)

// TTL is the fixed lifetime of a claim-link token. It is never extended.
const TTL = 7 * 24 * time.Hour

// Supersession reasons recorded on tokens that die without being used.
const (
	ReasonNewTokenIssued = "new token issued"
	ReasonRevokedByStaff = "revoked by staff"
)

// Purpose is the single action a token authorizes.
type Purpose string

const (
	PurposeDocumentUpload       Purpose = "document_upload"
	PurposeDeclarationSignature Purpose = "declaration_signature"
)

// Purposes lists every known purpose.
var Purposes = []Purpose{PurposeDocumentUpload, PurposeDeclarationSignature}

// ParsePurpose maps a wire value onto a Purpose.
func ParsePurpose(s string) (Purpose, bool) {
	switch Purpose(strings.ToLower(strings.TrimSpace(s))) {
	case PurposeDocumentUpload:
		return PurposeDocumentUpload, true
	case PurposeDeclarationSignature:
		return PurposeDeclarationSignature, true
	default:
		return "", false
	}
}

// PurposeFromPath maps a claim URL path segment onto a Purpose.
func PurposeFromPath(segment string) (Purpose, bool) {
	for _, p := range Purposes {
		if p.Path() == strings.Trim(segment, "/") {
			return p, true
		}
	}
	return "", false
}

// Path is the claim URL path segment for the purpose.
func (p Purpose) Path() string {
	switch p {
	case PurposeDocumentUpload:
		return "upload-documents"
	case PurposeDeclarationSignature:
		return "sign-declarations"
	default:
		return ""
	}
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	_, ok := ParsePurpose(string(p))
	return ok
}

// Token mirrors a memberdesk.claim_tokens row.
// The plain secret is never part of it.
type Token struct {
	ID               string     `db:"id"`
	MemberID         string     `db:"member_id"`
	Purpose          Purpose    `db:"purpose"`
	SecretHash       string     `db:"secret_hash"`
	IssuedAt         time.Time  `db:"issued_at"`
	ExpiresAt        time.Time  `db:"expires_at"`
	UsedAt           *time.Time `db:"used_at"`
	UsedFromIP       *string    `db:"used_from_ip"`
	IsLive           bool       `db:"is_live"`
	IssuedBy         *string    `db:"issued_by"`
	SupersededReason *string    `db:"superseded_reason"`
	SupersededAt     *time.Time `db:"superseded_at"`
}

// Used reports whether the claim flow has consumed the token.
func (t Token) Used() bool { return t.UsedAt != nil }

// ExpiredAt reports whether the token is past its expiry at now.
func (t Token) ExpiredAt(now time.Time) bool { return now.After(t.ExpiresAt) }

// Outcome is the result of validating a secret against an expected purpose.
type Outcome string

const (
	OutcomeNotFound    Outcome = "not_found"
	OutcomeAlreadyUsed Outcome = "already_used"
	OutcomeExpired     Outcome = "expired"
	OutcomeRevoked     Outcome = "revoked"
	OutcomeValid       Outcome = "valid"
)

// Classify applies the validation precedence to a loaded token:
// purpose match, then used, then expiry, then liveness.
// Member resolution is the caller's concern.
func Classify(t Token, expected Purpose, now time.Time) Outcome {
	switch {
	case t.Purpose != expected:
		return OutcomeNotFound
	case t.Used():
		return OutcomeAlreadyUsed
	case t.ExpiredAt(now):
		return OutcomeExpired
	case !t.IsLive:
		return OutcomeRevoked
	default:
		return OutcomeValid
	}
}
