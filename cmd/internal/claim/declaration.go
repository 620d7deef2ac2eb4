package claim

import (
	"context"
	"strings"

	"memberdesk/cmd/internal/linktoken"
	"memberdesk/cmd/internal/member"
	"memberdesk/cmd/internal/records"
)

// Declaration form fields.
const (
	FieldConfirmAccuracy = "confirm_accuracy"
	FieldAcceptTerms     = "accept_terms"
	FieldSignature       = "signature"
)

// DeclarationForm holds the confirmations and typed signature for a
// declaration-signature claim.
type DeclarationForm struct {
	ConfirmAccuracy bool
	AcceptTerms     bool
	Signature       string

	expectedName string
}

// NewDeclarationForm returns an empty form that expects m's full name.
func NewDeclarationForm(m member.Member) *DeclarationForm {
	return &DeclarationForm{expectedName: m.FullName()}
}

// Purpose implements Payload.
func (f *DeclarationForm) Purpose() linktoken.Purpose { return linktoken.PurposeDeclarationSignature }

// ExpectedName is the name the signature must match.
func (f *DeclarationForm) ExpectedName() string { return f.expectedName }

// SignatureMatches compares trimmed, case-insensitively.
func (f *DeclarationForm) SignatureMatches() bool {
	sig := strings.TrimSpace(f.Signature)
	return sig != "" && strings.EqualFold(sig, strings.TrimSpace(f.expectedName))
}

// Check returns FieldErrors for every unmet requirement.
func (f *DeclarationForm) Check() error {
	fe := FieldErrors{}
	if !f.ConfirmAccuracy {
		fe[FieldConfirmAccuracy] = "Please confirm the information is accurate."
	}
	if !f.AcceptTerms {
		fe[FieldAcceptTerms] = "Please accept the terms."
	}
	switch {
	case strings.TrimSpace(f.Signature) == "":
		fe[FieldSignature] = "Please type your full name."
	case !f.SignatureMatches():
		fe[FieldSignature] = "Signature must match your full name as registered: " + f.expectedName + "."
	}
	return fe.orNil()
}

// Complete implements Payload.
func (f *DeclarationForm) Complete() error { return f.Check() }

// DeclarationFlow records the signed declaration.
func DeclarationFlow(decls records.DeclarationStore) Flow[*DeclarationForm] {
	return Flow[*DeclarationForm]{
		Purpose: linktoken.PurposeDeclarationSignature,
		New:     NewDeclarationForm,
		Effect: func(ctx context.Context, c Claim, f *DeclarationForm) (records.Activity, error) {
			in := records.SignatureFields{
				MemberID:        c.Member.ID,
				TokenID:         c.Token.ID,
				ConfirmAccuracy: f.ConfirmAccuracy,
				AcceptTerms:     f.AcceptTerms,
				Signature:       f.Signature,
				SignedAt:        c.Now,
				IP:              optional(c.Client.IP),
				UserAgent:       optional(c.Client.UserAgent),
			}
			d, err := decls.RecordDeclaration(ctx, in)
			if err != nil {
				return records.Activity{}, err
			}
			return records.Activity{
				ActionType:  records.ActionDeclarationSigned,
				Description: "Declaration signed as \"" + f.Signature + "\"",
				Meta:        map[string]any{"declaration_id": d.ID, "signature": f.Signature},
			}, nil
		},
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
