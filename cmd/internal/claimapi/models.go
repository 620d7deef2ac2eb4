package claimapi

import (
	"time"

	"memberdesk/cmd/internal/claim"
)

type issueRequest struct {
	MemberID string `json:"member_id" validate:"required,max=64"`
	Purpose  string `json:"purpose" validate:"required,oneof=document_upload declaration_signature"`
}

type issueResponse struct {
	TokenID    string    `json:"token_id"`
	Secret     string    `json:"secret"`
	ClaimURL   string    `json:"claim_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	Dispatched bool      `json:"dispatched"`
}

type declarationRequest struct {
	ConfirmAccuracy bool   `json:"confirm_accuracy"`
	AcceptTerms     bool   `json:"accept_terms"`
	Signature       string `json:"signature" validate:"max=200"`
}

type claimResponse struct {
	claim.View
	Fields map[string]string `json:"fields,omitempty"`
}
