// Package claim runs the member-facing side of a claim link: open the link,
// collect purpose-specific input, perform the side effect, consume the token.
//
// One generic Engine serves every purpose; only the payload type and its
// side effect differ.
package claim

import (
	"errors"
	"sort"
	"strings"
)

// State is the position of a Session in the claim state machine.
type State string

const (
	StateLoading     State = "loading"
	StateInvalid     State = "invalid"
	StateExpired     State = "expired"
	StateAlreadyUsed State = "already_used"
	StateReady       State = "ready"
	StateSubmitting  State = "submitting"
	StateSuccess     State = "success"
	StateError       State = "error"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateInvalid, StateExpired, StateAlreadyUsed, StateSuccess, StateError:
		return true
	default:
		return false
	}
}

// Reasons qualify a terminal state.
const (
	ReasonMissingToken = "missing_token"
	ReasonNotFound     = "not_found"
	ReasonSuperseded   = "superseded"
	ReasonUnavailable  = "unavailable"
	ReasonSubmitFailed = "submit_failed"
)

var (
	// ErrNotReady is returned by Submit when the session is not in StateReady.
	ErrNotReady     = errors.New("claim: session not ready")
	ErrInvalidInput = errors.New("claim: invalid input")
)

// FieldErrors maps form fields to member-facing messages. A submission that
// fails completeness returns it and leaves the session Ready.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "claim: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) orNil() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}
