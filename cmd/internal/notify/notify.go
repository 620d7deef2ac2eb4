// Package notify hands freshly issued claim links to whatever delivers email.
//
// Templating and delivery belong to the mailer that consumes these
// notifications; this package only publishes them.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SubjectClaimLink is the subject claim-link notifications are published on.
const SubjectClaimLink = "memberdesk.notifications.claim_link"

var ErrInvalidNotification = errors.New("invalid notification")

// Notification carries everything a mailer needs to render a claim-link email.
type Notification struct {
	MemberID  string    `json:"member_id"`
	TokenID   string    `json:"token_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	Purpose   string    `json:"purpose"`
	ClaimURL  string    `json:"claim_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (n Notification) validate() error {
	if n.MemberID == "" || n.Email == "" || n.ClaimURL == "" || n.Purpose == "" {
		return ErrInvalidNotification
	}
	return nil
}

// Dispatcher delivers a notification to the member.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// LogDispatcher logs notifications instead of delivering them (dev mode).
// The claim URL is redacted because it carries the bearer secret.
type LogDispatcher struct {
	log *slog.Logger
}

// NewLogDispatcher constructs a LogDispatcher.
func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &LogDispatcher{log: log}
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.validate(); err != nil {
		return err
	}
	d.log.InfoContext(ctx, "notify.dispatch.log",
		"member_id", n.MemberID,
		"token_id", n.TokenID,
		"purpose", n.Purpose,
		"expires_at", n.ExpiresAt,
	)
	return nil
}
