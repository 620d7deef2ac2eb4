package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDispatcher_RedactsClaimURL(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := d.Dispatch(context.Background(), Notification{
		MemberID:  "m1",
		TokenID:   "t1",
		Email:     "jane@example.com",
		FirstName: "Jane",
		Purpose:   "declaration_signature",
		ClaimURL:  "https://portal.example/sign-declarations?token=secret-value",
		ExpiresAt: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "notify.dispatch.log")
	assert.NotContains(t, buf.String(), "secret-value")
}

func TestLogDispatcher_RejectsIncomplete(t *testing.T) {
	d := NewLogDispatcher(nil)
	err := d.Dispatch(context.Background(), Notification{MemberID: "m1"})
	require.ErrorIs(t, err, ErrInvalidNotification)
}

func TestNATSDispatcher_NilIsError(t *testing.T) {
	var d *NATSDispatcher
	require.Error(t, d.Dispatch(context.Background(), Notification{}))
	d.Close()
}

func TestWithSubject_RejectsEmpty(t *testing.T) {
	_, err := NewNATSDispatcher("nats://127.0.0.1:1", WithSubject("  "))
	require.Error(t, err)
}
