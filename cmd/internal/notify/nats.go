package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSDispatcher publishes notifications to a JetStream subject.
type NATSDispatcher struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NATSOption configures NATSDispatcher.
type NATSOption func(*NATSDispatcher) error

// WithSubject overrides the publish subject (default: SubjectClaimLink).
func WithSubject(subject string) NATSOption {
	return func(d *NATSDispatcher) error {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			return errors.New("notify: empty subject")
		}
		d.subject = subject
		return nil
	}
}

// NewNATSDispatcher connects to url and binds a JetStream context.
func NewNATSDispatcher(url string, opts ...NATSOption) (*NATSDispatcher, error) {
	d := &NATSDispatcher{subject: SubjectClaimLink}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	nc, err := nats.Connect(url, nats.Name("memberdesk"))
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}
	d.conn = nc
	d.js = js
	return d, nil
}

// Dispatch implements Dispatcher. The token ID doubles as the JetStream
// message ID so a retried publish is deduplicated by the stream.
func (d *NATSDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if d == nil || d.js == nil {
		return errors.New("notify: nil dispatcher")
	}
	if err := n.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	pubOpts := []nats.PubOpt{nats.Context(ctx)}
	if n.TokenID != "" {
		pubOpts = append(pubOpts, nats.MsgId(n.TokenID))
	}
	_, err = d.js.Publish(d.subject, data, pubOpts...)
	return err
}

// Close drains the underlying connection.
func (d *NATSDispatcher) Close() {
	if d == nil || d.conn == nil {
		return
	}
	if err := d.conn.Drain(); err != nil {
		d.conn.Close()
	}
}
