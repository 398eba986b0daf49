// Package mail is the email dispatch contract used by the password flows
// and the transports that satisfy it.
package mail

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/wellkeeper/internal/logging"
)

// Message is one outbound HTML email.
type Message struct {
	To      string
	From    string
	Subject string
	HTML    string
}

// Mailer delivers messages. Callers treat delivery as best effort.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipient = errors.New("mail: message has no recipient")

// LogMailer writes messages to the log instead of delivering them. It is
// the transport used when no real mail provider is wired in.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "mail")}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Info(ctx, "email dispatched", "to", msg.To, "from", msg.From, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}
