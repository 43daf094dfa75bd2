// Package mail renders token notifications and delivers them over SMTP.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
)

// Message is a rendered email with plain text and HTML alternatives.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Dispatcher hands a message to a transport. It makes one attempt; a failed
// delivery is returned, not retried.
type Dispatcher interface {
	Deliver(ctx context.Context, msg Message) error
}

// StageError reports which step of an SMTP exchange failed. It matches
// service.ErrDelivery under errors.Is.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{service.ErrDelivery, e.Err}
}

// LogDispatcher writes messages to the log instead of sending them. It is
// meant for local development where no mail server is available.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) Deliver(ctx context.Context, msg Message) error {
	d.Logger.InfoContext(ctx, "email not sent, no SMTP host configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Text),
	)
	return nil
}
