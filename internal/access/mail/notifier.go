package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
)

//go:embed templates
var templateFS embed.FS

const (
	templatePasswordReset = "password_reset"
	templateInvite        = "invite"
)

// Notifier renders token notifications and passes them to a Dispatcher.
type Notifier struct {
	Dispatcher Dispatcher
	Product    string

	html map[string]*htmltemplate.Template
	text map[string]*template.Template
}

var _ service.Notifier = (*Notifier)(nil)

// NewNotifier parses the embedded templates.
func NewNotifier(d Dispatcher, product string) (*Notifier, error) {
	n := &Notifier{
		Dispatcher: d,
		Product:    product,
		html:       make(map[string]*htmltemplate.Template),
		text:       make(map[string]*template.Template),
	}
	for _, name := range []string{templatePasswordReset, templateInvite} {
		h, err := htmltemplate.ParseFS(templateFS, "templates/base.html.tmpl", "templates/"+name+".html.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s.html.tmpl: %w", name, err)
		}
		t, err := template.ParseFS(templateFS, "templates/"+name+".txt.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s.txt.tmpl: %w", name, err)
		}
		n.html[name] = h
		n.text[name] = t
	}
	return n, nil
}

type templateData struct {
	Product   string
	Name      string
	Link      string
	Expires   string
	FirmName  string
	Role      string
	InvitedBy string
}

func (n *Notifier) SendPasswordReset(ctx context.Context, notice service.PasswordResetNotice) error {
	msg, err := n.render(templatePasswordReset, notice.To, n.Product+" password reset", templateData{
		Product: n.Product,
		Name:    notice.DisplayName,
		Link:    notice.Link,
		Expires: formatExpiry(notice.ExpiresAt),
	})
	if err != nil {
		return err
	}
	return n.Dispatcher.Deliver(ctx, msg)
}

func (n *Notifier) SendInvite(ctx context.Context, notice service.InviteNotice) error {
	msg, err := n.render(templateInvite, notice.To, "You're invited to "+notice.FirmName+" on "+n.Product, templateData{
		Product:   n.Product,
		Link:      notice.Link,
		Expires:   formatExpiry(notice.ExpiresAt),
		FirmName:  notice.FirmName,
		Role:      roleLabel(notice.Role),
		InvitedBy: notice.InvitedBy,
	})
	if err != nil {
		return err
	}
	return n.Dispatcher.Deliver(ctx, msg)
}

func (n *Notifier) render(name, to, subject string, data templateData) (Message, error) {
	var html, text bytes.Buffer
	if err := n.html[name].ExecuteTemplate(&html, "base", data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := n.text[name].Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

func formatExpiry(t time.Time) string {
	return t.UTC().Format("2 Jan 2006 15:04 MST")
}

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleAccountant:
		return "an accountant"
	case domain.RoleClient:
		return "a client"
	}
	return string(r)
}
