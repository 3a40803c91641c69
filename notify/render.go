package notify

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/MrEthical07/dramauth"
)

// ErrUnknownKind is returned for a notification kind with no template.
var ErrUnknownKind = errors.New("notify: unknown notification kind")

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
	Link    string
}

type kindTemplate struct {
	subject string
	path    string
	body    *template.Template
}

var templates = map[dramauth.NotificationKind]kindTemplate{
	dramauth.NotifyRegistration: {
		subject: "Complete your registration",
		path:    "/register",
		body: template.Must(template.New("registration").Parse(`Hello{{with .Name}} {{.}}{{end}},

You have been invited to the club. Choose a password to finish setting up your account:

{{.Link}}

The link can be used once.
`)),
	},
	dramauth.NotifyEmailVerification: {
		subject: "Verify your email address",
		path:    "/verify-email",
		body: template.Must(template.New("verification").Parse(`Hello{{with .Name}} {{.}}{{end}},

Confirm your email address by opening this link:

{{.Link}}
`)),
	},
	dramauth.NotifyEmailChangeVerification: {
		subject: "Confirm your new email address",
		path:    "/verify-email",
		body: template.Must(template.New("email-change").Parse(`Hello{{with .Name}} {{.}}{{end}},

A change of the sign-in address to this mailbox was requested. Confirm it by opening this link:

{{.Link}}

If you did not request this, ignore this message.
`)),
	},
	dramauth.NotifyPasswordReset: {
		subject: "Reset your password",
		path:    "/reset-password",
		body: template.Must(template.New("reset").Parse(`Hello{{with .Name}} {{.}}{{end}},

Use this link to choose a new password:

{{.Link}}

If you did not request a reset, ignore this message.
`)),
	},
	dramauth.NotifyPasswordChangedNotice: {
		subject: "Your password was changed",
		body: template.Must(template.New("changed").Parse(`Hello{{with .Name}} {{.}}{{end}},

The password for your account was just changed. If this was not you, reset your password immediately.
`)),
	},
}

// Renderer turns notifications into messages whose links point below BaseURL.
type Renderer struct {
	BaseURL string
}

// Render builds the message for n.
func (r Renderer) Render(n dramauth.Notification) (Message, error) {
	tmpl, ok := templates[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}

	var link string
	if tmpl.path != "" {
		if n.Token == "" {
			return Message{}, fmt.Errorf("notify: %s notification without token", n.Kind)
		}
		link = strings.TrimRight(r.BaseURL, "/") + tmpl.path + "?token=" + url.QueryEscape(n.Token)
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, struct {
		Name string
		Link string
	}{Name: n.DisplayName, Link: link}); err != nil {
		return Message{}, fmt.Errorf("notify: render %s: %w", n.Kind, err)
	}

	return Message{
		To:      n.Email,
		Subject: tmpl.subject,
		Body:    body.String(),
		Link:    link,
	}, nil
}
