package notify

import (
	"bytes"
	"html/template"
	"strings"
)

// LeadNotice describes a captured lead for the owner's notification email.
type LeadNotice struct {
	Contact     bool
	DisplayName string
	Handle      string
	BaseURL     string
	Email       string
	Name        string
	Message     string
}

var leadEmailTemplate = template.Must(template.New("lead").Parse(`<div style="font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial;">
  <h2 style="margin:0 0 12px 0;">{{.Subject}}</h2>
  <p style="margin:0 0 12px 0;"><b>From</b>: {{.Email}}{{if .Name}} ({{.Name}}){{end}}</p>
  {{- if .Message}}
  <p><b>Message</b>: {{.Message}}</p>
  {{- end}}
  <p style="margin:0 0 12px 0;"><b>Public page</b>: <a href="{{.PublicURL}}">{{.PublicURL}}</a></p>
  <p style="margin:0 0 12px 0;"><b>Inbox</b>: <a href="{{.InboxURL}}">{{.InboxURL}}</a></p>
  <hr style="border:none;border-top:1px solid #e5e7eb;margin:16px 0;" />
  <p style="margin:0;color:#6b7280;font-size:12px;">Sent by Sundae</p>
</div>
`))

// Subject returns the notification subject line.
func (n LeadNotice) Subject() string {
	if n.Contact {
		return "New message for " + n.DisplayName
	}
	return "New subscriber for " + n.DisplayName
}

// Compose renders the notice into a message addressed to the owner.
func (n LeadNotice) Compose(ownerEmail string) (Message, error) {
	base := strings.TrimRight(strings.TrimSpace(n.BaseURL), "/")
	view := struct {
		Subject   string
		Email     string
		Name      string
		Message   string
		PublicURL string
		InboxURL  string
	}{
		Subject:   n.Subject(),
		Email:     n.Email,
		Name:      n.Name,
		PublicURL: base + "/" + n.Handle,
		InboxURL:  base + "/app/leads",
	}
	if n.Contact {
		view.Message = n.Message
	}

	var body bytes.Buffer
	if err := leadEmailTemplate.Execute(&body, view); err != nil {
		return Message{}, err
	}
	message := Message{To: ownerEmail, Subject: view.Subject, HTML: body.String()}
	if n.Contact {
		message.ReplyTo = n.Email
	}
	return message, nil
}
