package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		Template     *EmailTemplate
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// EmailTemplate holds the parsed text and html variants of one email.
	EmailTemplate struct {
		Text *texttmpl.Template
		HTML *htmltmpl.Template
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages and reports the first failure
		SendMessages(messages ...*EmailMessage) error
	}
)

// MustParseEmailTemplate parses both variants of an email template, panicking on malformed input.
func MustParseEmailTemplate(name, text, html string) *EmailTemplate {
	return &EmailTemplate{
		Text: texttmpl.Must(texttmpl.New(name + ".txt").Option("missingkey=error").Parse(text)),
		HTML: htmltmpl.Must(htmltmpl.New(name + ".gohtml").Option("missingkey=error").Parse(html)),
	}
}

// Render fills TextContent and HTMLContent. frontendBaseURL is exposed to templates.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.Template == nil {
		return nil
	}
	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}

	if m.Template.Text != nil && m.BodyStr == "" {
		var buff bytes.Buffer
		if err := m.Template.Text.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering text")
		}
		m.TextContent = buff.String()
	}
	if m.Template.HTML != nil {
		var buff bytes.Buffer
		if err := m.Template.HTML.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering html")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
