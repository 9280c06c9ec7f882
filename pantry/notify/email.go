package notify

import (
	"bytes"
	"context"
	"html/template"

	"github.com/dalemusser/docverify/pantry/email"
)

// Mailer is the subset of *email.Sender the email notifier needs.
type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

var noticeHTML = template.Must(template.New("notice").Parse(
	`<h2>{{.Title}}</h2><p>{{.Description}}</p>`,
))

// EmailNotifier mails notices to recipients that have an address.
type EmailNotifier struct {
	mailer        Mailer
	subjectPrefix string
	// kinds limits which notice kinds are mailed; empty means all.
	kinds map[Kind]bool
}

// NewEmailNotifier mails notices through m. subjectPrefix is prepended to
// the notice title to form the subject line. When kinds is non-empty only
// notices of those kinds are sent.
func NewEmailNotifier(m Mailer, subjectPrefix string, kinds ...Kind) *EmailNotifier {
	en := &EmailNotifier{mailer: m, subjectPrefix: subjectPrefix}
	if len(kinds) > 0 {
		en.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			en.kinds[k] = true
		}
	}
	return en
}

// Notify implements Notifier. Recipients without an email are skipped.
func (e *EmailNotifier) Notify(ctx context.Context, to Recipient, n Notice) error {
	if to.Email == "" {
		return nil
	}
	if e.kinds != nil && !e.kinds[n.Kind] {
		return nil
	}

	var html bytes.Buffer
	if err := noticeHTML.Execute(&html, n); err != nil {
		return err
	}

	return e.mailer.Send(ctx, email.Message{
		To:       []string{to.Email},
		Subject:  e.subjectPrefix + n.Title,
		TextBody: n.Title + "\n\n" + n.Description + "\n",
		HTMLBody: html.String(),
	})
}
