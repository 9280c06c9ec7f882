// Package notify surfaces short title/description notices to end users.
//
// Every notice is returned to the HTTP client so the page can show it as a
// toast. Notifiers in this package additionally deliver it out of band (log,
// email). Delivery failures are reported to the caller, who decides whether
// they matter; the signup flow only logs them.
package notify

import (
	"context"
	"errors"
)

// Kind classifies a notice for display.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notice is a short user-facing message.
type Notice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
}

// Success builds a success notice.
func Success(title, description string) Notice {
	return Notice{Title: title, Description: description, Kind: KindSuccess}
}

// Failure builds an error notice.
func Failure(title, description string) Notice {
	return Notice{Title: title, Description: description, Kind: KindError}
}

// Info builds an informational notice.
func Info(title, description string) Notice {
	return Notice{Title: title, Description: description, Kind: KindInfo}
}

// Recipient identifies who a notice is for. Email may be empty when the
// user has not supplied one yet (provider signups before the callback).
type Recipient struct {
	UserID string
	Email  string
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, to Recipient, n Notice) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, to Recipient, n Notice) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, to Recipient, n Notice) error {
	return f(ctx, to, n)
}

// Nop discards every notice.
var Nop Notifier = Func(func(context.Context, Recipient, Notice) error { return nil })

// Multi fans a notice out to several notifiers. All notifiers are called
// even if some fail; the failures are joined.
func Multi(notifiers ...Notifier) Notifier {
	list := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			list = append(list, n)
		}
	}
	return Func(func(ctx context.Context, to Recipient, n Notice) error {
		var errs []error
		for _, nt := range list {
			if err := nt.Notify(ctx, to, n); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
