// Package notify pushes short plain-text messages to the site owner.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier delivers a plain-text message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// BestEffort logs delivery failures instead of returning them.
type BestEffort struct {
	Notifier Notifier
}

func (b BestEffort) Notify(ctx context.Context, text string) error {
	if b.Notifier == nil {
		return nil
	}
	if err := b.Notifier.Notify(ctx, text); err != nil {
		slog.WarnContext(ctx, "Notification failed", "error", err)
	}
	return nil
}
