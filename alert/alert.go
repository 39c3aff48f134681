// Package alert delivers operator notifications: low balances, transfers
// that could not be funded.
package alert

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
)

// Sink delivers a single human readable message.
type Sink interface {
	Send(ctx context.Context, msg string) error
}

// Multi sends to every sink, failures of one do not stop the others.
type Multi []Sink

func (m Multi) Send(ctx context.Context, msg string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }

// Notify sends msg and only logs failures. Alerts never fail the caller.
func Notify(ctx context.Context, sink Sink, msg string) {
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, msg); err != nil {
		logger.WithFields(logger.Fields{
			"msg": msg,
			"err": err,
		}).Error("failed to send alert")
	}
}
