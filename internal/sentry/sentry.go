package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Init configures the global Sentry client. An empty dsn leaves reporting off.
func Init(dsn, environment string) (bool, error) {
	if dsn == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:                   dsn,
		Environment:           environment,
		SendDefaultPII:        false,
		BeforeSend:            ScrubEvent,
		BeforeSendTransaction: ScrubTransaction,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Enabled reports whether a client is configured.
func Enabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureError reports err on the request hub when present, else on the global hub.
func CaptureError(ctx context.Context, err error) {
	if err == nil || !Enabled() {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

// Flush waits for buffered events to be delivered.
func Flush() {
	if Enabled() {
		sentry.Flush(flushTimeout)
	}
}
