// Package sentry provides data scrubbing utilities for Sentry events
// to ensure broker credentials are not transmitted to the error tracking service.
package sentry

import (
	"regexp"

	"github.com/getsentry/sentry-go"
)

const filtered = "[Filtered]"

// sensitiveHeaders are HTTP headers that should be redacted from Sentry events.
var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// sensitiveKeys are field names that may contain sensitive data in tags, extras or breadcrumb metadata.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"username":      true,
	"passcode":      true,
	"login":         true,
	"brokerUrl":     true,
	"broker_url":    true,
	"authorization": true,
	"cookie":        true,
}

// urlUserinfo matches the user:password@ part of a URL.
var urlUserinfo = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.\-]*://)[^/@\s]+@`)

// RedactURLs replaces the userinfo of every URL inside s.
func RedactURLs(s string) string {
	return urlUserinfo.ReplaceAllString(s, "${1}"+filtered+"@")
}

// ScrubEvent removes sensitive data from a Sentry event before it is sent.
// It redacts sensitive headers, strips request bodies, scrubs keyed fields
// and removes credentials embedded in broker URLs.
func ScrubEvent(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		for header := range event.Request.Headers {
			if sensitiveHeaders[header] {
				event.Request.Headers[header] = filtered
			}
		}
		// The connect body carries the broker password.
		event.Request.Data = ""
		event.Request.QueryString = RedactURLs(event.Request.QueryString)
	}

	for key := range event.Tags {
		if sensitiveKeys[key] {
			event.Tags[key] = filtered
		}
	}

	for key := range event.Extra {
		if sensitiveKeys[key] {
			event.Extra[key] = filtered
		}
	}

	for i := range event.Breadcrumbs {
		event.Breadcrumbs[i].Message = RedactURLs(event.Breadcrumbs[i].Message)
		for key := range event.Breadcrumbs[i].Data {
			if sensitiveKeys[key] {
				event.Breadcrumbs[i].Data[key] = filtered
			}
		}
	}

	event.Message = RedactURLs(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = RedactURLs(event.Exception[i].Value)
	}

	return event
}

// ScrubTransaction applies the same scrubbing logic to transaction events.
func ScrubTransaction(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	return ScrubEvent(event, hint)
}
