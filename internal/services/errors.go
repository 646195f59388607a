package services

import (
	"errors"

	"github.com/mdobak/go-xerrors"
)

// Precondition errors. They never reach the broker and their messages are
// returned to HTTP clients verbatim.
var (
	ErrAlreadyConnected = errors.New("Already connected") //nolint:staticcheck // client-facing message
	ErrNotConnected     = errors.New("Not connected")     //nolint:staticcheck // client-facing message
)

// Broker failure sentinels, matched through errors.Is on a *BrokerError.
var (
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrSendFailed        = errors.New("send failed")
	ErrReceiveFailed     = errors.New("receive failed")
)

// Kind classifies a broker-side failure.
type Kind int

const (
	KindBrokerUnavailable Kind = iota + 1
	KindSendFailed
	KindReceiveFailed
)

func (k Kind) String() string {
	switch k {
	case KindBrokerUnavailable:
		return "broker_unavailable"
	case KindSendFailed:
		return "send_failed"
	case KindReceiveFailed:
		return "receive_failed"
	default:
		return "unknown"
	}
}

// BrokerError is a failure reported by the broker client. Its message is the
// client's message unchanged.
type BrokerError struct {
	Kind Kind
	Err  error
}

func (e *BrokerError) Error() string { return e.Err.Error() }

func (e *BrokerError) Unwrap() error { return e.Err }

// Is lets errors.Is match the sentinel for the error's kind.
func (e *BrokerError) Is(target error) bool {
	switch target {
	case ErrBrokerUnavailable:
		return e.Kind == KindBrokerUnavailable
	case ErrSendFailed:
		return e.Kind == KindSendFailed
	case ErrReceiveFailed:
		return e.Kind == KindReceiveFailed
	}
	return false
}

// newBrokerError captures the caller's stack so the log line points at the
// failing operation.
func newBrokerError(kind Kind, err error) error {
	return &BrokerError{Kind: kind, Err: xerrors.WithStackTrace(err, 1)}
}
