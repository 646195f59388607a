// Package broker defines the messaging client surface the service talks to.
// Wire protocols live in the driver subpackages (stomp, amqp, mqtt); this package
// only holds the shared handle interfaces, message types, the scheme-based
// Connector and an in-process driver for local development.
package broker

import (
	"errors"
	"time"
)

// AckMode controls how received messages are acknowledged.
type AckMode int

const (
	// AutoAcknowledge confirms a message as soon as it is delivered to a consumer.
	AutoAcknowledge AckMode = iota + 1
	// ClientAcknowledge is declared for completeness; no driver supports it.
	ClientAcknowledge
)

// Common driver errors.
var (
	ErrClosed            = errors.New("handle is closed")
	ErrTransacted        = errors.New("transacted sessions are not supported")
	ErrUnsupportedAck    = errors.New("only auto-acknowledge sessions are supported")
	ErrUnsupportedScheme = errors.New("unsupported broker URL scheme")
	ErrInvalidURL        = errors.New("invalid broker URL")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrEmptyQueueName    = errors.New("queue name cannot be empty")
	ErrUnsupportedMsg    = errors.New("unsupported message type")
)

// ConnectionFactory creates broker connections. An empty username means an
// anonymous connection.
type ConnectionFactory interface {
	CreateConnection(brokerURL, username, password string) (Connection, error)
}

// Connection is a live link to a broker. Delivery to consumers only begins
// after Start.
type Connection interface {
	Start() error
	CreateSession(transacted bool, ack AckMode) (Session, error)
	Close() error
}

// Session scopes producers, consumers and acknowledgement.
type Session interface {
	CreateQueue(name string) (*Queue, error)
	CreateProducer(dest *Queue) (Producer, error)
	CreateConsumer(dest *Queue) (Consumer, error)
	CreateTextMessage(text string) (*TextMessage, error)
	Close() error
}

// Producer sends messages to the destination it was created for.
type Producer interface {
	Send(msg Message) error
	Close() error
}

// Consumer receives messages from the destination it was created for.
// Receive returns a nil Message and a nil error when the timeout elapses
// with nothing delivered.
type Consumer interface {
	Receive(timeout time.Duration) (Message, error)
	Close() error
}

// Queue is a named point-to-point destination.
type Queue struct {
	Name string
}

// Message is any message delivered by a broker.
type Message interface {
	MessageID() string
}

// TextMessage carries a string payload.
type TextMessage struct {
	ID   string
	Text string
}

// MessageID implements Message.
func (m *TextMessage) MessageID() string { return m.ID }

// BytesMessage carries an opaque payload. Drivers return it for anything they
// cannot classify as text.
type BytesMessage struct {
	ID          string
	ContentType string
	Body        []byte
}

// MessageID implements Message.
func (m *BytesMessage) MessageID() string { return m.ID }

// CheckSessionMode rejects the session modes no driver implements.
func CheckSessionMode(transacted bool, ack AckMode) error {
	if transacted {
		return ErrTransacted
	}
	if ack != AutoAcknowledge {
		return ErrUnsupportedAck
	}
	return nil
}
