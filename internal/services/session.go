// Package services contains the broker session lifecycle behind the HTTP API.
package services

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker"
)

const (
	// ReceiveTimeout bounds every Receive call.
	ReceiveTimeout = 1000 * time.Millisecond

	// NonTextPlaceholder is returned in place of any non-text message body.
	NonTextPlaceholder = "[Non-text message received]"
)

// SessionManager owns the single broker connection of the process.
//
// Every operation that touches the broker runs under one mutex for its whole
// duration, including a blocking connect and the receive timeout, so broker
// client calls never overlap and no caller sees a half-built session.
//
// The producer and consumer are created on first use and bound to the queue
// named in that first call; later calls reuse them whatever queue they name.
type SessionManager struct {
	factory        broker.ConnectionFactory
	receiveTimeout time.Duration

	mu         sync.Mutex
	connected  atomic.Bool // written only while mu is held
	connection broker.Connection
	session    broker.Session
	producer   broker.Producer
	consumer   broker.Consumer
}

// NewSessionManager creates a disconnected SessionManager that opens
// connections through factory.
func NewSessionManager(factory broker.ConnectionFactory) *SessionManager {
	return &SessionManager{
		factory:        factory,
		receiveTimeout: ReceiveTimeout,
	}
}

// Connect opens a connection and an auto-acknowledge session. A non-empty
// username selects an authenticated connection.
func (m *SessionManager) Connect(brokerURL, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected.Load() {
		return ErrAlreadyConnected
	}

	conn, err := m.factory.CreateConnection(brokerURL, username, password)
	if err != nil {
		return newBrokerError(KindBrokerUnavailable, err)
	}

	if err := conn.Start(); err != nil {
		m.abandon(conn)
		return newBrokerError(KindBrokerUnavailable, err)
	}

	sess, err := conn.CreateSession(false, broker.AutoAcknowledge)
	if err != nil {
		m.abandon(conn)
		return newBrokerError(KindBrokerUnavailable, err)
	}

	m.connection = conn
	m.session = sess
	m.connected.Store(true)

	slog.Info("connected to broker",
		slog.String("broker_url", broker.Redact(brokerURL)),
		slog.Bool("authenticated", username != ""),
	)
	return nil
}

// abandon closes a connection that never became the active one.
func (m *SessionManager) abandon(conn broker.Connection) {
	if err := conn.Close(); err != nil {
		slog.Debug("ignoring close error on failed connect", slog.Any("error", err))
	}
}

// Disconnect closes producer, consumer, session and connection in that order.
// Close failures are logged and dropped; the manager always ends up
// disconnected.
func (m *SessionManager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected.Load() {
		return ErrNotConnected
	}
	m.teardown()
	slog.Info("disconnected from broker")
	return nil
}

// teardown releases every handle. Callers hold mu.
func (m *SessionManager) teardown() {
	closeQuietly("producer", m.producer)
	closeQuietly("consumer", m.consumer)
	closeQuietly("session", m.session)
	closeQuietly("connection", m.connection)

	m.producer = nil
	m.consumer = nil
	m.session = nil
	m.connection = nil
	m.connected.Store(false)
}

type closer interface {
	Close() error
}

func closeQuietly(name string, c closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Debug("ignoring close error", slog.String("handle", name), slog.Any("error", err))
	}
}

// Send publishes text as a text message to queueName.
func (m *SessionManager) Send(queueName, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected.Load() {
		return ErrNotConnected
	}

	dest, err := m.session.CreateQueue(queueName)
	if err != nil {
		return newBrokerError(KindSendFailed, err)
	}
	if m.producer == nil {
		p, err := m.session.CreateProducer(dest)
		if err != nil {
			return newBrokerError(KindSendFailed, err)
		}
		m.producer = p
	}

	msg, err := m.session.CreateTextMessage(text)
	if err != nil {
		return newBrokerError(KindSendFailed, err)
	}
	if err := m.producer.Send(msg); err != nil {
		return newBrokerError(KindSendFailed, err)
	}
	return nil
}

// Receive waits up to the receive timeout for one message from queueName.
// ok is false when nothing arrived in time. Non-text messages come back as
// NonTextPlaceholder.
func (m *SessionManager) Receive(queueName string) (text string, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected.Load() {
		return "", false, ErrNotConnected
	}

	dest, err := m.session.CreateQueue(queueName)
	if err != nil {
		return "", false, newBrokerError(KindReceiveFailed, err)
	}
	if m.consumer == nil {
		c, err := m.session.CreateConsumer(dest)
		if err != nil {
			return "", false, newBrokerError(KindReceiveFailed, err)
		}
		m.consumer = c
	}

	msg, err := m.consumer.Receive(m.receiveTimeout)
	if err != nil {
		return "", false, newBrokerError(KindReceiveFailed, err)
	}
	if msg == nil {
		return "", false, nil
	}
	if tm, isText := msg.(*broker.TextMessage); isText {
		return tm.Text, true, nil
	}
	return NonTextPlaceholder, true, nil
}

// IsConnected reports the connection state without waiting on the mutex.
func (m *SessionManager) IsConnected() bool {
	return m.connected.Load()
}

// Close is the shutdown hook: it disconnects if connected and never fails.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected.Load() {
		m.teardown()
		slog.Info("broker session closed on shutdown")
	}
	return nil
}
