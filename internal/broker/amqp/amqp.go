// Package amqp is the AMQP 0.9.1 driver. A session maps onto a channel, a
// queue onto a declared queue published through the default exchange.
package amqp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker"
)

// Default values.
const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultHeartbeat      = 30 * time.Second
	DefaultPublishTimeout = 5 * time.Second

	textContentType = "text/plain"
)

// Schemes lists the URL schemes this driver serves.
var Schemes = []string{"amqp", "amqps"}

// Factory opens AMQP 0.9.1 connections.
type Factory struct {
	DialTimeout    time.Duration
	Heartbeat      time.Duration
	PublishTimeout time.Duration
}

// New creates a Factory. Zero durations fall back to the defaults.
func New(dialTimeout, heartbeat time.Duration) *Factory {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Factory{
		DialTimeout:    dialTimeout,
		Heartbeat:      heartbeat,
		PublishTimeout: DefaultPublishTimeout,
	}
}

// CreateConnection implements broker.ConnectionFactory. A username selects
// PLAIN authentication; without one the connection logs in with SASL
// ANONYMOUS rather than the client library's guest default.
func (f *Factory) CreateConnection(brokerURL, username, password string) (broker.Connection, error) {
	u, err := broker.ParseURL(brokerURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(u.String(), f.config(username, password))
	if err != nil {
		return nil, err
	}
	return &connection{conn: conn, publishTimeout: f.PublishTimeout}, nil
}

func (f *Factory) config(username, password string) amqp091.Config {
	cfg := amqp091.Config{
		Heartbeat: f.Heartbeat,
		Dial:      amqp091.DefaultDial(f.DialTimeout),
		SASL:      []amqp091.Authentication{anonymousAuth{}},
	}
	if username != "" {
		cfg.SASL = []amqp091.Authentication{&amqp091.PlainAuth{Username: username, Password: password}}
	}
	return cfg
}

// anonymousAuth is the SASL ANONYMOUS mechanism.
type anonymousAuth struct{}

func (anonymousAuth) Mechanism() string { return "ANONYMOUS" }

func (anonymousAuth) Response() string { return "" }

type connection struct {
	conn           *amqp091.Connection
	publishTimeout time.Duration
	started        atomic.Bool
}

// Start is a marker only; AMQP delivery begins on basic.consume.
func (c *connection) Start() error {
	if c.conn.IsClosed() {
		return broker.ErrClosed
	}
	c.started.Store(true)
	return nil
}

func (c *connection) CreateSession(transacted bool, ack broker.AckMode) (broker.Session, error) {
	if err := broker.CheckSessionMode(transacted, ack); err != nil {
		return nil, err
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	// At most one unacknowledged delivery is pushed to the client; the rest
	// stay on the broker until Receive acks the current one.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, err
	}
	return &session{ch: ch, publishTimeout: c.publishTimeout}, nil
}

func (c *connection) Close() error {
	return c.conn.Close()
}

type session struct {
	ch             *amqp091.Channel
	publishTimeout time.Duration
}

func (s *session) CreateQueue(name string) (*broker.Queue, error) {
	if name == "" {
		return nil, broker.ErrEmptyQueueName
	}
	q, err := s.ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &broker.Queue{Name: q.Name}, nil
}

func (s *session) CreateProducer(dest *broker.Queue) (broker.Producer, error) {
	if s.ch.IsClosed() {
		return nil, broker.ErrClosed
	}
	return &producer{session: s, queue: dest.Name}, nil
}

func (s *session) CreateConsumer(dest *broker.Queue) (broker.Consumer, error) {
	tag := "broker-api-" + uuid.NewString()
	deliveries, err := s.ch.Consume(dest.Name, tag, false, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &consumer{ch: s.ch, tag: tag, deliveries: deliveries}, nil
}

func (s *session) CreateTextMessage(text string) (*broker.TextMessage, error) {
	if s.ch.IsClosed() {
		return nil, broker.ErrClosed
	}
	return &broker.TextMessage{Text: text}, nil
}

func (s *session) Close() error {
	return s.ch.Close()
}

type producer struct {
	session *session
	queue   string
	closed  atomic.Bool
}

func (p *producer) Send(msg broker.Message) error {
	if p.closed.Load() {
		return broker.ErrClosed
	}
	pub, err := publishing(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.session.publishTimeout)
	defer cancel()
	return p.session.ch.PublishWithContext(ctx, "", p.queue, false, false, pub)
}

func (p *producer) Close() error {
	if p.closed.Swap(true) {
		return broker.ErrClosed
	}
	return nil
}

func publishing(msg broker.Message) (amqp091.Publishing, error) {
	pub := amqp091.Publishing{
		MessageId: msg.MessageID(),
		Timestamp: time.Now(),
	}
	if pub.MessageId == "" {
		pub.MessageId = "ID:" + uuid.NewString()
	}

	switch m := msg.(type) {
	case *broker.TextMessage:
		pub.ContentType = textContentType
		pub.Body = []byte(m.Text)
	case *broker.BytesMessage:
		pub.ContentType = m.ContentType
		if pub.ContentType == "" {
			pub.ContentType = "application/octet-stream"
		}
		pub.Body = m.Body
	default:
		return amqp091.Publishing{}, fmt.Errorf("%w: %T", broker.ErrUnsupportedMsg, msg)
	}
	return pub, nil
}

type consumer struct {
	ch         *amqp091.Channel
	tag        string
	deliveries <-chan amqp091.Delivery
	once       sync.Once
}

func (c *consumer) Receive(timeout time.Duration) (broker.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d, ok := <-c.deliveries:
		if !ok {
			return nil, fmt.Errorf("delivery channel closed: %w", broker.ErrClosed)
		}
		// Acked on hand-off; anything still buffered at close is requeued.
		if err := d.Ack(false); err != nil {
			return nil, err
		}
		return convert(d), nil
	case <-timer.C:
		return nil, nil
	}
}

func (c *consumer) Close() error {
	err := broker.ErrClosed
	c.once.Do(func() {
		err = c.ch.Cancel(c.tag, false)
	})
	return err
}

func convert(d amqp091.Delivery) broker.Message {
	if isText(d.ContentType) {
		return &broker.TextMessage{ID: d.MessageId, Text: string(d.Body)}
	}
	return &broker.BytesMessage{ID: d.MessageId, ContentType: d.ContentType, Body: d.Body}
}

func isText(contentType string) bool {
	return contentType == "" || strings.HasPrefix(contentType, "text/")
}
