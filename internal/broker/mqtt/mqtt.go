// Package mqtt is the MQTT driver. Queue names are used as topics; the
// producer publishes and the consumer subscribes at QoS 1.
package mqtt

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker"
)

// Default values.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultKeepAlive         = 30 * time.Second
	DefaultClientIDPrefix    = "broker-api"
	defaultQoS               = 1
	defaultOperationTimeout  = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	consumerBuffer           = 64
)

// Schemes lists the URL schemes this driver serves.
var Schemes = []string{"mqtt", "mqtts", "ws", "wss"}

// Factory opens MQTT connections.
type Factory struct {
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	ClientIDPrefix string
}

// New creates a Factory. Zero values fall back to the defaults.
func New(connectTimeout, keepAlive time.Duration, clientIDPrefix string) *Factory {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	if clientIDPrefix == "" {
		clientIDPrefix = DefaultClientIDPrefix
	}
	return &Factory{
		ConnectTimeout: connectTimeout,
		KeepAlive:      keepAlive,
		ClientIDPrefix: clientIDPrefix,
	}
}

// CreateConnection implements broker.ConnectionFactory.
func (f *Factory) CreateConnection(brokerURL, username, password string) (broker.Connection, error) {
	u, err := broker.ParseURL(brokerURL)
	if err != nil {
		return nil, err
	}
	user, pass := broker.Credentials(u, username, password)

	opts := f.clientOptions(u.String(), user, pass)
	client := pahomqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(f.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect timeout after %v", f.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return &connection{client: client}, nil
}

func (f *Factory) clientOptions(brokerURL, user, pass string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(f.ClientIDPrefix + "-" + uuid.NewString()[:8]).
		SetConnectTimeout(f.ConnectTimeout).
		SetKeepAlive(f.KeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(false)
	if user != "" {
		opts.SetUsername(user)
		opts.SetPassword(pass)
	}
	return opts
}

type connection struct {
	client  pahomqtt.Client
	started atomic.Bool
	closed  atomic.Bool
}

// Start is a marker only; MQTT delivery begins on SUBSCRIBE.
func (c *connection) Start() error {
	if c.closed.Load() {
		return broker.ErrClosed
	}
	c.started.Store(true)
	return nil
}

func (c *connection) CreateSession(transacted bool, ack broker.AckMode) (broker.Session, error) {
	if c.closed.Load() {
		return nil, broker.ErrClosed
	}
	if err := broker.CheckSessionMode(transacted, ack); err != nil {
		return nil, err
	}
	return &session{conn: c}, nil
}

func (c *connection) Close() error {
	if c.closed.Swap(true) {
		return broker.ErrClosed
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

type session struct {
	conn   *connection
	closed atomic.Bool
}

func (s *session) usable() error {
	if s.closed.Load() || s.conn.closed.Load() {
		return broker.ErrClosed
	}
	return nil
}

func (s *session) CreateQueue(name string) (*broker.Queue, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, broker.ErrEmptyQueueName
	}
	return &broker.Queue{Name: name}, nil
}

func (s *session) CreateProducer(dest *broker.Queue) (broker.Producer, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return &producer{session: s, topic: dest.Name}, nil
}

func (s *session) CreateConsumer(dest *broker.Queue) (broker.Consumer, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	c := &consumer{
		session:  s,
		topic:    dest.Name,
		messages: make(chan pahomqtt.Message, consumerBuffer),
		done:     make(chan struct{}),
	}
	token := s.conn.client.Subscribe(dest.Name, defaultQoS, c.handle)
	if err := wait(token, "subscribe"); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *session) CreateTextMessage(text string) (*broker.TextMessage, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return &broker.TextMessage{Text: text}, nil
}

func (s *session) Close() error {
	if s.closed.Swap(true) {
		return broker.ErrClosed
	}
	return nil
}

type producer struct {
	session *session
	topic   string
	closed  atomic.Bool
}

func (p *producer) Send(msg broker.Message) error {
	if p.closed.Load() {
		return broker.ErrClosed
	}
	if err := p.session.usable(); err != nil {
		return err
	}

	var payload []byte
	switch m := msg.(type) {
	case *broker.TextMessage:
		payload = []byte(m.Text)
	case *broker.BytesMessage:
		payload = m.Body
	default:
		return fmt.Errorf("%w: %T", broker.ErrUnsupportedMsg, msg)
	}

	token := p.session.conn.client.Publish(p.topic, defaultQoS, false, payload)
	return wait(token, "publish")
}

func (p *producer) Close() error {
	if p.closed.Swap(true) {
		return broker.ErrClosed
	}
	return nil
}

type consumer struct {
	session  *session
	topic    string
	messages chan pahomqtt.Message
	done     chan struct{}
	once     sync.Once
}

// handle runs on paho's goroutines; with OrderMatters off it may block until
// a Receive picks the message up or the consumer closes.
func (c *consumer) handle(_ pahomqtt.Client, m pahomqtt.Message) {
	select {
	case c.messages <- m:
	case <-c.done:
	}
}

func (c *consumer) Receive(timeout time.Duration) (broker.Message, error) {
	if err := c.session.usable(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-c.messages:
		return convert(m), nil
	case <-c.done:
		return nil, broker.ErrClosed
	case <-timer.C:
		return nil, nil
	}
}

func (c *consumer) Close() error {
	err := broker.ErrClosed
	c.once.Do(func() {
		close(c.done)
		err = wait(c.session.conn.client.Unsubscribe(c.topic), "unsubscribe")
	})
	return err
}

func convert(m pahomqtt.Message) broker.Message {
	id := strconv.FormatUint(uint64(m.MessageID()), 10)
	payload := m.Payload()
	if utf8.Valid(payload) {
		return &broker.TextMessage{ID: id, Text: string(payload)}
	}
	return &broker.BytesMessage{ID: id, Body: payload}
}

func wait(token pahomqtt.Token, op string) error {
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("mqtt %s timeout after %v", op, defaultOperationTimeout)
	}
	return token.Error()
}
