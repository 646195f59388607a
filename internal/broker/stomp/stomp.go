// Package stomp is the STOMP driver. It reaches ActiveMQ classic on its STOMP
// connector and Artemis on any acceptor that has STOMP enabled (the default
// 61616 acceptor included).
package stomp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker"
)

// Default values.
const (
	DefaultPort        = "61613"
	DefaultTLSPort     = "61614"
	DefaultDialTimeout = 10 * time.Second
	DefaultHeartBeat   = 30 * time.Second

	// DefaultUnsubscribeTimeout bounds the wait for the broker's receipt
	// to UNSUBSCRIBE.
	DefaultUnsubscribeTimeout = 5 * time.Second

	queuePrefix     = "/queue/"
	textContentType = "text/plain"

	// ActiveMQ pushes at most this many unacknowledged messages per subscription.
	prefetchHeader = "activemq.prefetchSize"
	prefetchSize   = "1"
)

// Schemes lists the URL schemes this driver serves.
var Schemes = []string{"tcp", "stomp", "ssl", "stomp+ssl"}

// Factory opens STOMP connections.
type Factory struct {
	DialTimeout        time.Duration
	HeartBeat          time.Duration
	UnsubscribeTimeout time.Duration
	TLSConfig          *tls.Config

	// Versions limits the protocol versions offered; empty offers all.
	Versions []stomp.Version
}

// New creates a Factory. Zero durations fall back to the defaults.
func New(dialTimeout, heartBeat time.Duration) *Factory {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	if heartBeat <= 0 {
		heartBeat = DefaultHeartBeat
	}
	return &Factory{
		DialTimeout:        dialTimeout,
		HeartBeat:          heartBeat,
		UnsubscribeTimeout: DefaultUnsubscribeTimeout,
	}
}

// CreateConnection implements broker.ConnectionFactory.
func (f *Factory) CreateConnection(brokerURL, username, password string) (broker.Connection, error) {
	u, err := broker.ParseURL(brokerURL)
	if err != nil {
		return nil, err
	}

	addr, secure := dialAddress(u)
	netConn, err := f.dial(addr, secure, u.Hostname())
	if err != nil {
		return nil, err
	}

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(u.Hostname()),
		stomp.ConnOpt.HeartBeat(f.HeartBeat, f.HeartBeat),
		stomp.ConnOpt.UnsubscribeReceiptTimeout(f.UnsubscribeTimeout),
	}
	if len(f.Versions) > 0 {
		opts = append(opts, stomp.ConnOpt.AcceptVersion(f.Versions...))
	}
	if user, pass := broker.Credentials(u, username, password); user != "" {
		opts = append(opts, stomp.ConnOpt.Login(user, pass))
	}

	conn, err := stomp.Connect(netConn, opts...)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	return &connection{conn: conn}, nil
}

func (f *Factory) dial(addr string, secure bool, host string) (io.ReadWriteCloser, error) {
	dialer := &net.Dialer{Timeout: f.DialTimeout}
	if !secure {
		return dialer.Dial("tcp", addr)
	}
	cfg := f.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = host
	}
	return tls.DialWithDialer(dialer, "tcp", addr, cfg)
}

// dialAddress returns host:port for the URL and whether TLS is required.
func dialAddress(u *url.URL) (string, bool) {
	secure := u.Scheme == "ssl" || u.Scheme == "stomp+ssl"
	port := u.Port()
	if port == "" {
		port = DefaultPort
		if secure {
			port = DefaultTLSPort
		}
	}
	return net.JoinHostPort(u.Hostname(), port), secure
}

// destination maps a queue name onto a STOMP destination. Names that already
// carry a destination prefix are used unchanged.
func destination(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return queuePrefix + name
}

// isText reports whether a frame should be surfaced as a text message. An
// explicit content-type decides; otherwise the broker marks JMS TextMessages
// by omitting content-length.
func isText(hasContentLength bool, contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "text/"):
		return true
	case contentType != "":
		return false
	default:
		return !hasContentLength
	}
}

type connection struct {
	conn    *stomp.Conn
	started atomic.Bool
	closed  atomic.Bool
}

// Start is a marker only; STOMP delivery begins on SUBSCRIBE.
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
	return c.conn.Disconnect()
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
	return &producer{session: s, dest: destination(dest.Name)}, nil
}

func (s *session) CreateConsumer(dest *broker.Queue) (broker.Consumer, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	// Each message is acked when Receive hands it over, so anything the
	// broker pushed but nobody received is redelivered after close.
	sub, err := s.conn.conn.Subscribe(destination(dest.Name), stomp.AckClientIndividual,
		stomp.SubscribeOpt.Header(prefetchHeader, prefetchSize))
	if err != nil {
		return nil, err
	}
	return &consumer{session: s, conn: s.conn.conn, sub: sub}, nil
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
	dest    string
	closed  atomic.Bool
}

func (p *producer) Send(msg broker.Message) error {
	if p.closed.Load() {
		return broker.ErrClosed
	}
	if err := p.session.usable(); err != nil {
		return err
	}

	conn := p.session.conn.conn
	switch m := msg.(type) {
	case *broker.TextMessage:
		return conn.Send(p.dest, textContentType, []byte(m.Text), stomp.SendOpt.NoContentLength)
	case *broker.BytesMessage:
		ct := m.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return conn.Send(p.dest, ct, m.Body)
	default:
		return fmt.Errorf("%w: %T", broker.ErrUnsupportedMsg, msg)
	}
}

func (p *producer) Close() error {
	if p.closed.Swap(true) {
		return broker.ErrClosed
	}
	return nil
}

type consumer struct {
	session *session
	conn    *stomp.Conn
	sub     *stomp.Subscription
	once    sync.Once
}

func (c *consumer) Receive(timeout time.Duration) (broker.Message, error) {
	if err := c.session.usable(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m, ok := <-c.sub.C:
		if !ok {
			return nil, fmt.Errorf("subscription closed: %w", broker.ErrClosed)
		}
		if m.Err != nil {
			return nil, m.Err
		}
		if err := c.conn.Ack(m); err != nil {
			return nil, err
		}
		return convert(m), nil
	case <-timer.C:
		return nil, nil
	}
}

// Close unsubscribes. Messages still arriving on the subscription are
// discarded unacked so the client reader never blocks on a full channel.
func (c *consumer) Close() error {
	err := broker.ErrClosed
	c.once.Do(func() {
		go drain(c.sub.C)
		err = c.sub.Unsubscribe()
		// The frame went out; a broker that never sends the receipt is not
		// a failed close.
		if errors.Is(err, &stomp.ErrUnsubscribeReceiptTimeout) {
			err = nil
		}
	})
	return err
}

// drain runs until the subscription channel is closed, at the latest when
// the connection disconnects.
func drain(c <-chan *stomp.Message) {
	for range c {
	}
}

func convert(m *stomp.Message) broker.Message {
	id := m.Header.Get("message-id")
	_, hasLength := m.Header.Contains("content-length")
	if isText(hasLength, m.ContentType) {
		return &broker.TextMessage{ID: id, Text: string(m.Body)}
	}
	return &broker.BytesMessage{ID: id, ContentType: m.ContentType, Body: m.Body}
}
