// Package brokertest provides a broker.ConnectionFactory that records every
// call it receives and can be told to fail specific operations.
package brokertest

import (
	"sync"
	"time"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker"
)

// Operation names used in the call log and for fault injection.
const (
	OpConnect        = "connect"
	OpStart          = "start"
	OpCreateSession  = "session"
	OpCreateQueue    = "queue"
	OpCreateProducer = "producer"
	OpCreateConsumer = "consumer"
	OpCreateText     = "text"
	OpSend           = "send"
	OpReceive        = "receive"
	OpCloseProducer  = "close-producer"
	OpCloseConsumer  = "close-consumer"
	OpCloseSession   = "close-session"
	OpCloseConn      = "close-connection"
)

// Call is one recorded invocation.
type Call struct {
	Op  string
	Arg string
}

// Factory wraps an in-memory broker, logging calls and injecting faults.
type Factory struct {
	Broker *broker.Memory

	mu     sync.Mutex
	faults map[string]error
	calls  []Call
}

// New creates a Factory backed by a fresh broker.Memory.
func New() *Factory {
	return &Factory{
		Broker: broker.NewMemory(),
		faults: make(map[string]error),
	}
}

// Fail makes every subsequent call to op return err. A nil err clears the fault.
func (f *Factory) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.faults, op)
		return
	}
	f.faults[op] = err
}

// Calls returns a copy of the call log.
func (f *Factory) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the operation names from the call log in order.
func (f *Factory) Ops() []string {
	calls := f.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Reset clears the call log.
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Factory) record(op, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Arg: arg})
	return f.faults[op]
}

// CreateConnection implements broker.ConnectionFactory.
func (f *Factory) CreateConnection(brokerURL, username, password string) (broker.Connection, error) {
	if err := f.record(OpConnect, brokerURL); err != nil {
		return nil, err
	}
	conn, err := f.Broker.CreateConnection(brokerURL, username, password)
	if err != nil {
		return nil, err
	}
	return &connection{f: f, inner: conn}, nil
}

type connection struct {
	f     *Factory
	inner broker.Connection
}

func (c *connection) Start() error {
	if err := c.f.record(OpStart, ""); err != nil {
		return err
	}
	return c.inner.Start()
}

func (c *connection) CreateSession(transacted bool, ack broker.AckMode) (broker.Session, error) {
	if err := c.f.record(OpCreateSession, ""); err != nil {
		return nil, err
	}
	s, err := c.inner.CreateSession(transacted, ack)
	if err != nil {
		return nil, err
	}
	return &session{f: c.f, inner: s}, nil
}

func (c *connection) Close() error {
	// The inner handle is always released so the broker state stays clean.
	innerErr := c.inner.Close()
	if err := c.f.record(OpCloseConn, ""); err != nil {
		return err
	}
	return innerErr
}

type session struct {
	f     *Factory
	inner broker.Session
}

func (s *session) CreateQueue(name string) (*broker.Queue, error) {
	if err := s.f.record(OpCreateQueue, name); err != nil {
		return nil, err
	}
	return s.inner.CreateQueue(name)
}

func (s *session) CreateProducer(dest *broker.Queue) (broker.Producer, error) {
	if err := s.f.record(OpCreateProducer, dest.Name); err != nil {
		return nil, err
	}
	p, err := s.inner.CreateProducer(dest)
	if err != nil {
		return nil, err
	}
	return &producer{f: s.f, inner: p, dest: dest.Name}, nil
}

func (s *session) CreateConsumer(dest *broker.Queue) (broker.Consumer, error) {
	if err := s.f.record(OpCreateConsumer, dest.Name); err != nil {
		return nil, err
	}
	c, err := s.inner.CreateConsumer(dest)
	if err != nil {
		return nil, err
	}
	return &consumer{f: s.f, inner: c, dest: dest.Name}, nil
}

func (s *session) CreateTextMessage(text string) (*broker.TextMessage, error) {
	if err := s.f.record(OpCreateText, text); err != nil {
		return nil, err
	}
	return s.inner.CreateTextMessage(text)
}

func (s *session) Close() error {
	innerErr := s.inner.Close()
	if err := s.f.record(OpCloseSession, ""); err != nil {
		return err
	}
	return innerErr
}

type producer struct {
	f     *Factory
	inner broker.Producer
	dest  string
}

func (p *producer) Send(msg broker.Message) error {
	if err := p.f.record(OpSend, p.dest); err != nil {
		return err
	}
	return p.inner.Send(msg)
}

func (p *producer) Close() error {
	innerErr := p.inner.Close()
	if err := p.f.record(OpCloseProducer, p.dest); err != nil {
		return err
	}
	return innerErr
}

type consumer struct {
	f     *Factory
	inner broker.Consumer
	dest  string
}

func (c *consumer) Receive(timeout time.Duration) (broker.Message, error) {
	if err := c.f.record(OpReceive, c.dest); err != nil {
		return nil, err
	}
	return c.inner.Receive(timeout)
}

func (c *consumer) Close() error {
	innerErr := c.inner.Close()
	if err := c.f.record(OpCloseConsumer, c.dest); err != nil {
		return err
	}
	return innerErr
}
