package broker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is an in-process broker reachable through vm:// URLs. Queues are
// created on first use and shared by every connection made from the same
// Memory value.
type Memory struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	users  map[string]string
	seq    atomic.Uint64
}

// NewMemory creates an empty in-process broker that accepts anonymous
// connections.
func NewMemory() *Memory {
	return &Memory{
		queues: make(map[string]*memQueue),
	}
}

// SetUsers restricts connections to the given username/password pairs.
// A nil or empty map allows anyone, including anonymous clients.
func (m *Memory) SetUsers(users map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = users
}

// CreateConnection implements ConnectionFactory.
func (m *Memory) CreateConnection(brokerURL, username, password string) (Connection, error) {
	u, err := ParseURL(brokerURL)
	if err != nil {
		return nil, err
	}
	user, pass := Credentials(u, username, password)

	m.mu.Lock()
	users := m.users
	m.mu.Unlock()
	if len(users) > 0 {
		if want, ok := users[user]; !ok || want != pass {
			return nil, fmt.Errorf("%w for user %q", ErrAuthFailed, user)
		}
	}

	return &memConnection{broker: m}, nil
}

// Put enqueues a message directly, bypassing any connection.
func (m *Memory) Put(queue string, msg Message) {
	m.queue(queue).push(msg)
}

// Depth reports how many messages are waiting on a queue.
func (m *Memory) Depth(queue string) int {
	q := m.queue(queue)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (m *Memory) queue(name string) *memQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = &memQueue{signal: make(chan struct{}, 1)}
		m.queues[name] = q
	}
	return q
}

func (m *Memory) nextID() string {
	return fmt.Sprintf("ID:vm-%d", m.seq.Add(1))
}

// memQueue is a FIFO with a buffered(1) signal channel, so several pushes
// without a reader coalesce into one wake-up.
type memQueue struct {
	mu     sync.Mutex
	items  []Message
	signal chan struct{}
}

func (q *memQueue) push(msg Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.notify()
}

func (q *memQueue) pop() (Message, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	more := len(q.items) > 0
	q.mu.Unlock()

	// Another consumer may be waiting on a signal this pop swallowed.
	if more {
		q.notify()
	}
	return msg, true
}

func (q *memQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

type memConnection struct {
	broker  *Memory
	started atomic.Bool
	closed  atomic.Bool
}

func (c *memConnection) Start() error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.started.Store(true)
	return nil
}

func (c *memConnection) CreateSession(transacted bool, ack AckMode) (Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := CheckSessionMode(transacted, ack); err != nil {
		return nil, err
	}
	return &memSession{conn: c}, nil
}

func (c *memConnection) Close() error {
	if c.closed.Swap(true) {
		return ErrClosed
	}
	return nil
}

type memSession struct {
	conn   *memConnection
	closed atomic.Bool
}

func (s *memSession) usable() error {
	if s.closed.Load() || s.conn.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *memSession) CreateQueue(name string) (*Queue, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrEmptyQueueName
	}
	return &Queue{Name: name}, nil
}

func (s *memSession) CreateProducer(dest *Queue) (Producer, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return &memProducer{session: s, queue: s.conn.broker.queue(dest.Name)}, nil
}

func (s *memSession) CreateConsumer(dest *Queue) (Consumer, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return &memConsumer{
		session: s,
		queue:   s.conn.broker.queue(dest.Name),
		done:    make(chan struct{}),
	}, nil
}

func (s *memSession) CreateTextMessage(text string) (*TextMessage, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return &TextMessage{Text: text}, nil
}

func (s *memSession) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	return nil
}

type memProducer struct {
	session *memSession
	queue   *memQueue
	closed  atomic.Bool
}

func (p *memProducer) Send(msg Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.session.usable(); err != nil {
		return err
	}

	broker := p.session.conn.broker
	switch m := msg.(type) {
	case *TextMessage:
		cp := *m
		if cp.ID == "" {
			cp.ID = broker.nextID()
		}
		p.queue.push(&cp)
	case *BytesMessage:
		cp := *m
		cp.Body = append([]byte(nil), m.Body...)
		if cp.ID == "" {
			cp.ID = broker.nextID()
		}
		p.queue.push(&cp)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedMsg, msg)
	}
	return nil
}

func (p *memProducer) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	return nil
}

type memConsumer struct {
	session *memSession
	queue   *memQueue
	done    chan struct{}
	once    sync.Once
}

func (c *memConsumer) Receive(timeout time.Duration) (Message, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-c.done:
			return nil, ErrClosed
		default:
		}
		if err := c.session.usable(); err != nil {
			return nil, err
		}

		started := c.session.conn.started.Load()
		if started {
			if msg, ok := c.queue.pop(); ok {
				return msg, nil
			}
		}

		// A stopped connection delivers nothing; just wait out the timeout.
		signal := c.queue.signal
		if !started {
			signal = nil
		}

		select {
		case <-signal:
		case <-deadline.C:
			return nil, nil
		case <-c.done:
			return nil, ErrClosed
		}
	}
}

func (c *memConsumer) Close() error {
	closed := false
	c.once.Do(func() {
		close(c.done)
		closed = true
	})
	if !closed {
		return ErrClosed
	}
	return nil
}
