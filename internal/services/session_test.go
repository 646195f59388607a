package services

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker/brokertest"
)

const testURL = "vm://localhost"

func newTestManager(t *testing.T) (*SessionManager, *brokertest.Factory) {
	t.Helper()
	f := brokertest.New()
	m := NewSessionManager(f)
	m.receiveTimeout = 50 * time.Millisecond
	return m, f
}

func connected(t *testing.T) (*SessionManager, *brokertest.Factory) {
	t.Helper()
	m, f := newTestManager(t)
	require.NoError(t, m.Connect(testURL, "user", "pass"))
	f.Reset()
	return m, f
}

func TestConnect(t *testing.T) {
	m, f := newTestManager(t)

	require.NoError(t, m.Connect(testURL, "user", "pass"))

	assert.True(t, m.IsConnected())
	assert.Equal(t, []string{brokertest.OpConnect, brokertest.OpStart, brokertest.OpCreateSession}, f.Ops())
	assert.Nil(t, m.producer)
	assert.Nil(t, m.consumer)
}

func TestConnectWhenAlreadyConnected(t *testing.T) {
	m, f := connected(t)
	conn, sess := m.connection, m.session

	err := m.Connect("url", "u", "p")

	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, "Already connected", err.Error())
	assert.Empty(t, f.Ops(), "second connect must not touch the broker")
	assert.True(t, m.IsConnected())
	assert.Same(t, conn, m.connection)
	assert.Same(t, sess, m.session)

	// The first session is still usable.
	require.NoError(t, m.Send("q1", "still here"))
	text, ok, err := m.Receive("q1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "still here", text)
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name       string
		failOp     string
		wantClosed bool
	}{
		{"create connection", brokertest.OpConnect, false},
		{"start", brokertest.OpStart, true},
		{"create session", brokertest.OpCreateSession, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, f := newTestManager(t)
			f.Fail(tt.failOp, errors.New("Broker down"))
			f.Fail(brokertest.OpCloseConn, errors.New("close failed too"))

			err := m.Connect(testURL, "", "")

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBrokerUnavailable)
			assert.Equal(t, "Broker down", err.Error())
			var be *BrokerError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, KindBrokerUnavailable, be.Kind)

			assert.False(t, m.IsConnected())
			assert.Nil(t, m.connection)
			assert.Nil(t, m.session)
			assert.Equal(t, tt.wantClosed, contains(f.Ops(), brokertest.OpCloseConn))
		})
	}
}

func TestConnectRejectedCredentials(t *testing.T) {
	m, f := newTestManager(t)
	f.Broker.SetUsers(map[string]string{"user": "pass"})

	err := m.Connect(testURL, "user", "wrong")
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.ErrorIs(t, err, broker.ErrAuthFailed)
	assert.False(t, m.IsConnected())

	require.NoError(t, m.Connect(testURL, "user", "pass"))
	assert.True(t, m.IsConnected())
}

func TestConnectInvalidURL(t *testing.T) {
	c := broker.NewConnector()
	c.Register(broker.NewMemory(), "vm")
	m := NewSessionManager(c)

	err := m.Connect("bogus://nowhere", "", "")
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Contains(t, err.Error(), "unsupported broker URL scheme")
	assert.False(t, m.IsConnected())
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	m, f := newTestManager(t)
	err := m.Disconnect()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "Not connected", err.Error())
	assert.Empty(t, f.Ops())
}

func TestDisconnectClosesInOrder(t *testing.T) {
	m, f := connected(t)
	require.NoError(t, m.Send("q1", "hello"))
	_, _, err := m.Receive("q1")
	require.NoError(t, err)
	f.Reset()

	require.NoError(t, m.Disconnect())

	assert.Equal(t, []string{
		brokertest.OpCloseProducer,
		brokertest.OpCloseConsumer,
		brokertest.OpCloseSession,
		brokertest.OpCloseConn,
	}, f.Ops())
	assert.False(t, m.IsConnected())
	assert.Nil(t, m.producer)
	assert.Nil(t, m.consumer)
	assert.Nil(t, m.session)
	assert.Nil(t, m.connection)
}

func TestDisconnectSkipsMissingHandles(t *testing.T) {
	m, f := connected(t)
	require.NoError(t, m.Disconnect())
	assert.Equal(t, []string{brokertest.OpCloseSession, brokertest.OpCloseConn}, f.Ops())
}

func TestDisconnectSwallowsCloseFailures(t *testing.T) {
	m, f := connected(t)
	require.NoError(t, m.Send("q1", "hello"))
	_, _, _ = m.Receive("q1")

	boom := errors.New("close failed")
	for _, op := range []string{brokertest.OpCloseProducer, brokertest.OpCloseConsumer, brokertest.OpCloseSession, brokertest.OpCloseConn} {
		f.Fail(op, boom)
	}
	f.Reset()

	require.NoError(t, m.Disconnect())
	assert.False(t, m.IsConnected())
	assert.Len(t, f.Ops(), 4, "every handle is still closed after an earlier failure")
	assert.Nil(t, m.connection)

	// A fresh connect works afterwards.
	for _, op := range []string{brokertest.OpCloseProducer, brokertest.OpCloseConsumer, brokertest.OpCloseSession, brokertest.OpCloseConn} {
		f.Fail(op, nil)
	}
	require.NoError(t, m.Connect(testURL, "", ""))
}

func TestSendAndReceiveNotConnected(t *testing.T) {
	m, f := newTestManager(t)

	err := m.Send("q1", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)

	text, ok, err := m.Receive("q1")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, ok)
	assert.Empty(t, text)

	assert.Empty(t, f.Ops(), "precondition failures must not touch the broker")
}

func TestSendReceiveRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Connect("tcp://localhost:61616", "user", "pass"))
	require.NoError(t, m.Send("q1", "hello"))

	text, ok, err := m.Receive("q1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestReceiveEmptyQueue(t *testing.T) {
	m, _ := connected(t)

	text, ok, err := m.Receive("empty")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestReceiveNonTextMessage(t *testing.T) {
	m, f := connected(t)
	f.Broker.Put("bin", &broker.BytesMessage{Body: []byte{0xca, 0xfe}})

	text, ok, err := m.Receive("bin")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, NonTextPlaceholder, text)
}

func TestProducerAndConsumerAreCached(t *testing.T) {
	m, f := connected(t)

	require.NoError(t, m.Send("q1", "a"))
	require.NoError(t, m.Send("q2", "b"))
	_, _, _ = m.Receive("q1")
	_, _, _ = m.Receive("q2")

	var producers, consumers []string
	for _, c := range f.Calls() {
		switch c.Op {
		case brokertest.OpCreateProducer:
			producers = append(producers, c.Arg)
		case brokertest.OpCreateConsumer:
			consumers = append(consumers, c.Arg)
		}
	}
	assert.Equal(t, []string{"q1"}, producers)
	assert.Equal(t, []string{"q1"}, consumers)
}

func TestFirstQueueNameWins(t *testing.T) {
	m, f := connected(t)

	require.NoError(t, m.Send("q1", "first"))
	require.NoError(t, m.Send("q2", "second"))

	// Both messages went to q1 through the cached producer.
	assert.Equal(t, 2, f.Broker.Depth("q1"))
	assert.Equal(t, 0, f.Broker.Depth("q2"))

	text, ok, err := m.Receive("q1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", text)

	// The consumer is bound to q1 as well, so asking for q2 still drains q1.
	text, ok, err = m.Receive("q2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", text)
}

func TestSendFailures(t *testing.T) {
	for _, op := range []string{brokertest.OpCreateQueue, brokertest.OpCreateProducer, brokertest.OpCreateText, brokertest.OpSend} {
		t.Run(op, func(t *testing.T) {
			m, f := connected(t)
			f.Fail(op, errors.New("queue full"))

			err := m.Send("q1", "hello")

			assert.ErrorIs(t, err, ErrSendFailed)
			assert.Equal(t, "queue full", err.Error())
			assert.True(t, m.IsConnected(), "send failure must not drop the session")
		})
	}
}

func TestReceiveFailures(t *testing.T) {
	for _, op := range []string{brokertest.OpCreateQueue, brokertest.OpCreateConsumer, brokertest.OpReceive} {
		t.Run(op, func(t *testing.T) {
			m, f := connected(t)
			f.Fail(op, errors.New("consumer gone"))

			_, ok, err := m.Receive("q1")

			assert.ErrorIs(t, err, ErrReceiveFailed)
			assert.False(t, ok)
			assert.Equal(t, "consumer gone", err.Error())
			assert.True(t, m.IsConnected())
		})
	}
}

func TestCloseShutdownHook(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		m, f := newTestManager(t)
		assert.NoError(t, m.Close())
		assert.Empty(t, f.Ops())
	})

	t.Run("connected with failing closes", func(t *testing.T) {
		m, f := connected(t)
		f.Fail(brokertest.OpCloseSession, errors.New("boom"))
		f.Fail(brokertest.OpCloseConn, errors.New("boom"))

		assert.NoError(t, m.Close())
		assert.False(t, m.IsConnected())
		assert.Nil(t, m.connection)
	})
}

func TestBrokerErrorKinds(t *testing.T) {
	err := newBrokerError(KindSendFailed, errors.New("x"))
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.NotErrorIs(t, err, ErrReceiveFailed)
	assert.NotErrorIs(t, err, ErrBrokerUnavailable)
	assert.Equal(t, "send_failed", KindSendFailed.String())
}

// TestConcurrentOperations hammers the manager with a random mix of calls and
// checks the handles always agree with the connected flag.
func TestConcurrentOperations(t *testing.T) {
	m, _ := newTestManager(t)
	m.receiveTimeout = time.Millisecond

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				switch r.Intn(5) {
				case 0:
					_ = m.Connect(testURL, "", "")
				case 1:
					_ = m.Disconnect()
				case 2:
					_ = m.Send("q", "msg")
				case 3:
					_, _, _ = m.Receive("q")
				case 4:
					_ = m.IsConnected()
				}
			}
		}(int64(g))
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected.Load() {
		assert.NotNil(t, m.connection)
		assert.NotNil(t, m.session)
	} else {
		assert.Nil(t, m.connection)
		assert.Nil(t, m.session)
		assert.Nil(t, m.producer)
		assert.Nil(t, m.consumer)
	}
}

func TestOperationsAreSerialized(t *testing.T) {
	m, _ := connected(t)
	m.receiveTimeout = 100 * time.Millisecond

	locked := make(chan struct{})
	go func() {
		close(locked)
		_, _, _ = m.Receive("slow")
	}()
	<-locked
	time.Sleep(10 * time.Millisecond)

	// Send waits for the in-flight receive to release the session.
	start := time.Now()
	require.NoError(t, m.Send("other", "x"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func contains(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
