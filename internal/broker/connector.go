package broker

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Connector dispatches CreateConnection to the factory registered for the
// broker URL's scheme.
type Connector struct {
	mu        sync.RWMutex
	factories map[string]ConnectionFactory
}

// NewConnector creates a Connector with no registered schemes.
func NewConnector() *Connector {
	return &Connector{
		factories: make(map[string]ConnectionFactory),
	}
}

// Register binds a factory to one or more URL schemes. Later registrations
// replace earlier ones.
func (c *Connector) Register(factory ConnectionFactory, schemes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range schemes {
		c.factories[strings.ToLower(s)] = factory
	}
}

// Schemes returns the registered schemes in sorted order.
func (c *Connector) Schemes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for s := range c.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CreateConnection implements ConnectionFactory.
func (c *Connector) CreateConnection(brokerURL, username, password string) (Connection, error) {
	u, err := ParseURL(brokerURL)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	factory, ok := c.factories[u.Scheme]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return factory.CreateConnection(brokerURL, username, password)
}

// ParseURL parses a broker URL of the form scheme://host[:port][/path].
// The scheme is lower-cased.
func ParseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// Credentials returns the login for a connection and clears any userinfo
// from u. Only the explicit username selects an authenticated connection;
// an empty username means anonymous even when the URL carries userinfo.
func Credentials(u *url.URL, username, password string) (string, string) {
	u.User = nil
	if username == "" {
		return "", ""
	}
	return username, password
}

// Redact strips credentials from a broker URL for logging.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable]"
	}
	return u.Redacted()
}
