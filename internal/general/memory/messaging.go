package memory

import (
	"context"
	"sync"
	"time"

	"ride-settlement/internal/ports"

	"github.com/google/uuid"
)

// Published is one message captured by Publisher.
type Published struct {
	Exchange   string
	RoutingKey string
	Message    ports.Message
}

// Publisher records published messages instead of sending them.
type Publisher struct {
	mu       sync.Mutex
	messages []Published
	failures []error
}

// FailNext queues an error for the next Publish call.
func (p *Publisher) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, err)
}

func (p *Publisher) Publish(_ context.Context, exchange, routingKey string, msg ports.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return err
	}
	p.messages = append(p.messages, Published{Exchange: exchange, RoutingKey: routingKey, Message: msg})
	return nil
}

// Messages returns everything published so far.
func (p *Publisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.messages...)
}

// WithKey returns the messages published with routingKey.
func (p *Publisher) WithKey(routingKey string) []Published {
	var out []Published
	for _, m := range p.Messages() {
		if m.RoutingKey == routingKey {
			out = append(out, m)
		}
	}
	return out
}

// Cache is a map-backed ports.ProcessedCache.
type Cache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewCache() *Cache { return &Cache{seen: map[string]bool{}} }

func (c *Cache) Seen(_ context.Context, messageID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[messageID], nil
}

func (c *Cache) Remember(_ context.Context, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[messageID] = true
	return nil
}

// Locker is a process-local ports.Locker with expiry.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lease
	clock func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

func NewLocker() *Locker {
	return &Locker{held: map[string]lease{}, clock: time.Now}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = lease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *Locker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}
