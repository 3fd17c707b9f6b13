package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

const poolSubsystem = "MCPClientPool"

// Factory creates an uninitialized client for a registration.
type Factory func(reg api.ServiceRegistration) (MCPClient, error)

type pooledClient struct {
	client MCPClient
	key    string
}

// Pool keeps one initialized client per service, shared by routing and
// probing. Clients are created lazily on first use and replaced when the
// registration's connection details change.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*pooledClient
	retired map[string]bool
	closed  bool

	inits     singleflight.Group
	newClient Factory
}

// NewPool creates a pool. A nil factory uses NewClientForRegistration.
func NewPool(factory Factory) *Pool {
	if factory == nil {
		factory = NewClientForRegistration
	}
	return &Pool{
		clients:   make(map[string]*pooledClient),
		retired:   make(map[string]bool),
		newClient: factory,
	}
}

// clientKey identifies the connection details of a registration; a changed
// key means the pooled client is stale.
func clientKey(reg api.ServiceRegistration) string {
	cfg, _ := json.Marshal(map[string]map[string]string{
		"env":     reg.ConfigStringMap("env"),
		"headers": reg.ConfigStringMap("headers"),
	})
	return string(reg.Protocol) + "|" + reg.Location + "|" + string(cfg)
}

// Get returns an initialized client for reg. Concurrent callers for the same
// service share one initialization; no pool lock is held while it runs.
func (p *Pool) Get(ctx context.Context, reg api.ServiceRegistration) (MCPClient, error) {
	key := clientKey(reg)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("client pool is closed")
	}
	if p.retired[reg.Name] {
		p.mu.Unlock()
		return nil, api.NewServiceNotFoundError(reg.Name)
	}
	if pc, ok := p.clients[reg.Name]; ok && pc.key == key {
		p.mu.Unlock()
		return pc.client, nil
	}
	p.mu.Unlock()

	v, err, _ := p.inits.Do(reg.Name+"\x00"+key, func() (interface{}, error) {
		c, err := p.newClient(reg)
		if err != nil {
			return nil, err
		}
		if err := c.Initialize(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = c.Close()
			return nil, fmt.Errorf("client pool is closed")
		}
		if p.retired[reg.Name] {
			// Forgotten while initializing.
			p.mu.Unlock()
			_ = c.Close()
			return nil, api.NewServiceNotFoundError(reg.Name)
		}
		old := p.clients[reg.Name]
		p.clients[reg.Name] = &pooledClient{client: c, key: key}
		p.mu.Unlock()

		if old != nil {
			logging.Debug(poolSubsystem, "Replacing client for %s", reg.Name)
			_ = old.client.Close()
		}
		logging.Debug(poolSubsystem, "Initialized client for %s", reg.Name)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(MCPClient), nil
}

// Evict closes and forgets the client of name if it is still c.
func (p *Pool) Evict(name string, c MCPClient) {
	p.mu.Lock()
	pc, ok := p.clients[name]
	if !ok || pc.client != c {
		p.mu.Unlock()
		return
	}
	delete(p.clients, name)
	p.mu.Unlock()

	closeClient(name, pc.client)
}

// Forget drops the client of a removed service and refuses new ones for
// name, including any still initializing, until Refresh is called for it.
// The client is closed in the background.
func (p *Pool) Forget(name string) {
	p.mu.Lock()
	p.retired[name] = true
	pc := p.clients[name]
	delete(p.clients, name)
	p.mu.Unlock()

	if pc != nil {
		go closeClient(name, pc.client)
	}
}

// Refresh accepts name again and drops its pooled client if the connection
// details of reg no longer match it.
func (p *Pool) Refresh(reg api.ServiceRegistration) {
	key := clientKey(reg)

	p.mu.Lock()
	delete(p.retired, reg.Name)
	pc, ok := p.clients[reg.Name]
	if !ok || pc.key == key {
		p.mu.Unlock()
		return
	}
	delete(p.clients, reg.Name)
	p.mu.Unlock()

	go closeClient(reg.Name, pc.client)
}

func closeClient(name string, c MCPClient) {
	if err := c.Close(); err != nil {
		logging.Debug(poolSubsystem, "Error closing client for %s: %v", name, err)
	}
}

// Len returns the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close closes every pooled client. Later Get calls fail.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	clients := p.clients
	p.clients = make(map[string]*pooledClient)
	p.mu.Unlock()

	var firstErr error
	for name, pc := range clients {
		if err := pc.client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close client for %s: %w", name, err)
		}
	}
	return firstErr
}
