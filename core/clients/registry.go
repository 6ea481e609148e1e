package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"incidentboard/config"
	"incidentboard/core/incidents"
	"incidentboard/core/metrics"
	"incidentboard/core/utils"

	"github.com/gofrs/uuid/v5"
)

var ErrInvalidClientID = errors.New("invalid client id")

// RepositoryFunc returns the repository backing one client's persisted
// additions.
type RepositoryFunc func(clientID string) incidents.Repository

// Client owns one browser's dashboard. Every transition runs under mu, so
// each client observes a single ordered stream of events.
type Client struct {
	ID string

	mu   sync.Mutex
	dash incidents.Dashboard
	repo incidents.Repository
	// lastSeen is unix nanoseconds, read by the sweeper without c.mu.
	lastSeen atomic.Int64
}

// Snapshot returns the current dashboard.
func (c *Client) Snapshot() incidents.Dashboard {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dash
}

// Transition applies fn and stores the dashboard it returns, whether or not
// fn also returns an error.
func (c *Client) Transition(fn func(d incidents.Dashboard, repo incidents.Repository) (incidents.Dashboard, error)) (incidents.Dashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(c.dash, c.repo)
	c.dash = next
	return next, err
}

func (c *Client) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

func (c *Client) seenAt() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

type Registry struct {
	cfg     config.ClientsConfig
	repos   RepositoryFunc
	metrics *metrics.Metrics
	logger  *utils.Logger
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
	loading map[string]*loadCall
}

type loadCall struct {
	done   chan struct{}
	client *Client
	err    error
}

func NewRegistry(cfg config.ClientsConfig, repos RepositoryFunc, m *metrics.Metrics, logger *utils.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		repos:   repos,
		metrics: m,
		logger:  logger,
		now:     utils.NowUTC,
		clients: map[string]*Client{},
		loading: map[string]*loadCall{},
	}
}

func NewClientID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func ValidClientID(id string) bool {
	parsed, err := uuid.FromString(id)
	return err == nil && parsed.Version() == uuid.V4
}

// Get returns the client for id, loading its persisted additions the first
// time the id is seen. Concurrent first requests share one load.
func (r *Registry) Get(ctx context.Context, id string) (*Client, error) {
	if !ValidClientID(id) {
		return nil, ErrInvalidClientID
	}
	now := r.now()
	r.mu.Lock()
	if c, ok := r.clients[id]; ok {
		r.mu.Unlock()
		c.touch(now)
		return c, nil
	}
	if call, ok := r.loading[id]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.client, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	r.loading[id] = call
	r.mu.Unlock()

	call.client, call.err = r.load(ctx, id, now)

	r.mu.Lock()
	delete(r.loading, id)
	if call.err == nil {
		r.clients[id] = call.client
		r.evictOverflowLocked()
	}
	active := len(r.clients)
	r.mu.Unlock()
	close(call.done)
	r.metrics.SetActiveClients(active)
	return call.client, call.err
}

func (r *Registry) load(ctx context.Context, id string, now time.Time) (*Client, error) {
	var repo incidents.Repository
	if r.repos != nil {
		repo = r.repos(id)
	}
	dash, err := incidents.Load(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", id, err)
	}
	if r.logger != nil {
		r.logger.Debugf("client %s loaded with %d incidents", id, dash.Len())
	}
	c := &Client{ID: id, dash: dash, repo: repo}
	c.touch(now)
	return c, nil
}

// evictOverflowLocked drops the least recently seen clients above MaxClients.
func (r *Registry) evictOverflowLocked() {
	limit := r.cfg.MaxClients
	if limit <= 0 {
		return
	}
	evicted := 0
	for len(r.clients) > limit {
		oldestID := ""
		var oldest time.Time
		for id, c := range r.clients {
			seen := c.seenAt()
			if oldestID == "" || seen.Before(oldest) {
				oldestID = id
				oldest = seen
			}
		}
		if oldestID == "" {
			break
		}
		delete(r.clients, oldestID)
		evicted++
	}
	r.metrics.ClientsEvicted(evicted)
}

// Sweep evicts clients idle for longer than IdleTTL and returns how many
// were removed.
func (r *Registry) Sweep(now time.Time) int {
	ttl := r.cfg.IdleTTL
	if ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	evicted := 0
	for id, c := range r.clients {
		if now.Sub(c.seenAt()) > ttl {
			delete(r.clients, id)
			evicted++
		}
	}
	active := len(r.clients)
	r.mu.Unlock()
	r.metrics.ClientsEvicted(evicted)
	r.metrics.SetActiveClients(active)
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
