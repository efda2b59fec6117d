package notify

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Sender is the transport half of a live connection. Implementations must
// tolerate Close being called while a Write is in flight.
type Sender interface {
	// Write delivers one marshalled payload to the viewer.
	Write(data []byte) error
	// Close tears the connection down.
	Close() error
}

// Handle identifies a registered live connection.
type Handle = uuid.UUID

// DefaultOutboundBuffer is the per-connection outbound queue depth.
const DefaultOutboundBuffer = 16

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// OutboundBuffer is the per-connection queue depth. Defaults to
	// DefaultOutboundBuffer.
	OutboundBuffer int
	Logger         *log.Logger

	// OnConnCountChange, if set, observes the registry size after every
	// register and unregister.
	OnConnCountChange func(n int)

	// OnDrop, if set, observes every connection dropped for falling behind.
	OnDrop func()

	// OnBroadcast, if set, observes every payload broadcast to the registry.
	OnBroadcast func()
}

type liveConn struct {
	handle Handle
	region string // empty subscribes to all regions
	out    chan []byte
	done   chan struct{}
	sender Sender
}

// Registry tracks live connections and broadcasts payloads to them. Each
// connection gets a bounded outbound queue drained by its own writer
// goroutine; a broadcast enqueue never blocks. A connection whose queue is
// full or whose transport write fails is unregistered and closed.
type Registry struct {
	mu    sync.RWMutex
	conns map[Handle]*liveConn

	buffer int
	logger *log.Logger
	opts   RegistryOptions

	wg sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = DefaultOutboundBuffer
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Registry{
		conns:  make(map[Handle]*liveConn),
		buffer: opts.OutboundBuffer,
		logger: opts.Logger,
		opts:   opts,
	}
}

// Register adds a connection subscribed to region (empty means all regions)
// and starts its writer. The returned handle unregisters it.
func (r *Registry) Register(sender Sender, region string) Handle {
	c := &liveConn{
		handle: uuid.New(),
		region: region,
		out:    make(chan []byte, r.buffer),
		done:   make(chan struct{}),
		sender: sender,
	}

	r.mu.Lock()
	r.conns[c.handle] = c
	n := len(r.conns)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.writeLoop(c)

	r.logger.Printf("[notify] connection %s registered region=%q total=%d", c.handle, region, n)
	if r.opts.OnConnCountChange != nil {
		r.opts.OnConnCountChange(n)
	}
	return c.handle
}

// Unregister removes the connection and closes its transport. Safe to call
// for an already-removed handle.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	c, ok := r.conns[h]
	if ok {
		delete(r.conns, h)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}

	close(c.done)
	r.logger.Printf("[notify] connection %s unregistered total=%d", h, n)
	if r.opts.OnConnCountChange != nil {
		r.opts.OnConnCountChange(n)
	}
}

// Broadcast delivers the payload to every connection subscribed to region or
// to all regions. Delivery is at-most-once: a connection with a full queue is
// dropped rather than awaited.
func (r *Registry) Broadcast(region string, p Payload) {
	data, err := json.Marshal(p)
	if err != nil {
		r.logger.Printf("[notify] marshal payload: %v", err)
		return
	}
	if r.opts.OnBroadcast != nil {
		r.opts.OnBroadcast()
	}

	r.mu.RLock()
	targets := make([]*liveConn, 0, len(r.conns))
	for _, c := range r.conns {
		if c.region == "" || c.region == region {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.out <- data:
		case <-c.done:
			// Already torn down, nothing to deliver.
		default:
			r.logger.Printf("[notify] connection %s queue full, dropping connection", c.handle)
			if r.opts.OnDrop != nil {
				r.opts.OnDrop()
			}
			r.Unregister(c.handle)
		}
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close unregisters every connection and waits for the writers to finish.
func (r *Registry) Close() {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.conns))
	for h := range r.conns {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	for _, h := range handles {
		r.Unregister(h)
	}
	r.wg.Wait()
}

func (r *Registry) writeLoop(c *liveConn) {
	defer r.wg.Done()
	defer c.sender.Close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			if err := c.sender.Write(data); err != nil {
				r.logger.Printf("[notify] write to connection %s failed: %v", c.handle, err)
				r.Unregister(c.handle)
				return
			}
		}
	}
}
