package node

import (
	"context"
	"net/http"
	"sync"

	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/event"
	"github.com/lavapool/lavapool/internal/logging"
)

// Registry tracks the pool of known nodes and picks the least loaded one
// for new work. Nodes keep insertion order so penalty ties resolve to the
// earliest-registered node.
type Registry struct {
	logger *logging.Logger
	bus    *event.Bus
	http   *http.Client

	regionFallback bool

	mu    sync.RWMutex
	nodes []*Node
	byKey map[string]*Node

	lossListener func(*Node)
}

// NewRegistry creates an empty node registry. regionFallback controls
// whether BestNode may fall back to nodes outside the requested region.
func NewRegistry(logger *logging.Logger, bus *event.Bus, httpClient *http.Client, regionFallback bool) *Registry {
	return &Registry{
		logger:         logger,
		bus:            bus,
		http:           httpClient,
		regionFallback: regionFallback,
		byKey:          make(map[string]*Node),
	}
}

// OnNodeLoss installs the callback fired when a node's session becomes
// permanently disconnected. Must be set before nodes are added.
func (r *Registry) OnNodeLoss(fn func(*Node)) {
	r.lossListener = fn
}

// Add registers a node and starts its session. Two nodes with the same
// host and port are the same node; adding it twice fails.
func (r *Registry) Add(ctx context.Context, cfg config.NodeConfig) (*Node, error) {
	n := New(cfg, r.http, r.logger, r.bus)
	if err := r.register(n); err != nil {
		return nil, err
	}

	n.Connect(ctx)
	return n, nil
}

func (r *Registry) register(n *Node) error {
	r.mu.Lock()
	if _, exists := r.byKey[n.Key()]; exists {
		r.mu.Unlock()
		return ErrDuplicateNode
	}
	r.nodes = append(r.nodes, n)
	r.byKey[n.Key()] = n
	r.mu.Unlock()

	n.SetTerminalHandler(func() {
		if r.lossListener != nil {
			r.lossListener(n)
		}
	})

	r.logger.Info("Node registered",
		"node", n.Name(),
		"region", n.Region(),
		"search_only", n.SearchOnly())
	return nil
}

// Remove unregisters a node and tears down its session. Removing an
// unknown node is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	var removed *Node
	for i, n := range r.nodes {
		if n.Name() == name {
			removed = n
			r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
			delete(r.byKey, n.Key())
			break
		}
	}
	r.mu.Unlock()

	if removed != nil {
		removed.Close()
		r.logger.Info("Node removed", "node", name)
	}
}

// Get returns a node by name, or nil.
func (r *Registry) Get(name string) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.nodes {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

// Nodes returns all registered nodes in registration order.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// AvailableNodes returns the nodes with a connected session.
func (r *Registry) AvailableNodes() []*Node {
	return r.filter(func(n *Node) bool {
		return n.Available()
	})
}

// SearchOnlyNodes returns the available nodes reserved for track
// resolution.
func (r *Registry) SearchOnlyNodes() []*Node {
	return r.filter(func(n *Node) bool {
		return n.Available() && n.SearchOnly()
	})
}

// PlaybackNodes returns the available nodes eligible to host players.
func (r *Registry) PlaybackNodes() []*Node {
	return r.filter(func(n *Node) bool {
		return n.Available() && !n.SearchOnly()
	})
}

func (r *Registry) filter(keep func(*Node) bool) []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Node
	for _, n := range r.nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// BestNode returns the available playback node with the lowest penalty.
// Search-only nodes never qualify: a pool where only search-only nodes
// are up yields nil even though AvailableNodes is non-empty. When region
// is set, only nodes in that region are considered first; with region
// fallback enabled an empty region pool widens to all available playback
// nodes. Returns nil when no node qualifies.
func (r *Registry) BestNode(region string) *Node {
	candidates := r.PlaybackNodes()

	if region != "" {
		var regional []*Node
		for _, n := range candidates {
			if n.Region() == region {
				regional = append(regional, n)
			}
		}

		if len(regional) > 0 {
			candidates = regional
		} else if !r.regionFallback {
			return nil
		}
	}

	var best *Node
	bestTotal := 0.0
	for _, n := range candidates {
		total := n.Penalty().Total
		if best == nil || total < bestTotal {
			best = n
			bestTotal = total
		}
	}
	return best
}

// CloseAll tears down every node session.
func (r *Registry) CloseAll() {
	for _, n := range r.Nodes() {
		n.Close()
	}
}
