package channels

import (
	"fmt"
	"sort"
	"sync"
)

// Channel bundles the three capabilities of one provider.
type Channel struct {
	Codec   Codec
	Sender  Sender
	Fetcher MediaFetcher
}

// Registry maps providers to channels.
type Registry struct {
	mu       sync.RWMutex
	channels map[Provider]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[Provider]Channel)}
}

// Register adds or replaces a channel. The codec's provider is the key.
func (r *Registry) Register(ch Channel) {
	if ch.Codec == nil {
		panic("channels: codec required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Codec.Provider()] = ch
}

// Get returns the channel for a provider.
func (r *Registry) Get(p Provider) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[p]
	if !ok {
		return Channel{}, fmt.Errorf("channels: provider %q not registered", p)
	}
	return ch, nil
}

// Providers lists registered providers in stable order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.channels))
	for p := range r.channels {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
