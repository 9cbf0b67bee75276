// Package providers implements the Provider Registry & Dispatch (SPEC_FULL
// §4.4) and the voice-string resolution algorithm it specifies. Loader
// thunks are invoked lazily at first use, mirroring the
// "create-first-bind-if-existing" lazy-init shape used by the teacher's
// internal/objectstore/nats_store.go.
package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/book-expert/speakctl/internal/core"
)

// Loader constructs a provider handle on first use.
type Loader func() (core.Provider, error)

// ids is the fixed provider scan order named in SPEC_FULL §4.4 step 3. Its
// order is part of the contract and must never change across releases.
var ids = []string{"edge", "openai", "elevenlabs", "google", "local"}

// Registry maintains the provider id -> loader thunk mapping and the short
// alias -> provider id mapping (SPEC_FULL §4.4).
type Registry struct {
	mu      sync.Mutex
	loaders map[string]Loader
	aliases map[string]string
	handles map[string]core.Provider
}

// NewRegistry constructs an empty Registry. Callers register loaders with
// Register before resolving anything.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[string]Loader),
		aliases: make(map[string]string),
		handles: make(map[string]core.Provider),
	}
}

// Register associates a provider id with its loader thunk and a set of
// short aliases that resolve to it (e.g. id "openai", aliases
// {"openai", "oai"}).
func (r *Registry) Register(id string, loader Loader, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaders[id] = loader

	for _, alias := range aliases {
		r.aliases[alias] = id
	}

	r.aliases[id] = id
}

// ResolveAlias maps a short alias to its provider id.
func (r *Registry) ResolveAlias(alias string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.aliases[alias]

	return id, ok
}

// Resolve returns the provider handle for id, constructing it via the
// registered loader on first use and caching it for the registry's
// lifetime. Unused heavy back-ends never pay their startup cost.
func (r *Registry) Resolve(id string) (core.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.handles[id]; ok {
		return handle, nil
	}

	loader, ok := r.loaders[id]
	if !ok {
		return nil, core.NewVoiceError("", fmt.Sprintf("unknown provider %q", id), r.knownIDsLocked())
	}

	handle, err := loader()
	if err != nil {
		return nil, fmt.Errorf("failed to load provider %q: %w", id, err)
	}

	r.handles[id] = handle

	return handle, nil
}

// KnownIDs returns every registered provider id, in the fixed scan order
// where present, followed by any remaining registered ids.
func (r *Registry) KnownIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.knownIDsLocked()
}

func (r *Registry) knownIDsLocked() []string {
	seen := make(map[string]bool, len(r.loaders))
	out := make([]string, 0, len(r.loaders))

	for _, id := range ids {
		if _, ok := r.loaders[id]; ok {
			out = append(out, id)
			seen[id] = true
		}
	}

	for id := range r.loaders {
		if !seen[id] {
			out = append(out, id)
		}
	}

	return out
}

// VoiceCatalogue returns the live voice names for id via ListVoices. Errors
// are returned to the caller rather than swallowed; callers that only want
// a best-effort scan (as in ParseVoiceRef) should treat an error as "no
// match" and continue.
func (r *Registry) VoiceCatalogue(ctx context.Context, id string) ([]core.VoiceRecord, error) {
	provider, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}

	return provider.ListVoices(ctx)
}
