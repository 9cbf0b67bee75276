// Package voicecache implements the Voice Cache Manager (SPEC_FULL §4.10).
// Identity is a stable content hash (grounded on
// performance_cache.py's get_cache_key sha256-of-content pattern, applied
// to raw audio bytes instead of document text) rather than the source
// path, so the same reference audio loaded from two different paths
// resolves to one server-side token. The registry is journalled through
// internal/blobstore, the same atomic-write store backing the document
// cache (C15), and mutation is serialised with a sync.Mutex while
// lookup/status share a sync.RWMutex read lock, per SPEC_FULL §5.
package voicecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speakctl/internal/blobstore"
	"github.com/book-expert/speakctl/internal/core"
)

const journalKey = "voice-cache-journal"

// ServerLoader is the subset of the local provider this package depends
// on. Defined here (not imported from internal/providers/local) so
// neither package needs to import the other; internal/providers/local.Provider
// satisfies this interface structurally.
type ServerLoader interface {
	LoadVoice(ctx context.Context, path string) (string, error)
	UnloadVoice(ctx context.Context, token string) error
	UnloadAll(ctx context.Context) (int, error)
}

// Entry is one journalled registry row, per SPEC_FULL §4.10's
// `{identity, source_path, loaded_at}` contract.
type Entry struct {
	Identity   string    `json:"identity"`
	SourcePath string    `json:"source_path"`
	Token      string    `json:"token"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// Manager owns the live voice-cache registry and its journal.
type Manager struct {
	loader  ServerLoader
	journal *blobstore.Store
	log     *logger.Logger

	mu      sync.RWMutex
	entries map[string]Entry // keyed by identity
}

// New constructs a Manager, loading any existing journal at journalDir.
// A missing or corrupt journal starts the registry empty rather than
// failing construction, matching SPEC_FULL §4.10's "tokens are
// re-established lazily" invariant: the journal is a record of history,
// not a live handle.
func New(loader ServerLoader, journalDir string, log *logger.Logger) (*Manager, error) {
	store, err := blobstore.New(journalDir)
	if err != nil {
		return nil, core.NewInternalError("failed to open voice cache journal directory", err)
	}

	m := &Manager{
		loader:  loader,
		journal: store,
		log:     log,
		entries: make(map[string]Entry),
	}

	if err := m.loadJournal(); err != nil && log != nil {
		log.Warn("voice cache journal could not be read, starting empty: %v", err)
	}

	return m, nil
}

func (m *Manager) loadJournal() error {
	data, err := m.journal.Get(journalKey)
	if err != nil {
		if err == blobstore.ErrNotFound {
			return nil
		}

		return err
	}

	var entries []Entry

	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	for _, e := range entries {
		m.entries[e.Identity] = e
	}

	return nil
}

func (m *Manager) persistJournalLocked() error {
	entries := make([]Entry, 0, len(m.entries))

	for _, e := range m.entries {
		entries = append(entries, e)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return core.NewInternalError("failed to marshal voice cache journal", err)
	}

	return m.journal.Put(journalKey, data)
}

// identityOf computes the stable content identity for the audio file at
// path: sha256 over the raw bytes, hex-encoded. Hashing content (not the
// path string) is what makes load idempotent across differently-named
// copies of the same reference audio.
func identityOf(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", core.NewVoiceError("local", fmt.Sprintf("reference audio not readable: %v", err), nil)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}

// Load loads each reference-audio path, returning the token for each.
// Re-loading a path whose content identity is already registered is a
// no-op that returns the existing token (SPEC_FULL §4.10 idempotence).
func (m *Manager) Load(ctx context.Context, paths ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := make([]string, 0, len(paths))

	for _, path := range paths {
		identity, err := identityOf(path)
		if err != nil {
			return nil, err
		}

		if existing, ok := m.entries[identity]; ok {
			tokens = append(tokens, existing.Token)

			continue
		}

		token, err := m.loader.LoadVoice(ctx, path)
		if err != nil {
			return nil, err
		}

		m.entries[identity] = Entry{
			Identity:   identity,
			SourcePath: path,
			Token:      token,
			LoadedAt:   time.Now(),
		}

		tokens = append(tokens, token)
	}

	if err := m.persistJournalLocked(); err != nil {
		return nil, err
	}

	return tokens, nil
}

// EnsureLoaded resolves path to a token, loading it on the fly if absent.
// It implements internal/providers/local.Resolver structurally.
func (m *Manager) EnsureLoaded(ctx context.Context, path string) (string, error) {
	tokens, err := m.Load(ctx, path)
	if err != nil {
		return "", err
	}

	return tokens[0], nil
}

// Unload removes entries by source path and releases their server-side
// references.
func (m *Manager) Unload(ctx context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, path := range paths {
		identity, err := identityOf(path)
		if err != nil {
			return err
		}

		entry, ok := m.entries[identity]
		if !ok {
			continue
		}

		if err := m.loader.UnloadVoice(ctx, entry.Token); err != nil {
			return err
		}

		delete(m.entries, identity)
	}

	return m.persistJournalLocked()
}

// UnloadAll drops the entire registry and instructs the server to
// release every reference.
func (m *Manager) UnloadAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, err := m.loader.UnloadAll(ctx)
	if err != nil {
		return 0, err
	}

	m.entries = make(map[string]Entry)

	if err := m.persistJournalLocked(); err != nil {
		return 0, err
	}

	return count, nil
}

// Lookup is a total function: it returns ok=false rather than an error
// when path's content identity is not registered.
func (m *Manager) Lookup(path string) (token string, ok bool) {
	identity, err := identityOf(path)
	if err != nil {
		return "", false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, found := m.entries[identity]
	if !found {
		return "", false
	}

	return entry.Token, true
}

// Status returns the live registry as a stable-ordered slice of entries.
func (m *Manager) Status() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))

	for _, e := range m.entries {
		out = append(out, e)
	}

	return out
}
