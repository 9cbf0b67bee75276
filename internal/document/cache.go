package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/book-expert/speakctl/internal/blobstore"
	"github.com/book-expert/speakctl/internal/core"
)

// Document Cache (C15, SPEC_FULL §4.15): content-addressed by Document
// Cache Key, backed by the same blobstore.Store interface the voice-cache
// journal uses (§4.10), so both on-disk stores share one atomicity and
// corruption-handling code path. Grounded on
// original_source/tts_cli/document_processing/performance_cache.py's
// cache-key shape, deliberately inverted from pickle to JSON per
// SPEC_FULL §4.15/§9's binary-cache security-hazard note.

// CacheKey computes the Document Cache Key from SPEC_FULL §3:
// hash(normalised_content_bytes || format_hint || ssml_platform ||
// emotion_profile).
func CacheKey(normalisedContent string, formatHint Format, platform Platform, profile EmotionProfile) string {
	h := sha256.New()
	h.Write([]byte(normalisedContent))
	fmt.Fprintf(h, "|%d|%d|%d", formatHint, platform, profile)

	return hex.EncodeToString(h.Sum(nil))
}

// cacheRecord is the JSON value format stored under a cache key.
type cacheRecord struct {
	Elements []AnnotatedElement `json:"elements"`
}

// Cache is the content-addressed store of parse results.
type Cache struct {
	store *blobstore.Store
}

// NewCache opens (creating if absent) a Cache rooted at dir.
func NewCache(dir string) (*Cache, error) {
	store, err := blobstore.New(dir)
	if err != nil {
		return nil, core.NewInternalError("failed to open document cache directory", err)
	}

	return &Cache{store: store}, nil
}

// Get returns the cached annotated-element sequence for key. A corrupt
// entry (legacy binary-pickle leftovers, or truncated JSON from a prior
// crash) is treated as a miss and the offending file is removed, per
// SPEC_FULL §4.15 "get on corruption returns miss and removes the
// offending file".
func (c *Cache) Get(key string) ([]AnnotatedElement, bool) {
	data, err := c.store.Get(key)
	if err != nil {
		return nil, false
	}

	if !isJSONCacheRecord(data) {
		_ = c.store.Delete(key)

		return nil, false
	}

	var record cacheRecord

	if err := json.Unmarshal(data, &record); err != nil {
		_ = c.store.Delete(key)

		return nil, false
	}

	return record.Elements, true
}

// isJSONCacheRecord is a cheap self-describing-format check: a legacy
// pickle file never starts with '{', so this alone is enough to reject it
// without attempting to deserialise attacker-controlled binary data as
// JSON and hoping it fails safely.
func isJSONCacheRecord(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}

	return false
}

// Put stores elements under key, atomically (temp file + rename, via
// blobstore.Store.Put).
func (c *Cache) Put(key string, elements []AnnotatedElement) error {
	data, err := json.Marshal(cacheRecord{Elements: elements})
	if err != nil {
		return core.NewInternalError("failed to marshal document cache record", err)
	}

	if err := c.store.Put(key, data); err != nil {
		return core.NewInternalError("failed to write document cache entry", err)
	}

	return nil
}

// Clear removes every entry, including any legacy non-JSON files the
// directory may still hold from before this store existed.
func (c *Cache) Clear() error {
	err := c.store.Clear()
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return core.NewInternalError("failed to clear document cache", err)
	}

	return nil
}
