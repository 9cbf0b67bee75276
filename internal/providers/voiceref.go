package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/speakctl/internal/core"
)

// cloneableExtensions are the audio file extensions that make a bare path
// string resolve to CloneFrom per SPEC_FULL §4.4 step 2.
var cloneableExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
}

// ParseVoiceRef implements the deterministic, total voice-string resolution
// algorithm from SPEC_FULL §4.4. It is pure except for the catalogue scan in
// step 3 and the path-existence check in step 2, both of which are
// themselves deterministic for a fixed provider catalogue and filesystem
// state (SPEC_FULL §8 property 1/2).
func (r *Registry) ParseVoiceRef(ctx context.Context, s string) (core.VoiceRef, error) {
	if s == "" {
		return core.VoiceRef{Kind: core.VoiceDefault}, nil
	}

	// Step 1: explicit "<provider>:<voice>" form.
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		providerID, voiceName := s[:idx], s[idx+1:]

		resolved, ok := r.ResolveAlias(providerID)
		if !ok {
			return core.VoiceRef{}, core.NewVoiceError("", fmt.Sprintf("unknown provider %q in voice reference %q", providerID, s), r.KnownIDs())
		}

		return core.VoiceRef{Kind: core.VoiceNamed, ProviderID: resolved, VoiceName: voiceName}, nil
	}

	// Step 2: readable file path with an audio extension implies CloneFrom.
	if looksLikeClonePath(s) {
		return core.VoiceRef{Kind: core.VoiceCloneFrom, Path: s}, nil
	}

	// Step 3: scan each provider's catalogue in the fixed order.
	for _, id := range ids {
		if _, ok := r.loaders[id]; !ok {
			continue
		}

		voices, err := r.VoiceCatalogue(ctx, id)
		if err != nil {
			continue
		}

		for _, v := range voices {
			if v.Name == s {
				return core.VoiceRef{Kind: core.VoiceNamed, ProviderID: id, VoiceName: s}, nil
			}
		}
	}

	// Step 4: no match.
	return core.VoiceRef{}, core.NewVoiceError("", fmt.Sprintf("no provider advertises voice %q", s), r.suggestionsFor(ctx, s))
}

func looksLikeClonePath(s string) bool {
	ext := extensionOf(s)
	if !cloneableExtensions[ext] {
		return false
	}

	info, err := os.Stat(s)

	return err == nil && !info.IsDir()
}

func extensionOf(s string) string {
	idx := strings.LastIndexByte(s, '.')
	if idx < 0 {
		return ""
	}

	return strings.ToLower(s[idx:])
}

// suggestionsFor returns up to a handful of catalogue voice names, for the
// VoiceError's suggestion list, gathered in the same fixed scan order used
// for resolution.
func (r *Registry) suggestionsFor(ctx context.Context, _ string) []string {
	const maxSuggestions = 5

	suggestions := make([]string, 0, maxSuggestions)

	for _, id := range ids {
		if _, ok := r.loaders[id]; !ok {
			continue
		}

		voices, err := r.VoiceCatalogue(ctx, id)
		if err != nil {
			continue
		}

		for _, v := range voices {
			if len(suggestions) >= maxSuggestions {
				return suggestions
			}

			suggestions = append(suggestions, fmt.Sprintf("%s:%s", id, v.Name))
		}
	}

	return suggestions
}
