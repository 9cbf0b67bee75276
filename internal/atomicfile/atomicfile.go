// Package atomicfile provides the "write to temp file, rename on success"
// helper every non-streaming provider synthesis path uses (SPEC_FULL §4.3:
// "the provider MUST write a complete, valid audio container to the given
// path and succeed only when the file is closed"), grounded on
// original_source/tts_cli/audio_utils.py's convert_with_cleanup pattern.
package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFromReader copies every byte of src into a temp file beside path,
// then renames it into place. On any failure the temp file is removed and
// no file is left at path.
func WriteFromReader(path string, src io.Reader) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create output directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".speakctl-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %q: %w", dir, err)
	}

	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, src)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()

	if copyErr != nil || syncErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write %q: copy=%v sync=%v close=%v", path, copyErr, syncErr, closeErr)
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to commit %q: %w", path, err)
	}

	return nil
}
