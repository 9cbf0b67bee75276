// Package transcode invokes an external transcoder for container/codec
// conversions (SPEC_FULL §4.2), grounded on
// original_source/tts_cli/audio_utils.py's convert_audio/convert_with_cleanup
// temp-file-then-rename pattern.
package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speakctl/internal/core"
)

const (
	defaultTranscoderBinary = "ffmpeg"
	transcoderFlagInput     = "-i"
	transcoderFlagOverwrite = "-y"
	defaultTimeout          = 30 * time.Second
)

// Transcoder invokes an external tool to convert between audio containers.
type Transcoder struct {
	binary string
	log    *logger.Logger
}

// New constructs a Transcoder that forks binary (e.g. "ffmpeg"). If binary
// is empty, defaultTranscoderBinary is used.
func New(binary string, log *logger.Logger) *Transcoder {
	if binary == "" {
		binary = defaultTranscoderBinary
	}

	return &Transcoder{binary: binary, log: log}
}

func (t *Transcoder) logf(format string, args ...any) {
	if t.log == nil {
		return
	}

	t.log.Info(format, args...)
}

// Transcode converts inputPath to outputPath in targetFormat with a fixed
// timeout (default 30s if timeout is zero). Detects transcoder absence and
// fails with DependencyError before any I/O. Writes to a temp file in the
// output directory and atomically renames on success, so a failed or
// cancelled transcode never leaves a partial file at outputPath.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputPath string, targetFormat core.AudioFormat, timeout time.Duration) error {
	if !core.ValidAudioFormat(targetFormat) {
		return core.NewFormatError("", fmt.Sprintf("unsupported target format %q", targetFormat))
	}

	if _, err := exec.LookPath(t.binary); err != nil {
		return core.NewDependencyError("", fmt.Sprintf("transcoder binary %q not found", t.binary), err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tmpPath := outputPath + ".tmp-transcode" + targetFormat.Extension()

	args := []string{
		transcoderFlagInput, inputPath,
		transcoderFlagOverwrite,
		tmpPath,
	}

	cmd := exec.CommandContext(runCtx, t.binary, args...) // #nosec G204 -- binary is validated configuration; inputPath/tmpPath are caller-controlled local paths, not shell-interpreted

	err := cmd.Run()
	if err != nil {
		_ = os.Remove(tmpPath)

		if runCtx.Err() != nil {
			return core.NewCancelledError("transcode cancelled or timed out", err)
		}

		return core.NewProviderError("", "transcoder exited non-zero", err, false)
	}

	err = os.MkdirAll(filepath.Dir(outputPath), 0o755)
	if err != nil {
		_ = os.Remove(tmpPath)

		return core.NewInternalError("failed to create output directory", err)
	}

	err = os.Rename(tmpPath, outputPath)
	if err != nil {
		_ = os.Remove(tmpPath)

		return core.NewInternalError("failed to commit transcoded file", err)
	}

	t.logf("transcoded %s -> %s (%s)", inputPath, outputPath, targetFormat)

	return nil
}
