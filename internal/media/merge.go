package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpegMerger concatenates rendered clips into one file with ffmpeg. The
// merge is the pipeline's resource-scarce operation; concurrency is bounded
// by the scheduler, not here. Inputs are never modified and no partial output
// file survives a failed merge.
type FFmpegMerger struct {
	ffmpegPath string
}

// NewFFmpegMerger creates a merger using the given ffmpeg binary.
func NewFFmpegMerger(ffmpegPath string) *FFmpegMerger {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegMerger{ffmpegPath: ffmpegPath}
}

// Merge concatenates inputs in order into output. Inputs come from the same
// provider and share codec parameters, so the concat demuxer with stream copy
// is enough; no re-encode.
func (m *FFmpegMerger) Merge(ctx context.Context, inputs []string, output string) error {
	if len(inputs) < 2 {
		return fmt.Errorf("merge needs at least 2 inputs, got %d", len(inputs))
	}

	listPath := output + ".txt"
	var list strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", in, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(output)
		return fmt.Errorf("ffmpeg merge failed: %w: %s", err, tail(string(out), 512))
	}

	log.Printf("Merged %d clips into %s", len(inputs), output)
	return nil
}

// tail returns the last n bytes of s, where ffmpeg puts the useful error.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
