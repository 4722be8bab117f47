package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// TagWriter pushes an item's analyzed attributes into its audio file.
type TagWriter interface {
	TryWrite(ctx context.Context, item *Item) error
}

// NopTagWriter leaves files untouched.
type NopTagWriter struct{}

// TryWrite implements TagWriter.
func (NopTagWriter) TryWrite(context.Context, *Item) error { return nil }

// FFmpegTagWriter rewrites the container with new bpm/key metadata, copying
// every stream unchanged. The file is written beside the original and renamed
// over it.
type FFmpegTagWriter struct {
	Binary string
}

// TryWrite implements TagWriter. Items with neither attribute set are skipped.
func (w FFmpegTagWriter) TryWrite(ctx context.Context, item *Item) error {
	if item == nil || (item.BPM == nil && item.InitialKey == nil) {
		return nil
	}
	if strings.TrimSpace(item.Path) == "" {
		return errors.New("tag write: item has no path")
	}
	binary := strings.TrimSpace(w.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}

	ext := filepath.Ext(item.Path)
	tmp := strings.TrimSuffix(item.Path, ext) + ".tagflow-tmp" + ext
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", item.Path, "-map", "0", "-c", "copy"}
	bpmKey, keyKey := metadataKeys(ext)
	if item.BPM != nil {
		args = append(args, "-metadata", bpmKey+"="+strconv.Itoa(*item.BPM))
	}
	if item.InitialKey != nil {
		args = append(args, "-metadata", keyKey+"="+*item.InitialKey)
	}
	args = append(args, tmp)

	out, err := commandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("tag write %s: %w: %s", item.Path, err, strings.TrimSpace(string(out)))
	}
	if err := os.Rename(tmp, item.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("tag write %s: replace file: %w", item.Path, err)
	}
	return nil
}

// metadataKeys returns the tag names ffmpeg maps to the bpm and key fields of
// the container.
func metadataKeys(ext string) (bpm, key string) {
	switch strings.ToLower(ext) {
	case ".mp3", ".aiff", ".aif", ".wav":
		return "TBPM", "TKEY"
	default:
		return "BPM", "INITIALKEY"
	}
}
