package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoLogs is returned by Latest when no run log exists yet.
var ErrNoLogs = errors.New("no daemon log files found")

const maxLineBytes = 1024 * 1024

// Chunk is a batch of lines read from a log file plus the byte offset to
// resume from.
type Chunk struct {
	Lines  []string
	Offset int64
}

// Matcher decides whether a line is kept. A nil Matcher keeps everything.
type Matcher func(line string) bool

// Contains returns a Matcher keeping lines that contain every non-empty term.
func Contains(terms ...string) Matcher {
	var kept []string
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			kept = append(kept, term)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return func(line string) bool {
		for _, term := range kept {
			if !strings.Contains(line, term) {
				return false
			}
		}
		return true
	}
}

// Latest returns the newest file in dir matching pattern. Run log names embed
// a UTC timestamp, so the lexically greatest name is the newest run.
func Latest(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("glob log files: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoLogs, dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// Last returns up to n trailing lines of path that pass match. The offset
// points at the end of the file.
func Last(path string, n int, match Matcher) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if n <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return Chunk{}, fmt.Errorf("seek log file: %w", err)
		}
		return Chunk{Offset: end}, nil
	}

	ring := make([]string, n)
	count, next := 0, 0
	offset, err := scan(file, func(line string) {
		if match != nil && !match(line) {
			return
		}
		ring[next] = line
		next = (next + 1) % n
		if count < n {
			count++
		}
	})
	if err != nil {
		return Chunk{}, err
	}

	lines := make([]string, count)
	start := 0
	if count == n {
		start = next
	}
	for i := range count {
		lines[i] = ring[(start+i)%n]
	}
	return Chunk{Lines: lines, Offset: offset}, nil
}

// Since reads every complete line after offset. An offset beyond the end of
// the file means it was truncated or rotated, and reading restarts at zero.
func Since(path string, offset int64, match Matcher) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	read, err := scan(file, func(line string) {
		if match == nil || match(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return Chunk{Offset: offset}, err
	}
	return Chunk{Lines: lines, Offset: offset + read}, nil
}

// Follow polls path from offset and hands each new matching line to emit
// until ctx is done. A nil error is returned on cancellation.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, match Matcher, emit func(string)) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		chunk, err := Since(path, offset, match)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		for _, line := range chunk.Lines {
			emit(line)
		}
		offset = chunk.Offset

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// scan feeds complete lines to fn and returns the number of bytes consumed.
// A trailing line without a newline is left for the next read.
func scan(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			text := strings.TrimRight(line, "\r\n")
			if len(text) > maxLineBytes {
				text = text[:maxLineBytes]
			}
			fn(text)
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}
