package analysis

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"tagflow/internal/logging"
)

var (
	commandContext = exec.CommandContext
	lookPath       = exec.LookPath
)

// DefaultKeyTimeout bounds a single keyfinder-cli run.
const DefaultKeyTimeout = 60 * time.Second

// keyWaitDelay caps how long Output keeps reading after the process is killed,
// for example when a forked child still holds stdout open.
const keyWaitDelay = 5 * time.Second

var keyVocabulary = map[string]struct{}{}

func init() {
	for _, k := range []string{
		"C", "Cm", "C#", "C#m", "Db", "Dbm", "D", "Dm", "D#", "D#m", "Eb", "Ebm",
		"E", "Em", "F", "Fm", "F#", "F#m", "Gb", "Gbm", "G", "Gm", "G#", "G#m",
		"Ab", "Abm", "A", "Am", "A#", "A#m", "Bb", "Bbm", "B", "Bm",
	} {
		keyVocabulary[k] = struct{}{}
	}
}

// ParseKey extracts the key from keyfinder-cli output, which is either the
// bare key or "<file>\t<key>". Spelled-out "minor"/"major" suffixes are
// normalized; an unrecognised token is returned as-is. Empty output yields "".
func ParseKey(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	if idx := strings.LastIndexByte(output, '\n'); idx >= 0 {
		output = strings.TrimSpace(output[idx+1:])
	}
	fields := strings.Split(output, "\t")
	token := strings.TrimSpace(fields[len(fields)-1])
	if _, ok := keyVocabulary[token]; ok {
		return token
	}
	normalized := token
	switch {
	case strings.HasSuffix(normalized, " minor"):
		normalized = strings.TrimSuffix(normalized, " minor") + "m"
	case strings.HasSuffix(normalized, " major"):
		normalized = strings.TrimSuffix(normalized, " major")
	}
	if _, ok := keyVocabulary[normalized]; ok {
		return normalized
	}
	return token
}

// KeyDetector estimates the musical key of an audio file. A nil result means
// the key could not be determined.
type KeyDetector interface {
	DetectKey(ctx context.Context, path string) *string
}

// KeyfinderCLI runs keyfinder-cli against a file.
type KeyfinderCLI struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DetectKey implements KeyDetector.
func (k KeyfinderCLI) DetectKey(ctx context.Context, path string) *string {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(k.Logger, "analysis")).With(logging.String("path", path))
	binary := strings.TrimSpace(k.Binary)
	if binary == "" {
		binary = "keyfinder-cli"
	}
	resolved, err := lookPath(binary)
	if err != nil {
		logging.WarnWithContext(logger, "key detector unavailable", "key_detect_unavailable",
			logging.String("binary", binary),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "install keyfinder-cli or set analysis.keyfinder_binary"),
			logging.String(logging.FieldImpact, "initial key left unset"),
		)
		return nil
	}

	timeout := k.Timeout
	if timeout <= 0 {
		timeout = DefaultKeyTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := commandContext(runCtx, resolved, path) //nolint:gosec
	cmd.WaitDelay = keyWaitDelay
	out, err := cmd.Output()
	if err != nil {
		reason := "key_detect_failed"
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			reason = "key_detect_timeout"
		}
		logging.WarnWithContext(logger, "key detection failed", reason,
			logging.Duration("timeout", timeout),
			logging.Error(err),
			logging.String(logging.FieldImpact, "initial key left unset"),
		)
		return nil
	}
	key := ParseKey(string(out))
	if key == "" {
		return nil
	}
	return &key
}
