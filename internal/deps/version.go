package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// WithVersions fills Detail of every available entry with the first line of
// its "-version" output. Tools that reject the flag keep an empty detail.
func WithVersions(ctx context.Context, statuses []Status) []Status {
	out := make([]Status, len(statuses))
	for i, s := range statuses {
		out[i] = s
		if !s.Available || s.Detail != "" {
			continue
		}
		if version := probeVersion(ctx, s.Command); version != "" {
			out[i].Detail = version
		}
	}
	return out
}

func probeVersion(ctx context.Context, command string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := commandContext(ctx, command, "-version").Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}
