package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"tagflow/internal/config"
)

// Requirement defines an external binary tagflow relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the analysis and inspection tools cfg points at.
// keyfinder-cli is optional: without it key detection reports a null key
// and tempo analysis still runs.
func Requirements(cfg *config.Config) []Requirement {
	analysis := config.Default().Analysis
	if cfg != nil {
		analysis = cfg.Analysis
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     analysis.FFmpegBinary,
			Description: "Required for PCM decoding and tag write-back",
		},
		{
			Name:        "FFprobe",
			Command:     analysis.FFprobeBinary,
			Description: "Required for media inspection",
		},
		{
			Name:        "keyfinder-cli",
			Command:     analysis.KeyfinderBinary,
			Description: "Musical key detection",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the unavailable, non-optional entries.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
