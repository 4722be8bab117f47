// Package beetsconfig reads the subset of a beets-style config.yaml that
// supplies import defaults.
package beetsconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tagflow/internal/config"
)

// File mirrors the keys tagflow consumes. Unset keys stay nil.
type File struct {
	Directory string `yaml:"directory"`
	Library   string `yaml:"library"`
	Import    struct {
		GroupAlbums     *bool   `yaml:"group_albums"`
		Autotag         *bool   `yaml:"autotag"`
		DuplicateAction *string `yaml:"duplicate_action"`
	} `yaml:"import"`
	Match struct {
		StrongRecThresh *float64 `yaml:"strong_rec_thresh"`
	} `yaml:"match"`
}

// Load parses path. A blank path or a missing file yields an empty File.
func Load(path string) (*File, error) {
	file := &File{}
	if strings.TrimSpace(path) == "" {
		return file, nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand beets config path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, fs.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read beets config: %w", err)
	}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse beets config %s: %w", path, err)
	}
	return file, nil
}

// ImportDefaults overlays the YAML values on base.
func (f *File) ImportDefaults(base config.Import) config.Import {
	if f == nil {
		return base
	}
	out := base
	if f.Import.GroupAlbums != nil {
		out.GroupAlbums = *f.Import.GroupAlbums
	}
	if f.Import.Autotag != nil {
		out.Autotag = *f.Import.Autotag
	}
	if f.Import.DuplicateAction != nil {
		if action := strings.ToLower(strings.TrimSpace(*f.Import.DuplicateAction)); action != "" {
			out.DuplicateAction = action
		}
	}
	if f.Match.StrongRecThresh != nil {
		out.ImportThreshold = *f.Match.StrongRecThresh
	}
	return out
}

// Resolve loads the beets file named in cfg and returns the effective import
// defaults.
func Resolve(cfg *config.Config) (config.Import, error) {
	file, err := Load(cfg.Library.BeetsConfig)
	if err != nil {
		return cfg.Import, err
	}
	return file.ImportDefaults(cfg.Import), nil
}
