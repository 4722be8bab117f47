package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeImport()
	c.normalizeAnalysis()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.InboxDir, err = expandPath(strings.TrimSpace(c.Paths.InboxDir)); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLibrary() error {
	var err error
	if strings.TrimSpace(c.Library.Path) == "" {
		c.Library.Path = defaultLibraryPath
	}
	if c.Library.Path, err = expandPath(c.Library.Path); err != nil {
		return fmt.Errorf("library.path: %w", err)
	}
	if strings.TrimSpace(c.Library.Directory) == "" {
		c.Library.Directory = defaultLibraryDirectory
	}
	if c.Library.Directory, err = expandPath(c.Library.Directory); err != nil {
		return fmt.Errorf("library.directory: %w", err)
	}
	beets := strings.TrimSpace(c.Library.BeetsConfig)
	if beets == "" {
		if value, ok := os.LookupEnv("BEETSDIR"); ok && strings.TrimSpace(value) != "" {
			beets = strings.TrimSpace(value) + "/config.yaml"
		}
	}
	if c.Library.BeetsConfig, err = expandPath(beets); err != nil {
		return fmt.Errorf("library.beets_config: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("TAGFLOW_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	if c.API.WebsocketBuffer <= 0 {
		c.API.WebsocketBuffer = defaultWebsocketBuffer
	}
}

func (c *Config) normalizeImport() {
	c.Import.DuplicateAction = strings.ToLower(strings.TrimSpace(c.Import.DuplicateAction))
	if c.Import.DuplicateAction == "" {
		c.Import.DuplicateAction = defaultDuplicateAction
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.FFmpegBinary = strings.TrimSpace(c.Analysis.FFmpegBinary)
	if c.Analysis.FFmpegBinary == "" {
		c.Analysis.FFmpegBinary = defaultFFmpegBinary
	}
	c.Analysis.FFprobeBinary = strings.TrimSpace(c.Analysis.FFprobeBinary)
	if c.Analysis.FFprobeBinary == "" {
		c.Analysis.FFprobeBinary = defaultFFprobeBinary
	}
	c.Analysis.KeyfinderBinary = strings.TrimSpace(c.Analysis.KeyfinderBinary)
	if c.Analysis.KeyfinderBinary == "" {
		c.Analysis.KeyfinderBinary = defaultKeyfinderBinary
	}
	if c.Analysis.KeyTimeoutSeconds == 0 {
		c.Analysis.KeyTimeoutSeconds = defaultKeyTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("TAGFLOW_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
