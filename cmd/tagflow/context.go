package main

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"tagflow/internal/config"
	"tagflow/internal/queue"
	"tagflow/internal/session"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// apiBaseURL prefers --api, then derives a loopback URL from [api].bind.
func (c *commandContext) apiBaseURL() string {
	if c.apiFlag != nil {
		if flag := strings.TrimRight(strings.TrimSpace(*c.apiFlag), "/"); flag != "" {
			return flag
		}
	}
	bind := ""
	if cfg, err := c.ensureConfig(); err == nil {
		bind = cfg.API.Bind
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://127.0.0.1:7488"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (c *commandContext) client() *apiClient {
	token := ""
	if cfg, err := c.ensureConfig(); err == nil {
		token = cfg.API.Token
	}
	return newAPIClient(c.apiBaseURL(), token, 30*time.Second)
}

func (c *commandContext) withQueue(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (c *commandContext) withSessions(fn func(*session.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := session.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
