package main

import (
	"strings"

	"sprocket/internal/api"
	"sprocket/internal/config"
)

// commandContext lazily resolves configuration and the daemon API client so
// commands that need neither stay cheap.
type commandContext struct {
	apiFlag    *string
	configFlag *string

	cfg        *config.Config
	configPath string
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{apiFlag: apiFlag, configFlag: configFlag}
}

func (c *commandContext) configValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// ensureConfig loads and caches the configuration.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, path, _, err := config.Load(c.configValue())
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.configPath = path
	return cfg, nil
}

// client builds a daemon API client from the --api flag or the configured
// bind address.
func (c *commandContext) client() (*api.Client, error) {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return api.NewClient(*c.apiFlag)
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Paths.APIBind)
}
