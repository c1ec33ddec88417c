package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.VisibilityTimeout <= 0 {
		return errors.New("queue.visibility_timeout must be positive")
	}
	if c.Queue.MaxReceives < 1 {
		return errors.New("queue.max_receives must be at least 1")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if c.Dispatch.ClaimTTL <= 0 {
		return errors.New("dispatch.claim_ttl must be positive")
	}
	// The claim must always expire before the queue gives up on redelivery.
	// A longer ttl would strand a job whose dispatcher died after claiming:
	// every redelivery would see a live claim until the message dead-letters.
	redeliveryWindow := c.Queue.VisibilityTimeout * c.Queue.MaxReceives
	if c.Dispatch.ClaimTTL >= redeliveryWindow {
		return fmt.Errorf(
			"dispatch.claim_ttl (%ds) must be shorter than queue.visibility_timeout x queue.max_receives (%ds)",
			c.Dispatch.ClaimTTL, redeliveryWindow,
		)
	}
	if c.Dispatch.WorkerBinary == "" {
		return errors.New("dispatch.worker_binary must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
