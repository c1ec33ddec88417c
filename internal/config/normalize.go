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
	c.normalizeQueue()
	if err := c.normalizeDispatch(); err != nil {
		return err
	}
	c.normalizeStages()
	c.normalizePublish()
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
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		c.Paths.ResultsDir = defaultResultsDir
	}
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.VisibilityTimeout <= 0 {
		c.Queue.VisibilityTimeout = defaultVisibilityTimeout
	}
	if c.Queue.MaxReceives <= 0 {
		c.Queue.MaxReceives = defaultMaxReceives
	}
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = defaultQueuePollInterval
	}
	if c.Queue.ErrorRetryInterval <= 0 {
		c.Queue.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeDispatch() error {
	if c.Dispatch.ClaimTTL <= 0 {
		c.Dispatch.ClaimTTL = defaultClaimTTL
	}
	if c.Dispatch.LaunchRetries <= 0 {
		c.Dispatch.LaunchRetries = defaultLaunchRetries
	}
	if c.Dispatch.LaunchRetryBackoff <= 0 {
		c.Dispatch.LaunchRetryBackoff = defaultLaunchRetryBackoff
	}
	if c.Dispatch.WorkerStartTimeout <= 0 {
		c.Dispatch.WorkerStartTimeout = defaultWorkerStartTimeout
	}
	c.Dispatch.WorkerBinary = strings.TrimSpace(c.Dispatch.WorkerBinary)
	if c.Dispatch.WorkerBinary == "" {
		c.Dispatch.WorkerBinary = defaultWorkerBinary
	}
	return nil
}

func (c *Config) normalizeStages() {
	normalizeStageService(&c.Stages.Diarization, "SPROCKET_DIARIZATION_API_KEY", defaultStageTimeoutSeconds)
	normalizeStageService(&c.Stages.Transcription, "SPROCKET_TRANSCRIPTION_API_KEY", defaultStageTimeoutSeconds)
	normalizeStageService(&c.Stages.Segmentation, "SPROCKET_SEGMENTATION_API_KEY", defaultStageTimeoutSeconds)
	normalizeStageService(&c.Stages.Keyframes, "SPROCKET_KEYFRAMES_API_KEY", defaultStageTimeoutSeconds)
	normalizeStageService(&c.Stages.Summary, "SPROCKET_SUMMARY_API_KEY", defaultSummaryTimeoutSeconds)
}

func normalizeStageService(svc *StageService, envKey string, defaultTimeout int) {
	svc.BaseURL = strings.TrimSpace(svc.BaseURL)
	if svc.APIKey == "" {
		if value, ok := os.LookupEnv(envKey); ok {
			svc.APIKey = value
		}
	}
	if svc.TimeoutSeconds <= 0 {
		svc.TimeoutSeconds = defaultTimeout
	}
}

func (c *Config) normalizePublish() {
	c.Publish.IndexURL = strings.TrimSpace(c.Publish.IndexURL)
	if c.Publish.APIKey == "" {
		if value, ok := os.LookupEnv("SPROCKET_INDEX_API_KEY"); ok {
			c.Publish.APIKey = value
		}
	}
	if c.Publish.TimeoutSeconds <= 0 {
		c.Publish.TimeoutSeconds = defaultPublishTimeoutSeconds
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
