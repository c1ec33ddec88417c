package config

const (
	defaultDataDir    = "~/.local/share/sprocket"
	defaultLogDir     = "~/.local/share/sprocket/logs"
	defaultResultsDir = "~/.local/share/sprocket/results"
	defaultAPIBind    = "127.0.0.1:7519"

	defaultVisibilityTimeout  = 900
	defaultMaxReceives        = 5
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 10

	defaultClaimTTL           = 600
	defaultLaunchRetries      = 3
	defaultLaunchRetryBackoff = 2
	defaultWorkerBinary       = "sprocket-worker"
	defaultWorkerStartTimeout = 30

	defaultStageTimeoutSeconds   = 120
	defaultSummaryTimeoutSeconds = 300
	defaultPublishTimeoutSeconds = 30

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			ResultsDir: defaultResultsDir,
			APIBind:    defaultAPIBind,
		},
		Queue: Queue{
			VisibilityTimeout:  defaultVisibilityTimeout,
			MaxReceives:        defaultMaxReceives,
			PollInterval:       defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Dispatch: Dispatch{
			ClaimTTL:           defaultClaimTTL,
			LaunchRetries:      defaultLaunchRetries,
			LaunchRetryBackoff: defaultLaunchRetryBackoff,
			WorkerBinary:       defaultWorkerBinary,
			WorkerStartTimeout: defaultWorkerStartTimeout,
		},
		Stages: Stages{
			Diarization:   StageService{TimeoutSeconds: defaultStageTimeoutSeconds},
			Transcription: StageService{TimeoutSeconds: defaultStageTimeoutSeconds},
			Segmentation:  StageService{TimeoutSeconds: defaultStageTimeoutSeconds},
			Keyframes:     StageService{TimeoutSeconds: defaultStageTimeoutSeconds},
			Summary:       StageService{TimeoutSeconds: defaultSummaryTimeoutSeconds},
		},
		Publish: Publish{
			TimeoutSeconds: defaultPublishTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobStarted:     true,
			JobCompleted:   true,
			JobFailed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
