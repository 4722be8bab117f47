package config

const (
	defaultConfigPath              = "~/.config/tagflow/config.toml"
	defaultDataDir                 = "~/.local/share/tagflow"
	defaultLogDir                  = "~/.local/share/tagflow/logs"
	defaultInboxDir                = "~/music/inbox"
	defaultLibraryPath             = "~/.local/share/tagflow/library.db"
	defaultLibraryDirectory        = "~/music/library"
	defaultAPIBind                 = "127.0.0.1:7488"
	defaultWebsocketBuffer         = 64
	defaultImportThreshold         = 0.2
	defaultDuplicateAction         = "skip"
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultKeyfinderBinary         = "keyfinder-cli"
	defaultKeyTimeoutSeconds       = 60
	defaultNotifyRequestTimeout    = 10
	defaultNotifyRateLimit         = 1.0
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 60
	defaultWorkflowPollInterval    = 2
	defaultWorkflowErrorRetry      = 10
	defaultWorkflowHeartbeatPeriod = 15
	defaultWorkflowHeartbeatExpiry = 120
)

// duplicateActions lists the accepted import.duplicate_action values.
var duplicateActions = map[string]struct{}{
	"skip":   {},
	"keep":   {},
	"remove": {},
	"merge":  {},
	"ask":    {},
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			InboxDir: defaultInboxDir,
		},
		API: API{
			Bind:            defaultAPIBind,
			WebsocketBuffer: defaultWebsocketBuffer,
		},
		Library: Library{
			Path:      defaultLibraryPath,
			Directory: defaultLibraryDirectory,
		},
		Import: Import{
			GroupAlbums:     true,
			Autotag:         true,
			ImportThreshold: defaultImportThreshold,
			DuplicateAction: defaultDuplicateAction,
		},
		Analysis: Analysis{
			FFmpegBinary:      defaultFFmpegBinary,
			FFprobeBinary:     defaultFFprobeBinary,
			KeyfinderBinary:   defaultKeyfinderBinary,
			KeyTimeoutSeconds: defaultKeyTimeoutSeconds,
			WriteTags:         true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RateLimit:      defaultNotifyRateLimit,
			FolderStatus:   true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultWorkflowPollInterval,
			ErrorRetryInterval: defaultWorkflowErrorRetry,
			HeartbeatInterval:  defaultWorkflowHeartbeatPeriod,
			HeartbeatTimeout:   defaultWorkflowHeartbeatExpiry,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
