package config

const (
	defaultConfigPath            = "~/.config/seedctl/config.toml"
	defaultDataDir               = "~/.ad4m"
	defaultLogDir                = "~/.local/share/seedctl/logs"
	defaultRuntimeBinary         = "ad4m-host"
	defaultConfigSubdir          = "ad4m"
	defaultLineBuffer            = 256
	defaultExecutorURL           = "http://localhost:12000/graphql"
	defaultOutputPath            = "bootstrapSeed.json"
	defaultRequestTimeoutSeconds = 300
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	adminCredentialEnv           = "SEEDCTL_ADMIN_CREDENTIAL"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Runtime: Runtime{
			Binary:       defaultRuntimeBinary,
			ServeArgs:    []string{"serve"},
			ConfigSubdir: defaultConfigSubdir,
			LineBuffer:   defaultLineBuffer,
		},
		Publishing: Publishing{
			ExecutorURL:           defaultExecutorURL,
			OutputPath:            defaultOutputPath,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
