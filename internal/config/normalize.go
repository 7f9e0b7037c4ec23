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
	c.normalizeRuntime()
	if err := c.normalizePublishing(); err != nil {
		return err
	}
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
	return nil
}

func (c *Config) normalizeRuntime() {
	c.Runtime.Binary = strings.TrimSpace(c.Runtime.Binary)
	if c.Runtime.Binary == "" {
		c.Runtime.Binary = defaultRuntimeBinary
	}
	args := make([]string, 0, len(c.Runtime.ServeArgs))
	for _, arg := range c.Runtime.ServeArgs {
		if arg = strings.TrimSpace(arg); arg != "" {
			args = append(args, arg)
		}
	}
	if len(args) == 0 {
		args = []string{"serve"}
	}
	c.Runtime.ServeArgs = args
	c.Runtime.ConfigSubdir = strings.Trim(strings.TrimSpace(c.Runtime.ConfigSubdir), "/")
	if c.Runtime.ConfigSubdir == "" {
		c.Runtime.ConfigSubdir = defaultConfigSubdir
	}
	if c.Runtime.LineBuffer == 0 {
		c.Runtime.LineBuffer = defaultLineBuffer
	}
}

func (c *Config) normalizePublishing() error {
	c.Publishing.ExecutorURL = strings.TrimRight(strings.TrimSpace(c.Publishing.ExecutorURL), "/")
	if c.Publishing.ExecutorURL == "" {
		c.Publishing.ExecutorURL = defaultExecutorURL
	}
	c.Publishing.AdminCredential = strings.TrimSpace(c.Publishing.AdminCredential)
	if c.Publishing.AdminCredential == "" {
		if value, ok := os.LookupEnv(adminCredentialEnv); ok {
			c.Publishing.AdminCredential = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Publishing.OutputPath) == "" {
		c.Publishing.OutputPath = defaultOutputPath
	}
	var err error
	if c.Publishing.OutputPath, err = expandPath(c.Publishing.OutputPath); err != nil {
		return fmt.Errorf("publishing.output_path: %w", err)
	}
	return nil
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
