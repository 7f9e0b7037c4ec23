package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRuntime(); err != nil {
		return err
	}
	if err := c.validatePublishing(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == filepath.Dir(c.Paths.DataDir) {
		return fmt.Errorf("paths.data_dir must not be a filesystem root (got %q)", c.Paths.DataDir)
	}
	if home, err := expandPath("~"); err == nil && c.Paths.DataDir == home {
		return errors.New("paths.data_dir must not be the home directory; it is removed on every run")
	}
	if strings.HasPrefix(c.Paths.LogDir+string(filepath.Separator), c.Paths.DataDir+string(filepath.Separator)) {
		return errors.New("paths.log_dir must not live inside paths.data_dir")
	}
	return nil
}

func (c *Config) validateRuntime() error {
	if strings.Contains(c.Runtime.ConfigSubdir, "..") || c.Runtime.ConfigSubdir == "data" {
		return fmt.Errorf("runtime.config_subdir %q is not allowed", c.Runtime.ConfigSubdir)
	}
	if c.Runtime.LineBuffer < 0 {
		return errors.New("runtime.line_buffer must be >= 0")
	}
	if c.Runtime.InitTimeoutSeconds < 0 {
		return errors.New("runtime.init_timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validatePublishing() error {
	parsed, err := url.Parse(c.Publishing.ExecutorURL)
	if err != nil {
		return fmt.Errorf("publishing.executor_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("publishing.executor_url must use http or https (got %q)", c.Publishing.ExecutorURL)
	}
	if parsed.Host == "" {
		return errors.New("publishing.executor_url must include a host")
	}
	if c.Publishing.RequestTimeoutSeconds <= 0 {
		return errors.New("publishing.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}
