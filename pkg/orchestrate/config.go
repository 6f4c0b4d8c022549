package orchestrate

import (
	"os"
	"strconv"
)

// Config controls batch workflow behavior.
type Config struct {
	Concurrency        int // Max in-flight recognition/prediction calls. Default 3.
	AutoLabelBatchSize int // Assets picked per auto-label batch. Default 5.
}

// DefaultConfig returns the default workflow configuration. The concurrency
// ceiling is a small constant to respect the remote service's rate limits.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:        3,
		AutoLabelBatchSize: 5,
	}
}

// ConfigFromEnv loads config from environment variables.
// LABELING_CONCURRENCY, LABELING_AUTOLABEL_BATCH_SIZE
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("LABELING_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	if v := os.Getenv("LABELING_AUTOLABEL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AutoLabelBatchSize = n
		}
	}

	return cfg
}
