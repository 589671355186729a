package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jzx17/prioexec/pkg/types"
)

// ExecutorConfig contains configuration for a priority executor
type ExecutorConfig struct {
	// MaxWorkers caps the number of concurrent worker goroutines
	MaxWorkers int

	// ThreadNamePrefix names workers "<prefix>-<n>" in logs and pprof labels.
	// Empty means "PriorityExecutor-<executor number>".
	ThreadNamePrefix string

	// Initializer runs once in every worker before it takes any task.
	// If it fails the executor becomes broken.
	Initializer func(ctx context.Context) error

	// Logger receives worker lifecycle and failure logs (optional, defaults to zap.L())
	Logger *zap.Logger

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Registry tracks workers for process exit (optional, defaults to DefaultExitRegistry())
	Registry *ExitRegistry
}

// DefaultMaxWorkers returns min(32, NumCPU+4)
func DefaultMaxWorkers() int {
	n := runtime.NumCPU() + 4
	if n > 32 {
		n = 32
	}
	return n
}

// DefaultExecutorConfig returns default configuration
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxWorkers: DefaultMaxWorkers(),
		Clock:      types.NewRealClock(),
	}
}

// Validate checks the configuration and reports every problem found
func (c *ExecutorConfig) Validate() error {
	var err error
	if c.MaxWorkers <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: max workers must be positive, got %d",
			types.ErrInvalidConfig, c.MaxWorkers))
	}
	if strings.ContainsAny(c.ThreadNamePrefix, "\r\n") {
		err = multierr.Append(err, fmt.Errorf("%w: thread name prefix must be a single line, got %q",
			types.ErrInvalidConfig, c.ThreadNamePrefix))
	}
	return err
}

// fileConfig is the YAML form of ExecutorConfig
type fileConfig struct {
	MaxWorkers       *int   `yaml:"max_workers"`
	ThreadNamePrefix string `yaml:"thread_name_prefix"`
}

// ParseExecutorConfig reads a YAML document on top of DefaultExecutorConfig.
// Unknown keys are rejected.
func ParseExecutorConfig(data []byte) (*ExecutorConfig, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}

	config := DefaultExecutorConfig()
	if fc.MaxWorkers != nil {
		config.MaxWorkers = *fc.MaxWorkers
	}
	config.ThreadNamePrefix = fc.ThreadNamePrefix

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadExecutorConfig reads a YAML config file
func LoadExecutorConfig(path string) (*ExecutorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read executor config: %w", err)
	}
	return ParseExecutorConfig(data)
}
