package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/spargo/checkpoint"
	"github.com/hupe1980/spargo/codec"
)

// ErrInvalidConfig is returned by Validate and Load for unusable settings.
var ErrInvalidConfig = errors.New("config: invalid")

// Config is the configuration of a solver session.
type Config struct {
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Solver     SolverConfig     `yaml:"solver"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// RuntimeConfig configures the task runtime and region memory.
type RuntimeConfig struct {
	// Workers is the number of goroutines executing point tasks.
	Workers int `yaml:"workers"`
	// MemoryLimitBytes caps the field memory of solver workspaces. 0 tracks
	// usage without a limit.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`
	// BreakdownCheck turns zero or non-finite scalar divisions into errors.
	BreakdownCheck bool `yaml:"breakdown_check"`
}

// SolverConfig describes the model problem and the CG run.
type SolverConfig struct {
	// N is the number of unknowns of the 1-D Laplacian.
	N int64 `yaml:"n"`
	// Pieces is the number of colors of the equal partition.
	Pieces     int    `yaml:"pieces"`
	Iterations int    `yaml:"iterations"`
	// Format is "coo" or "csr".
	Format string `yaml:"format"`
	// Entry is "float64" or "float32".
	Entry string `yaml:"entry"`
	// Boundary holds the Dirichlet values at the left and right end.
	Boundary [2]float64 `yaml:"boundary,flow"`
	// Print writes the solution after the run.
	Print bool `yaml:"print"`
}

// CheckpointConfig configures periodic checkpoints. Checkpointing is off
// when Target is empty.
type CheckpointConfig struct {
	// Target is a local directory, "s3://bucket/prefix" or
	// "minio://bucket/prefix".
	Target string `yaml:"target"`
	// Every is the number of iterations between checkpoints.
	Every int `yaml:"every"`
	// Keep is the number of checkpoints retained after each save.
	Keep        int    `yaml:"keep"`
	Compression string `yaml:"compression"`
	Codec       string `yaml:"codec"`
	// IOLimitBytesPerSec throttles checkpoint uploads. 0 is unlimited.
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec"`
	// Region is the AWS region for s3 targets.
	Region string      `yaml:"region"`
	MinIO  MinIOConfig `yaml:"minio"`
}

// MinIOConfig holds the connection settings for minio targets.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	// Addr is the listen address of /metrics. Empty disables the exporter.
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration of the 16-point model problem.
func Default() Config {
	return Config{
		Runtime: RuntimeConfig{
			Workers: runtime.GOMAXPROCS(0),
		},
		Solver: SolverConfig{
			N:          16,
			Pieces:     4,
			Iterations: 17,
			Format:     "coo",
			Entry:      "float64",
			Boundary:   [2]float64{1, 2},
			Print:      true,
		},
		Checkpoint: CheckpointConfig{
			Every:       10,
			Keep:        3,
			Compression: checkpoint.CompressionZstd.String(),
			Codec:       codec.Default.Name(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "spargo",
		},
	}
}

// Load reads a YAML file on top of Default. ${VAR} references are replaced
// by environment variables and unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports every invalid setting. The returned error matches
// ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Runtime.Workers < 1 {
		bad("runtime.workers must be at least 1, got %d", c.Runtime.Workers)
	}
	if c.Runtime.MemoryLimitBytes < 0 {
		bad("runtime.memory_limit_bytes must not be negative")
	}

	if c.Solver.N < 1 {
		bad("solver.n must be positive, got %d", c.Solver.N)
	}
	if c.Solver.Pieces < 1 || int64(c.Solver.Pieces) > max(c.Solver.N, 1) {
		bad("solver.pieces must be in [1, n], got %d", c.Solver.Pieces)
	}
	if c.Solver.Iterations < 0 {
		bad("solver.iterations must not be negative")
	}
	switch c.Solver.Format {
	case "coo", "csr":
	default:
		bad("solver.format must be coo or csr, got %q", c.Solver.Format)
	}
	switch c.Solver.Entry {
	case "float64", "float32":
	default:
		bad("solver.entry must be float64 or float32, got %q", c.Solver.Entry)
	}

	for _, v := range c.Solver.Boundary {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad("solver.boundary must be finite, got %v", c.Solver.Boundary)
			break
		}
	}

	if c.Checkpoint.Target != "" {
		if c.Checkpoint.Every < 1 {
			bad("checkpoint.every must be at least 1")
		}
		if c.Checkpoint.Keep < 1 {
			bad("checkpoint.keep must be at least 1")
		}
		if strings.HasPrefix(c.Checkpoint.Target, "minio://") && c.Checkpoint.MinIO.Endpoint == "" {
			bad("checkpoint.minio.endpoint is required for minio targets")
		}
	}
	if _, err := checkpoint.ParseCompression(c.Checkpoint.Compression); err != nil {
		bad("checkpoint.compression: %v", err)
	}
	if _, ok := codec.ByName(c.Checkpoint.Codec); !ok {
		bad("checkpoint.codec: unknown codec %q", c.Checkpoint.Codec)
	}
	if c.Checkpoint.IOLimitBytesPerSec < 0 {
		bad("checkpoint.io_limit_bytes_per_sec must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		bad("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		bad("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return errors.Join(errs...)
}
