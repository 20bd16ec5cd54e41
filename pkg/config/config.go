package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Common errors for configuration and expectation file loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// ServerConfiguration holds every setting of an expectd server.
type ServerConfiguration struct {
	// Addr is the listen address, host:port.
	Addr string `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	// TLS serves HTTPS instead of HTTP when enabled.
	TLS *TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
	// Log configures operational logging.
	Log LogConfig `json:"log" yaml:"log"`

	// MaxExpectations caps the expectation store; the oldest inserted are
	// evicted beyond it.
	MaxExpectations int `json:"maxExpectations" yaml:"maxExpectations" validate:"gte=1"`
	// MaxLogEntries caps the request log; the oldest entries are evicted.
	MaxLogEntries int `json:"maxLogEntries" yaml:"maxLogEntries" validate:"gte=1"`
	// MaxBodySize is the maximum request and forwarded response body size
	// in bytes.
	MaxBodySize int64 `json:"maxBodySize" yaml:"maxBodySize" validate:"gte=1"`
	// ReadTimeout and WriteTimeout are HTTP server timeouts in seconds
	// (0 = none).
	ReadTimeout  int `json:"readTimeout" yaml:"readTimeout" validate:"gte=0"`
	WriteTimeout int `json:"writeTimeout" yaml:"writeTimeout" validate:"gte=0"`
	// SweepInterval is how often expired expectations are removed, in
	// seconds (0 = never).
	SweepInterval int `json:"sweepInterval" yaml:"sweepInterval" validate:"gte=0"`

	// CaseInsensitive makes all matcher value comparisons case-insensitive.
	CaseInsensitive bool `json:"caseInsensitive" yaml:"caseInsensitive"`
	// MaxPreview is the number of recorded requests listed in a
	// verification failure.
	MaxPreview int `json:"maximumNumberOfRequestToReturnInVerificationFailure" yaml:"maximumNumberOfRequestToReturnInVerificationFailure" validate:"gte=0"`
	// NearMisses is the number of closest expectations recorded for an
	// unmatched request.
	NearMisses int `json:"nearMisses" yaml:"nearMisses" validate:"gte=0"`

	Forward ForwardConfig `json:"forward" yaml:"forward"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// InitializationFiles are glob patterns of expectation files loaded at
	// start-up. Relative patterns resolve against the configuration file.
	InitializationFiles []string `json:"initializationFiles,omitempty" yaml:"initializationFiles,omitempty" validate:"dive,required"`

	// baseDir is the directory of the loaded file.
	baseDir string
}

// TLSConfig configures HTTPS. Without a certificate and key a self-signed
// certificate is generated for Hosts.
type TLSConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	CertFile string   `json:"certFile,omitempty" yaml:"certFile,omitempty" validate:"required_with=KeyFile"`
	KeyFile  string   `json:"keyFile,omitempty" yaml:"keyFile,omitempty" validate:"required_with=CertFile"`
	Hosts    []string `json:"hosts,omitempty" yaml:"hosts,omitempty"`
}

// LogConfig configures operational logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=text json"`
	// File additionally writes JSON logs to a rotating file.
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"maxAgeDays,omitempty" yaml:"maxAgeDays,omitempty" validate:"gte=0"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
	// Entries mirrors request log entries to the operational log.
	Entries bool `json:"entries" yaml:"entries"`
}

// ForwardConfig configures the upstream client of forward actions.
type ForwardConfig struct {
	// Timeout is the per-attempt timeout in seconds.
	Timeout            int  `json:"timeout" yaml:"timeout" validate:"gte=1"`
	HTTP2              bool `json:"http2" yaml:"http2"`
	InsecureSkipVerify bool `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
}

// MetricsConfig configures the Prometheus scrape endpoint. It is served
// at /metrics on its own listener, and only when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	// Runtime adds Go runtime gauges.
	Runtime bool `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// Default returns the configuration used when nothing is set.
func Default() *ServerConfiguration {
	return &ServerConfiguration{
		Addr:            ":1080",
		Log:             LogConfig{Level: "info", Format: "text"},
		MaxExpectations: 5000,
		MaxLogEntries:   60000,
		MaxBodySize:     10 << 20,
		ReadTimeout:     30,
		WriteTimeout:    120,
		SweepInterval:   10,
		MaxPreview:      10,
		NearMisses:      3,
		Forward:         ForwardConfig{Timeout: 30},
	}
}

// Seconds converts a seconds setting to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// BaseDir is the directory relative initialization patterns resolve
// against: the configuration file's directory, or the working directory.
func (c *ServerConfiguration) BaseDir() string {
	if c.baseDir != "" {
		return c.baseDir
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// Load builds the configuration from defaults, the file at path (if not
// empty) and the environment, and validates it.
func Load(path string) (*ServerConfiguration, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfiguration) loadFile(path string) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		err = c.parseYAML(data)
	} else {
		err = c.parseJSON(data)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		c.baseDir = filepath.Dir(abs)
	}
	return nil
}

// parseYAML overlays data onto c. Unknown keys are rejected.
func (c *ServerConfiguration) parseYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

// parseJSON overlays data onto c. Unknown keys are rejected.
func (c *ServerConfiguration) parseJSON(data []byte) error {
	if !json.Valid(data) {
		return ErrInvalidJSON
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// readFile reads a configuration or expectation file, mapping the common
// failures to the package errors.
func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return data, nil
}

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and reports all problems at once.
func (c *ServerConfiguration) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	var result *multierror.Error
	for _, fe := range fieldErrs {
		result = multierror.Append(result, &ValidationError{
			Field:   strings.TrimPrefix(fe.Namespace(), "ServerConfiguration."),
			Message: describe(fe),
		})
	}
	return result.ErrorOrNil()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required when " + fe.Param() + " is set"
	case "hostname_port":
		return fmt.Sprintf("must be host:port, got %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
