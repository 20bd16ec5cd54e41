package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Environment variable names.
const (
	EnvAddr                = "EXPECTD_ADDR"
	EnvLogLevel            = "EXPECTD_LOG_LEVEL"
	EnvLogFormat           = "EXPECTD_LOG_FORMAT"
	EnvLogFile             = "EXPECTD_LOG_FILE"
	EnvMaxExpectations     = "EXPECTD_MAX_EXPECTATIONS"
	EnvMaxLogEntries       = "EXPECTD_MAX_LOG_ENTRIES"
	EnvCaseInsensitive     = "EXPECTD_CASE_INSENSITIVE"
	EnvForwardTimeout      = "EXPECTD_FORWARD_TIMEOUT"
	EnvTLS                 = "EXPECTD_TLS"
	EnvInitializationFiles = "EXPECTD_INITIALIZATION_FILES"
	EnvMetricsAddr         = "EXPECTD_METRICS_ADDR"
)

// ApplyEnv overlays the EXPECTD_* variables that are set onto cfg.
// Malformed numbers and booleans are reported together.
func ApplyEnv(cfg *ServerConfiguration) error {
	var result *multierror.Error

	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: invalid integer %q", name, v))
			return
		}
		*dst = n
	}
	setBool := func(name string, dst *bool) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			*dst = true
		case "false", "0", "no":
			*dst = false
		default:
			result = multierror.Append(result, fmt.Errorf("%s: invalid boolean %q", name, v))
		}
	}

	setString(EnvAddr, &cfg.Addr)
	setString(EnvLogLevel, &cfg.Log.Level)
	setString(EnvLogFormat, &cfg.Log.Format)
	setString(EnvLogFile, &cfg.Log.File)
	setInt(EnvMaxExpectations, &cfg.MaxExpectations)
	setInt(EnvMaxLogEntries, &cfg.MaxLogEntries)
	setBool(EnvCaseInsensitive, &cfg.CaseInsensitive)
	setInt(EnvForwardTimeout, &cfg.Forward.Timeout)
	setString(EnvMetricsAddr, &cfg.Metrics.Addr)

	if _, ok := os.LookupEnv(EnvTLS); ok {
		if cfg.TLS == nil {
			cfg.TLS = &TLSConfig{}
		}
		setBool(EnvTLS, &cfg.TLS.Enabled)
	}

	if v, ok := os.LookupEnv(EnvInitializationFiles); ok && v != "" {
		cfg.InitializationFiles = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.InitializationFiles = append(cfg.InitializationFiles, p)
			}
		}
	}
	return result.ErrorOrNil()
}
