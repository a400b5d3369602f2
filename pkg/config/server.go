package config

import "strings"

// ServerConfig holds HTTP server and artifact output settings.
type ServerConfig struct {
	// ListenAddr is the HTTP bind address (":8080" style).
	ListenAddr string

	// ReportsDir is where rendered HTML reports are written.
	ReportsDir string

	// RehearsalLogPath is the JSONL file for finalized session metrics.
	// Empty disables the rehearsal log.
	RehearsalLogPath string

	// AllowedWSOrigins lists additional origins accepted for WebSocket
	// upgrades beyond same-host.
	AllowedWSOrigins []string
}

// LoadServerConfig reads server settings from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	port := getEnv("HTTP_PORT", "8080")

	var origins []string
	if raw := getEnv("ALLOWED_WS_ORIGINS", ""); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	cfg := &ServerConfig{
		ListenAddr:       ":" + port,
		ReportsDir:       getEnv("REPORTS_DIR", "./reports"),
		RehearsalLogPath: getEnv("REHEARSAL_LOG_PATH", ""),
		AllowedWSOrigins: origins,
	}
	if cfg.ReportsDir == "" {
		return nil, NewValidationError("server", "", "REPORTS_DIR", ErrMissingRequiredField)
	}
	return cfg, nil
}
