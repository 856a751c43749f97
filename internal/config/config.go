// Package config loads the worker's configuration from the fixed
// `./config` key-value file and the command-line flags that override it.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// Config holds every value the worker needs to sign on to the database
// and to locate its verifier command. Loaded from a `key = value` file;
// see spec §6.
type Config struct {
	Host       string
	Username   string
	Password   string
	Database   string
	Port       int
	GridQueue  string
	Verifier   string
	AppEnv     string
	OTLPEndpoint    string
	OTELServiceName string

	// Job-server fields are optional (spec §6 "Optional job-server
	// mode"); JobServerHost == "" disables it entirely and every
	// experiment-id candidate then comes straight from the DB Gateway.
	JobServerHost     string
	JobServerPort     int
	JobServerUsername string
	JobServerPassword string
}

const defaultPort = 3306

// IsDev reports whether the worker is running in development mode, used
// to widen log verbosity to at least Debug.
func (c Config) IsDev() bool { return strings.EqualFold(c.AppEnv, "dev") }

// IsProd reports whether the worker is running in production mode.
func (c Config) IsProd() bool { return strings.EqualFold(c.AppEnv, "prod") }

// IsTest reports whether the worker is running under a test harness.
func (c Config) IsTest() bool { return strings.EqualFold(c.AppEnv, "test") }

// Load reads path (typically "./config") and parses its `key = value`
// lines. Unknown keys are ignored. Lines starting with '#' and blank
// lines are skipped. Missing host/username/database/port/gridqueue is a
// fatal ConfigError per spec §6 (the caller is expected to exit 1).
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w: %w", domain.ErrConfig, err)
	}
	defer f.Close()

	cfg := Config{Port: defaultPort, AppEnv: "prod"}
	if err := parseInto(&cfg, f); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}

	var missing []string
	if cfg.Host == "" {
		missing = append(missing, "host")
	}
	if cfg.Username == "" {
		missing = append(missing, "username")
	}
	if cfg.Database == "" {
		missing = append(missing, "database")
	}
	if cfg.Port == 0 {
		missing = append(missing, "port")
	}
	if cfg.GridQueue == "" {
		missing = append(missing, "gridqueue")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("op=config.Load: %w: missing required keys: %s",
			domain.ErrConfig, strings.Join(missing, ", "))
	}
	return cfg, nil
}

func parseInto(cfg *Config, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "host":
			cfg.Host = value
		case "username":
			cfg.Username = value
		case "password":
			cfg.Password = value
		case "database":
			cfg.Database = value
		case "port":
			p, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("op=config.parseInto: invalid port %q: %w", value, err)
			}
			cfg.Port = p
		case "gridqueue":
			cfg.GridQueue = value
		case "verifier":
			cfg.Verifier = value
		case "app_env":
			cfg.AppEnv = value
		case "otlp_endpoint":
			cfg.OTLPEndpoint = value
		case "otel_service_name":
			cfg.OTELServiceName = value
		case "jobserver_host":
			cfg.JobServerHost = value
		case "jobserver_port":
			p, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("op=config.parseInto: invalid jobserver_port %q: %w", value, err)
			}
			cfg.JobServerPort = p
		case "jobserver_username":
			cfg.JobServerUsername = value
		case "jobserver_password":
			cfg.JobServerPassword = value
		}
	}
	return scanner.Err()
}
