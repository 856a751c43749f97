package observability

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fairyhunter13/edacc-worker/internal/config"
)

// verbosityLevel maps spec §6's -v 0..4 scale onto slog's level, matching
// the original's more-is-noisier convention: 0 and 1 stay at Info, 2 is
// Debug, and each step above 2 moves one slog level further below Debug.
func verbosityLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelInfo
	case v == 1:
		return slog.LevelInfo
	case v == 2:
		return slog.LevelDebug
	default:
		return slog.LevelDebug - slog.Level(v-2)
	}
}

// LogFileName builds the `-l` log-file name from spec §6:
// "<host>_<ip>_<pid>_edacc_client.log".
func LogFileName(host, ip string, pid int) string {
	return fmt.Sprintf("%s_%s_%d_edacc_client.log", host, ip, pid)
}

// SetupLogger configures a JSON slog logger with environment fields. When
// logFile is non-empty (the `-l` flag was given) it writes there instead of
// stdout, truncating/creating the file with the original's default mode.
func SetupLogger(cfg config.Config, verbosity int, logFile string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: verbosityLevel(verbosity)}
	if cfg.IsDev() && opts.Level.Level() > slog.LevelDebug {
		opts.Level = slog.LevelDebug
	}

	out := os.Stdout
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Warn("failed to open log file, falling back to stdout", slog.Any("error", err), slog.String("path", logFile))
		} else {
			out = f
		}
	}

	h := slog.NewJSONHandler(out, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}
