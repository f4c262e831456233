package main

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"
)

// Common log attribute keys
const (
	KeyOperation = "operation"
	KeyURL       = "url"
	KeyStatus    = "status"
	KeyError     = "error"
)

var logLevel = new(slog.LevelVar)

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	if enabled {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(slog.LevelInfo)
}

// newLogger builds a text logger that honours the debug switch.
func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// openLogFile opens (creating if needed) the append-only log file at path.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

// defaultLogPath is ~/Library/Logs/Keen/keen.log on macOS and the user
// cache directory elsewhere.
func defaultLogPath() string {
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Logs", "Keen", "keen.log")
		}
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "keen", "keen.log")
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// URL returns a slog attribute with the query string and fragment removed.
func URL(raw string) slog.Attr {
	return slog.String(KeyURL, RedactURL(raw))
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// RedactURL strips the query string and fragment from a URL for logging.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable-url>"
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	return u.String()
}

// MaskEmail masks the local part of an address, e.g. j***@example.com.
func MaskEmail(email string) string {
	i := strings.LastIndex(email, "@")
	if email == "" || i < 0 {
		return "<no-email>"
	}
	local, domain := email[:i], email[i+1:]
	first, size := utf8.DecodeRuneInString(local)
	if size == len(local) {
		return "*@" + domain
	}
	return string(first) + "***@" + domain
}
