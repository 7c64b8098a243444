package envconfig

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Var reads an environment variable, trimming whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Host returns the scheme and host:port the conformance server binds
// to, configurable via NNCERT_HOST. Default: http://127.0.0.1:11437
func Host() *url.URL {
	defaultPort := "11437"

	s := strings.TrimSpace(Var("NNCERT_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// Origins returns the allowed CORS origins for the conformance server.
// Extra origins come from NNCERT_ORIGINS (comma separated).
func Origins() (origins []string) {
	if s := Var("NNCERT_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins,
		"app://*",
		"file://*",
		"tauri://*",
		"vscode-webview://*",
		"vscode-file://*",
	)

	return origins
}

// Device returns the name of the driver under test, configurable via
// NNCERT_DEVICE. Default: soft
func Device() string {
	if s := Var("NNCERT_DEVICE"); s != "" {
		return s
	}
	return "soft"
}

// DBPath returns the path of the results database, configurable via
// NNCERT_DB. Default: $HOME/.nncert/runs.db
func DBPath() string {
	if s := Var("NNCERT_DB"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".nncert", "runs.db")
}

// ExecTimeout returns how long a single execution may run before the
// harness gives up, configurable via NNCERT_EXEC_TIMEOUT. Zero or
// negative values disable the timeout. Default: 1 minute
func ExecTimeout() (execTimeout time.Duration) {
	execTimeout = time.Minute
	if s := Var("NNCERT_EXEC_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			execTimeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			execTimeout = time.Duration(n) * time.Second
		}
	}

	if execTimeout <= 0 {
		return time.Duration(math.MaxInt64)
	}

	return execTimeout
}

// SoftLatency returns an artificial per-execution delay for the
// software driver, configurable via NNCERT_SOFT_LATENCY. Useful for
// exercising measured-timing paths. Default: 0
func SoftLatency() (latency time.Duration) {
	if s := Var("NNCERT_SOFT_LATENCY"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			latency = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			latency = time.Duration(n) * time.Millisecond
		}
	}

	if latency < 0 {
		return 0
	}

	return latency
}

// LogLevel returns the log level, configurable via NNCERT_DEBUG.
// Values: 0/false = INFO (default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("NNCERT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Bool returns a function that reads key as a boolean.
func Bool(key string) func() bool {
	return func() bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// String returns a function that reads key as a string.
func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// Uint returns a function that reads key as a uint, falling back to
// defaultValue when unset or unparsable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

var (
	// Debug enables additional diagnostics (NNCERT_DEBUG).
	Debug = Bool("NNCERT_DEBUG")
	// Slots limits concurrent executions per device, 0 meaning one
	// slot per CPU (NNCERT_SLOTS).
	Slots = Uint("NNCERT_SLOTS", 0)
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns the suite's configuration with current values and
// descriptions, keyed by variable name.
func AsMap() map[string]EnvVar {
	ret := map[string]EnvVar{
		"NNCERT_DEBUG":        {"NNCERT_DEBUG", LogLevel(), "Show additional debug information (e.g. NNCERT_DEBUG=1)"},
		"NNCERT_HOST":         {"NNCERT_HOST", Host(), "IP address for the conformance server (default 127.0.0.1:11437)"},
		"NNCERT_ORIGINS":      {"NNCERT_ORIGINS", Origins(), "A comma separated list of allowed origins"},
		"NNCERT_DEVICE":       {"NNCERT_DEVICE", Device(), "Name of the driver under test (default \"soft\")"},
		"NNCERT_DB":           {"NNCERT_DB", DBPath(), "The path to the results database"},
		"NNCERT_EXEC_TIMEOUT": {"NNCERT_EXEC_TIMEOUT", ExecTimeout(), "How long a single execution may run before giving up (default \"1m\")"},
		"NNCERT_SOFT_LATENCY": {"NNCERT_SOFT_LATENCY", SoftLatency(), "Artificial per-execution delay for the software driver"},
		"NNCERT_SLOTS":        {"NNCERT_SLOTS", Slots(), "Maximum concurrent executions per device (default: number of CPUs)"},

		"HTTP_PROXY":  {"HTTP_PROXY", String("HTTP_PROXY")(), "HTTP proxy"},
		"HTTPS_PROXY": {"HTTPS_PROXY", String("HTTPS_PROXY")(), "HTTPS proxy"},
		"NO_PROXY":    {"NO_PROXY", String("NO_PROXY")(), "No proxy"},
	}

	if runtime.GOOS != "windows" {
		ret["http_proxy"] = EnvVar{"http_proxy", String("http_proxy")(), "HTTP proxy"}
		ret["https_proxy"] = EnvVar{"https_proxy", String("https_proxy")(), "HTTPS proxy"}
		ret["no_proxy"] = EnvVar{"no_proxy", String("no_proxy")(), "No proxy"}
	}

	return ret
}

// Values returns the current configuration as a string map.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
