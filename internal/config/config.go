// Package config resolves the installation root and loads the effective
// configuration from defaults, config/app.json, .env files, JKH_* variables
// and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Built-in defaults.
const (
	DefaultAppName              = "JKH Desktop"
	DefaultHost                 = "127.0.0.1"
	DefaultPort                 = 8765
	DefaultWebIndex             = "index.html"
	DefaultThreads              = 6
	DefaultHealthPath           = "/api/health"
	DefaultHealthTimeout        = 30 * time.Second
	DefaultHealthInterval       = 400 * time.Millisecond
	DefaultHealthAttemptTimeout = 1500 * time.Millisecond
	DefaultLogLevel             = "info"
	DefaultDatabasePath         = "data/kv.db"
	DefaultBackupInterval       = time.Hour
	DefaultBackupKeep           = 10
	DefaultBackupS3Region       = "us-east-1"
	DefaultBackupS3Key          = "jkh/backup.jsonl"
)

// Layout lists the directories created under the installation root.
var Layout = []string{"data", "logs", "backups", "config"}

type Config struct {
	Root string // installation root (absolute)

	AppName     string // app_name
	Host        string // host
	Port        int    // port
	PortRange   []int  // port_range (empty = fixed port; [start, end] = scan)
	OpenBrowser bool   // open_browser
	WebIndex    string // web_index
	Threads     int    // threads
	HealthPath  string // health_path

	HealthTimeout        time.Duration // health_timeout
	HealthInterval       time.Duration // health_interval
	HealthAttemptTimeout time.Duration // health_attempt_timeout

	LogLevel string // log_level

	DatabaseURL  string // database_url (empty = embedded SQLite)
	DatabasePath string // database_path, relative to Root unless absolute
	NATSURL      string // nats_url (empty = no events)

	BackupInterval   time.Duration // backup_interval (0 = disabled)
	BackupKeep       int           // backup_keep
	BackupS3Bucket   string        // backup_s3_bucket (enables S3 when set)
	BackupS3Endpoint string        // backup_s3_endpoint (custom endpoint for MinIO)
	BackupS3Region   string        // backup_s3_region
	BackupS3Key      string        // backup_s3_key

	BundleDir string // bundle_dir / JKH_BUNDLE_DIR (packaging-runtime extraction dir)
}

// Option adjusts the viper instance before values are read.
type Option func(v *viper.Viper) error

// WithFlags binds every flag in fs whose name maps onto a config key
// ("open-browser" binds "open_browser"). Only flags the user set override.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(v *viper.Viper) error {
		var err error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKey(key) || err != nil {
				return
			}
			err = v.BindPFlag(key, f)
		})
		return err
	}
}

var defaults = map[string]any{
	"app_name":               DefaultAppName,
	"host":                   DefaultHost,
	"port":                   DefaultPort,
	"port_range":             []int{},
	"open_browser":           true,
	"web_index":              DefaultWebIndex,
	"threads":                DefaultThreads,
	"health_path":            DefaultHealthPath,
	"health_timeout":         DefaultHealthTimeout.String(),
	"health_interval":        DefaultHealthInterval.String(),
	"health_attempt_timeout": DefaultHealthAttemptTimeout.String(),
	"log_level":              DefaultLogLevel,
	"database_url":           "",
	"database_path":          DefaultDatabasePath,
	"nats_url":               "",
	"backup_interval":        DefaultBackupInterval.String(),
	"backup_keep":            DefaultBackupKeep,
	"backup_s3_bucket":       "",
	"backup_s3_endpoint":     "",
	"backup_s3_region":       DefaultBackupS3Region,
	"backup_s3_key":          DefaultBackupS3Key,
	"bundle_dir":             "",
}

func isKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// Load reads the configuration for the installation rooted at root.
// A missing or unparsable config/app.json is ignored, and any value that
// fails to parse falls back to its default independently of the others.
func Load(root string, opts ...Option) (*Config, error) {
	if root == "" {
		return nil, fmt.Errorf("config: installation root is required")
	}

	// .env.local wins over .env; neither overrides the real environment.
	_ = godotenv.Load(filepath.Join(root, ".env.local"))
	_ = godotenv.Load(filepath.Join(root, ".env"))

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetConfigFile(filepath.Join(root, "config", "app.json"))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		slog.Debug("config file ignored", "error", err)
	}
	v.SetEnvPrefix("jkh")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	c := &Config{
		Root:                 root,
		AppName:              stringOr(v, "app_name", DefaultAppName),
		Host:                 stringOr(v, "host", DefaultHost),
		Port:                 portOr(v, "port", DefaultPort),
		PortRange:            portRange(v.Get("port_range")),
		OpenBrowser:          boolOr(v, "open_browser", true),
		WebIndex:             stringOr(v, "web_index", DefaultWebIndex),
		Threads:              positiveOr(v, "threads", DefaultThreads),
		HealthPath:           healthPath(v),
		HealthTimeout:        durationOr(v, "health_timeout", DefaultHealthTimeout, false),
		HealthInterval:       durationOr(v, "health_interval", DefaultHealthInterval, false),
		HealthAttemptTimeout: durationOr(v, "health_attempt_timeout", DefaultHealthAttemptTimeout, false),
		LogLevel:             logLevel(v),
		DatabaseURL:          strings.TrimSpace(v.GetString("database_url")),
		DatabasePath:         stringOr(v, "database_path", DefaultDatabasePath),
		NATSURL:              strings.TrimSpace(v.GetString("nats_url")),
		BackupInterval:       durationOr(v, "backup_interval", DefaultBackupInterval, true),
		BackupKeep:           positiveOr(v, "backup_keep", DefaultBackupKeep),
		BackupS3Bucket:       strings.TrimSpace(v.GetString("backup_s3_bucket")),
		BackupS3Endpoint:     strings.TrimSpace(v.GetString("backup_s3_endpoint")),
		BackupS3Region:       stringOr(v, "backup_s3_region", DefaultBackupS3Region),
		BackupS3Key:          stringOr(v, "backup_s3_key", DefaultBackupS3Key),
		BundleDir:            strings.TrimSpace(v.GetString("bundle_dir")),
	}
	return c, nil
}

// Addr returns host:port for the configured fixed port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Scanning reports whether the port-range policy is in effect.
func (c *Config) Scanning() bool { return len(c.PortRange) == 2 }

// Packaged reports whether the process runs from a packaging-runtime bundle.
func (c *Config) Packaged() bool { return c.BundleDir != "" }

// Path resolves p against the installation root unless it is absolute.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// SlogLevel returns the parsed log level.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Map returns the effective configuration keyed by config key, suitable
// for JSON or TOML encoding.
func (c *Config) Map() map[string]any {
	pr := c.PortRange
	if pr == nil {
		pr = []int{}
	}
	return map[string]any{
		"root":                   c.Root,
		"app_name":               c.AppName,
		"host":                   c.Host,
		"port":                   c.Port,
		"port_range":             pr,
		"open_browser":           c.OpenBrowser,
		"web_index":              c.WebIndex,
		"threads":                c.Threads,
		"health_path":            c.HealthPath,
		"health_timeout":         c.HealthTimeout.String(),
		"health_interval":        c.HealthInterval.String(),
		"health_attempt_timeout": c.HealthAttemptTimeout.String(),
		"log_level":              c.LogLevel,
		"database_url":           c.DatabaseURL,
		"database_path":          c.DatabasePath,
		"nats_url":               c.NATSURL,
		"backup_interval":        c.BackupInterval.String(),
		"backup_keep":            c.BackupKeep,
		"backup_s3_bucket":       c.BackupS3Bucket,
		"backup_s3_endpoint":     c.BackupS3Endpoint,
		"backup_s3_region":       c.BackupS3Region,
		"backup_s3_key":          c.BackupS3Key,
		"bundle_dir":             c.BundleDir,
	}
}

// ResolveRoot picks the installation root: the explicit flag value, else
// JKH_ROOT, else the directory holding the running executable.
func ResolveRoot(flagValue string) (string, error) {
	root := strings.TrimSpace(flagValue)
	if root == "" {
		root = strings.TrimSpace(os.Getenv("JKH_ROOT"))
	}
	if root == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		root = filepath.Dir(exe)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	return abs, nil
}

// EnsureLayout creates the standard directories under root if absent.
func EnsureLayout(root string) error {
	for _, dir := range Layout {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
