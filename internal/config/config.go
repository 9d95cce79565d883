package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendS3     = "s3"
)

// Config aggregates runtime configuration for the studio and supporting services.
type Config struct {
	LogLevel        string
	StorageBackend  string
	SQLitePath      string
	MySQLDSN        string
	FileStorageDir  string
	ListenAddr      string
	CORSOrigins     []string
	KIEAPIKey       string
	KIEBaseURL      string
	KIEPollInterval time.Duration
	KIEMaxAttempts  int
	RequestTimeout  time.Duration
	MirrorImages    bool
	BotToken        string
	BotOwnerID      int64
	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3ImagePrefix   string
	S3StatePrefix   string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultKIEBaseURL = "https://api.kie.ai"

	cfg := Config{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", BackendSQLite)),
		SQLitePath:      getEnv("SQLITE_PATH", filepath.Join("data", "studio.db")),
		MySQLDSN:        os.Getenv("MYSQL_DSN"),
		FileStorageDir:  getEnv("FILE_STORAGE_DIR", filepath.Join("data", "state")),
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		KIEAPIKey:       os.Getenv("KIE_API_KEY"),
		KIEBaseURL:      normalizeKIEBaseURL(getEnv("KIE_BASE_URL", defaultKIEBaseURL), defaultKIEBaseURL),
		KIEPollInterval: time.Millisecond * time.Duration(getInt("KIE_POLL_INTERVAL_MS", 2000)),
		KIEMaxAttempts:  getInt("KIE_MAX_ATTEMPTS", 60),
		RequestTimeout:  time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		MirrorImages:    getBool("MIRROR_IMAGES", false),
		BotToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		BotOwnerID:      getInt64("TELEGRAM_OWNER_ID", 0),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
		S3ImagePrefix:   getEnv("S3_IMAGE_PREFIX", "images"),
		S3StatePrefix:   getEnv("S3_STATE_PREFIX", "state"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UploaderEnabled reports whether image payloads should go through object storage.
func (c Config) UploaderEnabled() bool {
	return c.MirrorImages || c.BotToken != ""
}

func (c Config) validate() error {
	var missing []string
	switch c.StorageBackend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendMySQL:
		if c.MySQLDSN == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	case BackendS3:
		missing = append(missing, c.missingS3(false)...)
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.UploaderEnabled() {
		missing = append(missing, c.missingS3(true)...)
	}
	if c.BotToken != "" && c.BotOwnerID == 0 {
		missing = append(missing, "TELEGRAM_OWNER_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", dedupe(missing))
	}
	return nil
}

func (c Config) missingS3(public bool) []string {
	var missing []string
	if c.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if c.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if c.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if c.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if public && c.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	return missing
}

// normalizeKIEBaseURL ensures we always hit the documented API host. The root
// kie.ai domain serves HTML instead of JSON.
func normalizeKIEBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	if parsed.Host == "kie.ai" {
		parsed.Host = "api.kie.ai"
	}

	return parsed.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// loadEnvFile loads the first env file found. Running without one is fine.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
