package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings. Environment variables win over the
// optional YAML config file; both fall back to the defaults below.
type Config struct {
	HTTPPort      string
	DBPath        string
	InboxDir      string
	WorkDir       string
	TemplatesDir  string
	WebhookURL    string
	Environment   string
	WorkerCount   int
	QueueSize     int
	EnableWatcher bool
	PublishPush   bool
}

type fileConfig struct {
	HTTPPort     string `yaml:"http_port"`
	DBPath       string `yaml:"db_path"`
	InboxDir     string `yaml:"inbox_dir"`
	WorkDir      string `yaml:"work_dir"`
	TemplatesDir string `yaml:"templates_dir"`
	WebhookURL   string `yaml:"webhook_url"`
}

// Load reads configuration from environment and optional .env/YAML files.
func Load() Config {
	_ = godotenv.Load()

	fileCfg := loadFileConfig(getenv("CONFIG_PATH", filepath.Join("config", "config.yaml")))

	cfg := Config{
		HTTPPort:      getenv("PORT", withDefault(fileCfg.HTTPPort, "8080")),
		DBPath:        getenv("DB_PATH", withDefault(fileCfg.DBPath, "./notices.db")),
		InboxDir:      getenv("INBOX_DIR", withDefault(fileCfg.InboxDir, "./inbox")),
		WorkDir:       getenv("WORK_DIR", withDefault(fileCfg.WorkDir, "./work")),
		TemplatesDir:  getenv("TEMPLATES_DIR", withDefault(fileCfg.TemplatesDir, "./templates")),
		WebhookURL:    getenv("PUSH_WEBHOOK_URL", fileCfg.WebhookURL),
		Environment:   getenv("ENVIRONMENT", "local"),
		WorkerCount:   clampInt(getenvInt("WORKER_COUNT", 4), 1, 64),
		QueueSize:     clampInt(getenvInt("QUEUE_SIZE", 128), 8, 1024),
		EnableWatcher: getenvBool("ENABLE_WATCHER", true),
		PublishPush:   getenvBool("PUBLISH_PUSH", false),
	}

	log.Printf("config: inbox=%s templates=%s db=%s env=%s", cfg.InboxDir, cfg.TemplatesDir, cfg.DBPath, cfg.Environment)
	return cfg
}

func loadFileConfig(path string) fileConfig {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		log.Printf("config: ignoring malformed %s: %v", path, err)
		return fileConfig{}
	}
	return fc
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Now returns a UTC timestamp truncated to seconds for stable records.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
