package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DefaultPath        = "config/config.yaml"
	DefaultPromptsPath = "config/prompts.yaml"
)

type Config struct {
	Models        Models           `yaml:"models"`
	Paths         Paths            `yaml:"paths"`
	Memory        Memory           `yaml:"memory"`
	Simulation    SimulationParams `yaml:"simulation"`
	EventPlanning EventPlanning    `yaml:"event_planning"`
	Cache         Cache            `yaml:"cache"`
	RateLimit     RateLimit        `yaml:"rate_limit"`
	Server        Server           `yaml:"server"`
	Ingest        Ingest           `yaml:"ingest"`
	Logging       Logging          `yaml:"logging"`
}

type Models struct {
	Provider           string  `yaml:"provider"`
	BaseURL            string  `yaml:"base_url"`
	APIKey             string  `yaml:"api_key"` // usually supplied through OPENAI_API_KEY
	ChatModel          string  `yaml:"chat_model"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	Temperature        float64 `yaml:"temperature"`
	EmbeddingMaxTokens int     `yaml:"embedding_max_tokens"`
	Timeout            string  `yaml:"timeout"`
}

type Paths struct {
	SVAFramework        string `yaml:"sva_framework"`
	GoriziaEvent        string `yaml:"gorizia_event"`
	SimulationTemplates string `yaml:"simulation_templates"`
	Embeddings          string `yaml:"embeddings"`
	AuditDB             string `yaml:"audit_db"`
	CacheDir            string `yaml:"cache_dir"`
}

type Memory struct {
	MaxMessages int `yaml:"max_messages"`
}

type Cache struct {
	Backend       string `yaml:"backend"` // none, memory, badger, redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           string `yaml:"ttl"`
}

type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type Server struct {
	Listen string `yaml:"listen"`
}

type Ingest struct {
	Watch   bool `yaml:"watch"`
	Workers int  `yaml:"workers"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file overrides it
func Default() Config {
	return Config{
		Models: Models{
			Provider:           "openai",
			BaseURL:            "https://api.openai.com",
			ChatModel:          "gpt-4",
			EmbeddingModel:     "text-embedding-ada-002",
			Temperature:        0.7,
			EmbeddingMaxTokens: 8191,
		},
		Paths: Paths{
			SVAFramework:        "./data/sva_framework",
			GoriziaEvent:        "./data/gorizia_event",
			SimulationTemplates: "./templates/simulations",
		},
		Memory:     Memory{MaxMessages: 50},
		Simulation: DefaultSimulationParams(),
		Cache:      Cache{Backend: "memory"},
		Server:     Server{Listen: "127.0.0.1:8080"},
		Ingest:     Ingest{Workers: 4},
		Logging:    Logging{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. With allowMissing, an absent file
// yields the defaults.
func Load(path string, allowMissing bool) (Config, error) {
	configuration := Default()

	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return configuration, fmt.Errorf("config path is required")
	}

	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return configuration, nil
		}
		return configuration, fmt.Errorf("read config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return configuration, nil
	}

	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	configuration.normalize()
	return configuration, nil
}

// ApplyEnv overlays environment variables onto the configuration
func (configuration *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv("OPENAI_API_KEY")); v != "" {
		configuration.Models.APIKey = v
	}
	if v := strings.TrimSpace(getenv("SAFECITIES_BASE_URL")); v != "" {
		configuration.Models.BaseURL = v
	}
	if v := strings.TrimSpace(getenv("SAFECITIES_CHAT_MODEL")); v != "" {
		configuration.Models.ChatModel = v
	}
	if v := strings.TrimSpace(getenv("SAFECITIES_EMBEDDING_MODEL")); v != "" {
		configuration.Models.EmbeddingModel = v
	}
	if v := strings.TrimSpace(getenv("SAFECITIES_LOG_LEVEL")); v != "" {
		configuration.Logging.Level = v
	}
}

// TimeoutDuration parses models.timeout; empty means no timeout
func (m Models) TimeoutDuration() (time.Duration, error) {
	return parseDuration(m.Timeout)
}

// TTLDuration parses cache.ttl; empty means entries never expire
func (c Cache) TTLDuration() (time.Duration, error) {
	return parseDuration(c.TTL)
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return d, nil
}

func (configuration *Config) normalize() {
	configuration.Models.Provider = strings.ToLower(strings.TrimSpace(configuration.Models.Provider))
	configuration.Models.BaseURL = strings.TrimSpace(configuration.Models.BaseURL)
	configuration.Models.ChatModel = strings.TrimSpace(configuration.Models.ChatModel)
	configuration.Models.EmbeddingModel = strings.TrimSpace(configuration.Models.EmbeddingModel)
	configuration.Models.Timeout = strings.TrimSpace(configuration.Models.Timeout)
	configuration.Paths.SVAFramework = strings.TrimSpace(configuration.Paths.SVAFramework)
	configuration.Paths.GoriziaEvent = strings.TrimSpace(configuration.Paths.GoriziaEvent)
	configuration.Paths.SimulationTemplates = strings.TrimSpace(configuration.Paths.SimulationTemplates)
	configuration.Paths.Embeddings = strings.TrimSpace(configuration.Paths.Embeddings)
	configuration.Paths.AuditDB = strings.TrimSpace(configuration.Paths.AuditDB)
	configuration.Paths.CacheDir = strings.TrimSpace(configuration.Paths.CacheDir)
	configuration.Cache.Backend = strings.ToLower(strings.TrimSpace(configuration.Cache.Backend))
	configuration.Cache.TTL = strings.TrimSpace(configuration.Cache.TTL)
	configuration.Server.Listen = strings.TrimSpace(configuration.Server.Listen)
	configuration.Logging.Level = strings.ToLower(strings.TrimSpace(configuration.Logging.Level))
	configuration.Logging.Format = strings.ToLower(strings.TrimSpace(configuration.Logging.Format))
	configuration.Simulation.ScenarioType = strings.TrimSpace(configuration.Simulation.ScenarioType)
	configuration.EventPlanning.Location = strings.TrimSpace(configuration.EventPlanning.Location)
	configuration.EventPlanning.EventType = strings.TrimSpace(configuration.EventPlanning.EventType)

	if configuration.Memory.MaxMessages <= 0 {
		configuration.Memory.MaxMessages = 50
	}
	if configuration.Models.EmbeddingMaxTokens <= 0 {
		configuration.Models.EmbeddingMaxTokens = 8191
	}
	if configuration.Simulation.Participants <= 0 {
		configuration.Simulation.Participants = DefaultParticipants
	}
	if configuration.Simulation.Severity <= 0 {
		configuration.Simulation.Severity = DefaultSeverity
	}
}
