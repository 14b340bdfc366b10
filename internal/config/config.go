package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
)

type AppConfig struct {
	HTTPPort      string
	Env           string
	DatabaseDSN   string
	DBDriver      string
	DataDir       string
	SkipWAConnect bool
	APIToken      string
	Timezone      string
	PromptsFile   string
	QueueSize     int
	EventLogDir   string
	LinkPreviews  bool
	Postgres      PostgresConfig
	Storage       StorageConfig
	Webhook       WebhookConfig
	AutoReply     AutoReplyConfig
	LLM           LLMConfig
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != "" && s.Bucket != ""
}

type WebhookConfig struct {
	URL       string
	Events    []string
	TimeoutMS int
}

type AutoReplyConfig struct {
	Enabled           bool
	DefaultMessage    string
	AfterHoursMessage string
	AllowList         []string
	BlockList         []string
	BusinessStart     string
	BusinessEnd       string
}

type LLMConfig struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	SystemPrompt      string
	FallbackMessage   string
	Temperature       float64
	MaxTokens         int
	TimeoutMS         int
	RateLimitPerHour  int
	Enabled           bool
	AutoReply         bool
	OnlyBusinessHours bool
}

func Load() *AppConfig {
	pg := PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", ""),
		Port:     getEnv("POSTGRES_PORT", ""),
		User:     getEnv("POSTGRES_USER", ""),
		Password: getEnv("POSTGRES_PASSWORD", ""),
		DBName:   getEnv("POSTGRES_DB", ""),
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}

	storage := StorageConfig{
		Endpoint:  getEnv("STORAGE_ENDPOINT", ""),
		AccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
		SecretKey: getEnv("STORAGE_SECRET_KEY", ""),
		Bucket:    getEnv("STORAGE_BUCKET", ""),
		Region:    getEnv("STORAGE_REGION", ""),
		UseSSL:    getEnvBool("STORAGE_USE_SSL", false),
		PublicURL: getEnv("STORAGE_PUBLIC_URL", ""),
	}

	// Compatibilidade: aceita MINIO_* quando STORAGE_* não veio.
	if storage.Endpoint == "" {
		storage.Endpoint = getEnv("MINIO_ENDPOINT", "")
	}
	if storage.AccessKey == "" {
		storage.AccessKey = getEnv("MINIO_ACCESS_KEY", "")
	}
	if storage.SecretKey == "" {
		storage.SecretKey = getEnv("MINIO_SECRET_KEY", "")
	}
	if storage.Bucket == "" {
		storage.Bucket = getEnv("MINIO_BUCKET", "")
	}
	if storage.Region == "" {
		storage.Region = getEnv("MINIO_REGION", "")
	}
	if !storage.UseSSL {
		storage.UseSSL = getEnvBool("MINIO_USE_SSL", false)
	}
	if storage.PublicURL == "" {
		storage.PublicURL = getEnv("MINIO_PUBLIC_URL", "")
	}

	dsn := getEnv("DATABASE_DSN", "")
	driver := strings.ToLower(getEnv("DB_DRIVER", ""))

	// Sem driver explícito: postgres quando há DSN/host, senão memória.
	// A sessão do WhatsApp tem seu próprio sqlite, fora dessa escolha.
	if driver == "" {
		lower := strings.ToLower(dsn)
		switch {
		case strings.HasPrefix(lower, "postgres"):
			driver = "postgres"
		case pg.Host != "":
			driver = "postgres"
		default:
			driver = "memory"
		}
	}
	if driver == "postgres" && dsn == "" {
		dsn = buildPostgresDSN(pg)
	}

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &AppConfig{
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		Env:           getEnv("APP_ENV", "development"),
		DatabaseDSN:   dsn,
		DBDriver:      driver,
		DataDir:       dataDir,
		SkipWAConnect: getEnvBool("WA_SKIP_CONNECT", false),
		APIToken:      strings.TrimSpace(getEnv("API_TOKEN", "")),
		Timezone:      getEnv("TIMEZONE", ""),
		PromptsFile:   getEnv("PROMPTS_FILE", ""),
		QueueSize:     getEnvInt("PIPELINE_QUEUE_SIZE", 0),
		EventLogDir:   getEnv("EVENT_LOG_DIR", dataDir+"/events"),
		LinkPreviews:  getEnvBool("LINK_PREVIEW_ENABLED", true),
		Postgres:      pg,
		Storage:       storage,
		Webhook: WebhookConfig{
			URL:       strings.TrimSpace(getEnv("WEBHOOK_URL", "")),
			Events:    getEnvList("WEBHOOK_EVENTS"),
			TimeoutMS: getEnvInt("WEBHOOK_TIMEOUT_MS", 10000),
		},
		AutoReply: AutoReplyConfig{
			Enabled:           getEnvBool("AUTO_REPLY_ENABLED", true),
			DefaultMessage:    getEnv("AUTO_REPLY_DEFAULT_MESSAGE", ""),
			AfterHoursMessage: getEnv("AUTO_REPLY_AFTER_HOURS_MESSAGE", ""),
			AllowList:         getEnvList("AUTO_REPLY_ALLOW_LIST"),
			BlockList:         getEnvList("AUTO_REPLY_BLOCK_LIST"),
			BusinessStart:     getEnv("BUSINESS_HOURS_START", ""),
			BusinessEnd:       getEnv("BUSINESS_HOURS_END", ""),
		},
		LLM: LLMConfig{
			Provider:          strings.ToLower(getEnv("LLM_PROVIDER", "")),
			Model:             getEnv("LLM_MODEL", ""),
			APIKey:            firstEnv("LLM_API_KEY", "OPENAI_API_KEY"),
			BaseURL:           getEnv("LLM_BASE_URL", ""),
			SystemPrompt:      getEnv("LLM_SYSTEM_PROMPT", ""),
			FallbackMessage:   getEnv("LLM_FALLBACK_MESSAGE", ""),
			Temperature:       getEnvFloat("LLM_TEMPERATURE", -1),
			MaxTokens:         getEnvInt("LLM_MAX_TOKENS", 0),
			TimeoutMS:         getEnvInt("LLM_TIMEOUT_MS", 0),
			RateLimitPerHour:  getEnvInt("LLM_RATE_LIMIT_PER_HOUR", -1),
			Enabled:           getEnvBool("LLM_ENABLED", false),
			AutoReply:         getEnvBool("LLM_AUTO_REPLY", true),
			OnlyBusinessHours: getEnvBool("LLM_ONLY_BUSINESS_HOURS", false),
		},
	}
	return cfg
}

func MustLoad() *AppConfig {
	cfg := Load()
	if cfg.HTTPPort == "" {
		log.Fatal("HTTP_PORT required")
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseDSN == "" {
		log.Fatal("DATABASE_DSN required for postgres driver")
	}
	return cfg
}

// Location resolve o fuso usado pela janela de atendimento. Fuso
// inválido cai em time.Local em vez de derrubar o boot.
func (c *AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("TIMEZONE %q inválido, usando local: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}

// AutoReplySettings monta o bundle inicial: defaults do domínio, por
// cima o ambiente, por cima o arquivo de prompts (quando existir).
func (c *AppConfig) AutoReplySettings() settings.AutoReplySettings {
	s := settings.Defaults()

	s.Enabled = c.AutoReply.Enabled
	if c.AutoReply.DefaultMessage != "" {
		s.DefaultMessage = c.AutoReply.DefaultMessage
	}
	if c.AutoReply.AfterHoursMessage != "" {
		s.AfterHoursMessage = c.AutoReply.AfterHoursMessage
	}
	if len(c.AutoReply.AllowList) > 0 {
		s.AllowList = c.AutoReply.AllowList
	}
	if len(c.AutoReply.BlockList) > 0 {
		s.BlockList = c.AutoReply.BlockList
	}
	if c.AutoReply.BusinessStart != "" || c.AutoReply.BusinessEnd != "" {
		s.BusinessHours = settings.BusinessHours{Start: c.AutoReply.BusinessStart, End: c.AutoReply.BusinessEnd}
	}

	if c.LLM.Provider != "" {
		s.LLM.Provider = c.LLM.Provider
	}
	if c.LLM.Model != "" {
		s.LLM.Model = c.LLM.Model
	}
	s.LLM.APIKey = c.LLM.APIKey
	s.LLM.BaseURL = c.LLM.BaseURL
	if c.LLM.SystemPrompt != "" {
		s.LLM.SystemPrompt = c.LLM.SystemPrompt
	}
	if c.LLM.FallbackMessage != "" {
		s.LLM.FallbackMessage = c.LLM.FallbackMessage
	}
	if c.LLM.Temperature >= 0 {
		s.LLM.Temperature = float32(c.LLM.Temperature)
	}
	if c.LLM.MaxTokens > 0 {
		s.LLM.MaxTokens = c.LLM.MaxTokens
	}
	if c.LLM.TimeoutMS > 0 {
		s.LLM.RequestTimeoutMS = c.LLM.TimeoutMS
	}
	if c.LLM.RateLimitPerHour >= 0 {
		s.LLM.RateLimitPerHour = c.LLM.RateLimitPerHour
	}
	s.LLM.Enabled = c.LLM.Enabled
	s.LLM.AutoReply = c.LLM.AutoReply
	s.LLM.OnlyBusinessHours = c.LLM.OnlyBusinessHours

	if c.PromptsFile != "" {
		if overlay, err := loadPrompts(c.PromptsFile); err != nil {
			log.Printf("arquivo de prompts %q ignorado: %v", c.PromptsFile, err)
		} else {
			overlay.apply(&s)
		}
	}
	return s
}

// promptsFile é o overlay YAML opcional para os textos editados com
// mais frequência que o ambiente.
type promptsFile struct {
	SystemPrompt      string `yaml:"systemPrompt"`
	FallbackMessage   string `yaml:"fallbackMessage"`
	DefaultMessage    string `yaml:"defaultMessage"`
	AfterHoursMessage string `yaml:"afterHoursMessage"`
}

func loadPrompts(path string) (*promptsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p promptsFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &p, nil
}

func (p *promptsFile) apply(s *settings.AutoReplySettings) {
	if p.SystemPrompt != "" {
		s.LLM.SystemPrompt = p.SystemPrompt
	}
	if p.FallbackMessage != "" {
		s.LLM.FallbackMessage = p.FallbackMessage
	}
	if p.DefaultMessage != "" {
		s.DefaultMessage = p.DefaultMessage
	}
	if p.AfterHoursMessage != "" {
		s.AfterHoursMessage = p.AfterHoursMessage
	}
}

func buildPostgresDSN(pg PostgresConfig) string {
	host := pg.Host
	if host == "" {
		host = "localhost"
	}
	port := pg.Port
	if port == "" {
		port = "5432"
	}
	ssl := pg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}

	u := &url.URL{Scheme: "postgres"}
	if pg.User != "" {
		if pg.Password != "" {
			u.User = url.UserPassword(pg.User, pg.Password)
		} else {
			u.User = url.User(pg.User)
		}
	}
	u.Host = fmt.Sprintf("%s:%s", host, port)
	if pg.DBName != "" {
		u.Path = pg.DBName
	}
	q := u.Query()
	q.Set("sslmode", ssl)
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if cleaned := strings.TrimSpace(part); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
