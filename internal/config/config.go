package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Groq      GroqConfig
	Video     VideoConfig
	R2        R2Config
	Airtable  AirtableConfig
	Pipeline  PipelineConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	GeneratePerHour int
	CallbackPerMin  int
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// VideoConfig configures the external video render provider.
type VideoConfig struct {
	APIKey        string
	BaseURL       string
	CallbackToken string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// AirtableConfig configures the external record store used for input/output
// bookkeeping.
type AirtableConfig struct {
	APIKey     string
	BaseID     string
	Table      string
	BaseURL    string
	ThemeField string
}

// PipelineConfig configures the orchestration core.
type PipelineConfig struct {
	// JobTTL bounds how long job records and task mappings are retained.
	JobTTL time.Duration
	// MergeWorkers caps concurrent merge operations.
	MergeWorkers int
	// AwaitTimeout fails jobs stuck awaiting callbacks. Zero disables the
	// timeout, leaving TTL expiry as the only reclaim path.
	AwaitTimeout   time.Duration
	FetchTimeout   time.Duration
	PublishTimeout time.Duration
	TempDir        string
	FFmpegPath     string
	// CallbackBaseURL is the externally reachable address the render provider
	// calls back on.
	CallbackBaseURL string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("VIDEO_API_KEY")
	readSecret("AIRTABLE_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("video.api_key", "VIDEO_API_KEY")
	_ = viper.BindEnv("video.base_url", "VIDEO_BASE_URL")
	_ = viper.BindEnv("video.callback_token", "VIDEO_CALLBACK_TOKEN")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("airtable.api_key", "AIRTABLE_API_KEY")
	_ = viper.BindEnv("airtable.base_id", "AIRTABLE_BASE_ID")
	_ = viper.BindEnv("airtable.table", "AIRTABLE_TABLE")
	_ = viper.BindEnv("airtable.base_url", "AIRTABLE_BASE_URL")
	_ = viper.BindEnv("airtable.theme_field", "AIRTABLE_THEME_FIELD")
	_ = viper.BindEnv("pipeline.job_ttl", "PIPELINE_JOB_TTL")
	_ = viper.BindEnv("pipeline.merge_workers", "PIPELINE_MERGE_WORKERS")
	_ = viper.BindEnv("pipeline.await_timeout", "PIPELINE_AWAIT_TIMEOUT")
	_ = viper.BindEnv("pipeline.fetch_timeout", "PIPELINE_FETCH_TIMEOUT")
	_ = viper.BindEnv("pipeline.publish_timeout", "PIPELINE_PUBLISH_TIMEOUT")
	_ = viper.BindEnv("pipeline.temp_dir", "PIPELINE_TEMP_DIR")
	_ = viper.BindEnv("pipeline.ffmpeg_path", "PIPELINE_FFMPEG_PATH")
	_ = viper.BindEnv("pipeline.callback_base_url", "PIPELINE_CALLBACK_BASE_URL")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.generate_per_hour", 20)
	viper.SetDefault("ratelimit.callback_per_min", 120)

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Render provider defaults
	viper.SetDefault("video.base_url", "https://api.vidgen.dev")

	// Airtable defaults
	viper.SetDefault("airtable.base_url", "https://api.airtable.com/v0")
	viper.SetDefault("airtable.table", "Videos")
	viper.SetDefault("airtable.theme_field", "Theme")

	// Pipeline defaults
	viper.SetDefault("pipeline.job_ttl", "1h")
	viper.SetDefault("pipeline.merge_workers", 1)
	viper.SetDefault("pipeline.await_timeout", "0")
	viper.SetDefault("pipeline.fetch_timeout", "2m")
	viper.SetDefault("pipeline.publish_timeout", "2m")
	viper.SetDefault("pipeline.temp_dir", os.TempDir())
	viper.SetDefault("pipeline.ffmpeg_path", "ffmpeg")
	viper.SetDefault("pipeline.callback_base_url", "http://localhost:8000")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			CallbackPerMin:  viper.GetInt("ratelimit.callback_per_min"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		Video: VideoConfig{
			APIKey:        viper.GetString("video.api_key"),
			BaseURL:       viper.GetString("video.base_url"),
			CallbackToken: viper.GetString("video.callback_token"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Airtable: AirtableConfig{
			APIKey:     viper.GetString("airtable.api_key"),
			BaseID:     viper.GetString("airtable.base_id"),
			Table:      viper.GetString("airtable.table"),
			BaseURL:    viper.GetString("airtable.base_url"),
			ThemeField: viper.GetString("airtable.theme_field"),
		},
		Pipeline: PipelineConfig{
			JobTTL:          viper.GetDuration("pipeline.job_ttl"),
			MergeWorkers:    viper.GetInt("pipeline.merge_workers"),
			AwaitTimeout:    viper.GetDuration("pipeline.await_timeout"),
			FetchTimeout:    viper.GetDuration("pipeline.fetch_timeout"),
			PublishTimeout:  viper.GetDuration("pipeline.publish_timeout"),
			TempDir:         viper.GetString("pipeline.temp_dir"),
			FFmpegPath:      viper.GetString("pipeline.ffmpeg_path"),
			CallbackBaseURL: viper.GetString("pipeline.callback_base_url"),
		},
	}

	return cfg, nil
}
