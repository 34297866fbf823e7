package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageBackendMemory = "memory"
	StorageBackendRedis  = "redis"

	ListenerModePoll    = "poll"
	ListenerModeWebhook = "webhook"
)

type Webex struct {
	BotToken       string   `env:"WEBEX_BOT_TOKEN" env-required:"true"`
	APIBaseURL     string   `yaml:"api_base_url" env:"WEBEX_API_BASE_URL" env-default:"https://webexapis.com/v1"`
	AllowedEmails  []string `yaml:"allowed_emails" env:"ALLOWED_EMAILS" env-separator:","`
	AllowedDomains []string `yaml:"allowed_domains" env:"ALLOWED_DOMAINS" env-separator:","`
}

type OpenWebUI struct {
	APIKey         string        `env:"OPENWEBUI_API_KEY" env-required:"true"`
	BaseURL        string        `yaml:"base_url" env:"OPENWEBUI_BASE_URL" env-default:"http://localhost:3002/api"`
	Model          string        `yaml:"model" env:"AI_MODEL" env-default:"haiku-4.5"`
	SystemPrompt   string        `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	MaxTokens      int           `yaml:"max_tokens" env:"MAX_TOKENS" env-default:"2048"`
	Temperature    float32       `yaml:"model_temperature" env:"MODEL_TEMPERATURE"`
	TokenBudget    int           `yaml:"token_budget" env:"TOKEN_BUDGET" env-default:"3500"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"60s"`
	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES" env-default:"3"`
}

type Conversation struct {
	MaxTurns    int           `yaml:"max_turns" env:"CONVERSATION_MAX_TURNS" env-default:"20"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"CONVERSATION_IDLE_TIMEOUT"`
}

type Storage struct {
	Backend       string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
	RedisEndpoint string `yaml:"redis_endpoint" env:"REDIS_ENDPOINT"`
}

type Listener struct {
	Mode         string        `yaml:"mode" env:"LISTENER_MODE" env-default:"poll"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL" env-default:"2s"`
	ErrorBackoff time.Duration `yaml:"error_backoff" env:"ERROR_BACKOFF" env-default:"5s"`
	RoomLimit    int           `yaml:"room_limit" env:"ROOM_LIMIT" env-default:"50"`
	MessageLimit int           `yaml:"message_limit" env:"MESSAGE_LIMIT" env-default:"5"`
	ListenAddr   string        `yaml:"listen_addr" env:"LISTEN_ADDR" env-default:":8080"`
	TargetURL    string        `yaml:"target_url" env:"WEBHOOK_TARGET_URL"`
	Secret       string        `env:"WEBHOOK_SECRET"`
}

type Config struct {
	Webex        Webex        `yaml:"webex"`
	OpenWebUI    OpenWebUI    `yaml:"open_webui"`
	Conversation Conversation `yaml:"conversation"`
	Storage      Storage      `yaml:"storage"`
	Listener     Listener     `yaml:"listener"`
}

func (c *Config) Validate() error {
	switch c.Listener.Mode {
	case ListenerModePoll:
	case ListenerModeWebhook:
		if c.Listener.TargetURL == "" {
			return fmt.Errorf("webhook listener requires a target URL")
		}
	default:
		return fmt.Errorf("unknown listener mode %q", c.Listener.Mode)
	}
	switch c.Storage.Backend {
	case StorageBackendMemory:
	case StorageBackendRedis:
		if c.Storage.RedisEndpoint == "" {
			return fmt.Errorf("redis storage requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
