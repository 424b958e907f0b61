package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Game      GameConfig
	Feed      FeedConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port           string
	ReadTimeout    int      `mapstructure:"read_timeout"`
	WriteTimeout   int      `mapstructure:"write_timeout"`
	// PublicURL: база для ссылок приглашения ?c=..&h=..
	PublicURL      string   `mapstructure:"public_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig содержит настройки zerolog
type LogConfig struct {
	Level  string
	Pretty bool
}

// DatabaseConfig содержит настройки подключения к хранилищу
type DatabaseConfig struct {
	// Driver: postgres | sqlite
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	Mode       string   `mapstructure:"mode"`
	Addrs      []string `mapstructure:"addrs"`
	Addr       string   `mapstructure:"addr"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	MasterName string   `mapstructure:"master_name"`
	MaxRetries int      `mapstructure:"max_retries"`

	// Интервалы между попытками в миллисекундах
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`

	KeyPrefix       string `mapstructure:"key_prefix"`
	StandingsTTLSec int    `mapstructure:"standings_ttl_sec"`
}

// Enabled сообщает, задан ли хотя бы один адрес Redis
func (r RedisConfig) Enabled() bool {
	return len(r.Addrs) > 0 || r.Addr != ""
}

// GameConfig содержит игровые параметры
type GameConfig struct {
	DefaultLength     int    `mapstructure:"default_length"`
	AllowedLengths    []int  `mapstructure:"allowed_lengths"`
	DefaultTargetWins int    `mapstructure:"default_target_wins"`
	StartDelaySec     int    `mapstructure:"start_delay_sec"`
	// WordsDir: каталог со словарями words_<n>.txt; пусто = встроенный словарь
	WordsDir          string `mapstructure:"words_dir"`
}

// StartDelay возвращает задержку между стартом гонки и starts_at
func (g GameConfig) StartDelay() time.Duration {
	return time.Duration(g.StartDelaySec) * time.Second
}

// FeedConfig содержит настройки ленты изменений
type FeedConfig struct {
	// Driver: local | redis
	Driver        string
	ChannelPrefix string `mapstructure:"channel_prefix"`
	BufferSize    int    `mapstructure:"buffer_size"`
}

// WebSocketConfig содержит настройки WebSocket-подсистемы
type WebSocketConfig struct {
	SendBuffer        int     `mapstructure:"send_buffer"`
	MaxMessageSize    int64   `mapstructure:"max_message_size"`
	WriteWaitSec      int     `mapstructure:"write_wait_sec"`
	PongWaitSec       int     `mapstructure:"pong_wait_sec"`
	TickMillis        int     `mapstructure:"tick_millis"`
	GuessRate         float64 `mapstructure:"guess_rate"`
	GuessBurst        int     `mapstructure:"guess_burst"`
	IdleSweepInterval int     `mapstructure:"idle_sweep_interval_sec"`
}

// AuthConfig содержит настройки тикетов WebSocket
type AuthConfig struct {
	TicketSecret    string `mapstructure:"ticket_secret"`
	TicketExpirySec int    `mapstructure:"ticket_expiry_sec"`
	Issuer          string
}

// RateLimitConfig содержит настройки ограничения HTTP-запросов
type RateLimitConfig struct {
	Enabled   bool
	Requests  int
	WindowSec int `mapstructure:"window_sec"`
}

// MetricsConfig содержит настройки Prometheus
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.read_timeout", 10)
	vip.SetDefault("server.write_timeout", 10)
	vip.SetDefault("server.public_url", "http://localhost:5173/")
	vip.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})

	vip.SetDefault("log.level", "info")

	vip.SetDefault("database.driver", "postgres")
	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.sqlite_path", "buildle.db")
	vip.SetDefault("database.max_open_conns", 25)
	vip.SetDefault("database.max_idle_conns", 10)

	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("redis.key_prefix", "buildle:")
	vip.SetDefault("redis.standings_ttl_sec", 30)

	vip.SetDefault("game.default_length", 4)
	vip.SetDefault("game.allowed_lengths", []int{4, 5, 6})
	vip.SetDefault("game.default_target_wins", 5)
	vip.SetDefault("game.start_delay_sec", 5)

	vip.SetDefault("feed.driver", "local")
	vip.SetDefault("feed.channel_prefix", "buildle_")
	vip.SetDefault("feed.buffer_size", 64)

	vip.SetDefault("websocket.send_buffer", 64)
	vip.SetDefault("websocket.max_message_size", 4096)
	vip.SetDefault("websocket.write_wait_sec", 10)
	vip.SetDefault("websocket.pong_wait_sec", 60)
	vip.SetDefault("websocket.tick_millis", 300)
	vip.SetDefault("websocket.guess_rate", 2.0)
	vip.SetDefault("websocket.guess_burst", 4)
	vip.SetDefault("websocket.idle_sweep_interval_sec", 60)

	vip.SetDefault("auth.ticket_expiry_sec", 120)
	vip.SetDefault("auth.issuer", "buildle-api")

	vip.SetDefault("rate_limit.requests", 30)
	vip.SetDefault("rate_limit.window_sec", 60)

	vip.SetDefault("metrics.enabled", true)
	vip.SetDefault("metrics.path", "/metrics")
}

// Load загружает конфигурацию из файла и переменных окружения.
// Перед чтением подхватывается .env из рабочего каталога, если он есть.
func Load(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase читает только секцию database; нужна утилите миграций
func LoadDatabase(configPath string) (DatabaseConfig, error) {
	cfg, err := read(configPath)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if err := cfg.validateDatabase(); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

func read(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("не удалось прочитать .env")
	}

	vip := viper.New() // новый экземпляр, без глобального состояния
	setDefaults(vip)

	// Привязываем переменные окружения ЯВНО
	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.public_url", "SERVER_PUBLIC_URL")
	vip.BindEnv("log.level", "LOG_LEVEL")
	vip.BindEnv("log.pretty", "LOG_PRETTY")

	vip.BindEnv("database.driver", "DATABASE_DRIVER")
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")
	vip.BindEnv("database.sqlite_path", "DATABASE_SQLITE_PATH")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("feed.driver", "FEED_DRIVER")
	vip.BindEnv("game.words_dir", "WORDS_DIR")
	vip.BindEnv("auth.ticket_secret", "AUTH_TICKET_SECRET")
	vip.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	vip.BindEnv("metrics.enabled", "METRICS_ENABLED")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// файла может не быть: значения придут из env и умолчаний
		if err := vip.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				log.Info().Str("path", configPath).Msg("файл конфигурации не найден, используются переменные окружения/умолчания")
			} else {
				log.Warn().Err(err).Str("path", configPath).Msg("не удалось прочитать файл конфигурации")
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	log.Debug().
		Str("db_driver", cfg.Database.Driver).
		Str("db_host", cfg.Database.Host).
		Str("redis_addr", cfg.Redis.Addr).
		Str("feed_driver", cfg.Feed.Driver).
		Str("server_port", cfg.Server.Port).
		Bool("ticket_secret_set", cfg.Auth.TicketSecret != "").
		Msg("конфигурация загружена")

	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	switch c.Feed.Driver {
	case "local":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("redis feed driver requires redis.addr or redis.addrs")
		}
	default:
		return fmt.Errorf("unsupported feed driver %q", c.Feed.Driver)
	}

	if c.RateLimit.Enabled && !c.Redis.Enabled() {
		return fmt.Errorf("rate limiting requires redis.addr or redis.addrs")
	}
	if c.Auth.TicketSecret == "" {
		return fmt.Errorf("auth ticket secret is required (check AUTH_TICKET_SECRET env var)")
	}
	if len(c.Game.AllowedLengths) == 0 {
		return fmt.Errorf("game.allowed_lengths must not be empty")
	}
	if c.Game.DefaultTargetWins < 1 {
		return fmt.Errorf("game.default_target_wins must be >= 1")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
			return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}
