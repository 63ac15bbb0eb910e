package config

import "time"

type Config struct {
	Service  *ServiceConfig
	HTTP     *HTTPConfig
	Redis    *RedisConfig
	Postgres *PostgresConfig
	Kafka    *KafkaConfig
	Realtime *RealtimeConfig
	Auth     *AuthConfig
	Logger   *LoggerConfig
	Tracer   *TracerConfig
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type HTTPConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	// RateLimit requests per RateWindow per client IP on /api routes.
	RateLimit  int
	RateWindow time.Duration
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
	// ClientName shows up in CLIENT LIST.
	ClientName string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	AutoMigrate     bool
	// ApplicationName is reported to the server in pg_stat_activity.
	ApplicationName string
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	MessagesTopic   string
	UserEventsTopic string
	WriteTimeout    time.Duration
}

// RealtimeConfig tunes the websocket presence and delivery path.
type RealtimeConfig struct {
	HandshakeTimeout  time.Duration
	PushTimeout       time.Duration
	TypingTTL         time.Duration
	PresenceTTL       time.Duration
	HeartbeatInterval time.Duration
	PingInterval      time.Duration
	PongWait          time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	MaxMessageBytes   int64
}

type AuthConfig struct {
	SecretToken string
	Issuer      string
	TokenTTL    time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Enabled bool
	Address string
}

func (c *Config) IsProduction() bool {
	return c.Service.Env == "production"
}
