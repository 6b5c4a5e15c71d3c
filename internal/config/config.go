package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type DB struct {
	URL             string        `env:"DATABASE_URL,required,notEmpty"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH" envDefault:"file://db/migrations"`
}

// Kafka is optional: with no bootstrap servers the service logs notifications instead of publishing them.
type Kafka struct {
	BootstrapServers  string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	NotificationTopic string `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"approval.notifications"`
	AuditTopic        string `env:"KAFKA_AUDIT_TOPIC" envDefault:"audit.events"`
}

func (k Kafka) Enabled() bool {
	return k.BootstrapServers != ""
}

type HTTP struct {
	Port string `env:"PORT" envDefault:"8080"`
}

type Config struct {
	DB       DB
	Kafka    Kafka
	HTTP     HTTP
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
