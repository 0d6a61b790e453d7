// Package config loads the orchestrator's configuration from the
// environment, with a .env file honored for local development.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// HTTP server.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage.
	DatabasePath string `env:"DATABASE_PATH" envDefault:"stackhost.db"`
	StacksDir    string `env:"STACKS_DIR" envDefault:"/srv/stackhost/stacks"`
	BackupDir    string `env:"BACKUP_DIR" envDefault:"/srv/stackhost/backups"`

	// Shared external database server hosting the per-tenant databases.
	TenantDBHost     string `env:"TENANT_DB_HOST" envDefault:"127.0.0.1"`
	TenantDBPort     int    `env:"TENANT_DB_PORT" envDefault:"5432"`
	TenantDBAdminDSN string `env:"TENANT_DB_ADMIN_DSN,required"`

	// Container runtime.
	DockerHost string `env:"DOCKER_HOST"`

	// Reverse proxy.
	NginxAvailableDir string `env:"NGINX_AVAILABLE_DIR" envDefault:"/etc/nginx/sites-available"`
	NginxEnabledDir   string `env:"NGINX_ENABLED_DIR" envDefault:"/etc/nginx/sites-enabled"`

	// Lifecycle timing.
	PortRangeStart int           `env:"PORT_RANGE_START" envDefault:"20000"`
	PaymentWindow  time.Duration `env:"PAYMENT_WINDOW" envDefault:"72h"`
	DeletionDelay  time.Duration `env:"DELETION_DELAY" envDefault:"12h"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`

	// Credentials.
	JWTSecret     string `env:"JWT_SECRET,required"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"stackhost"`
	WebhookSecret string `env:"WEBHOOK_SECRET,required"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
