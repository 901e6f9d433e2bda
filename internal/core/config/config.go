package config

import (
	"time"

	redisclient "github.com/vietddude/regsync/internal/infra/redis"
	"github.com/vietddude/regsync/internal/infra/rpc"
	"github.com/vietddude/regsync/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`  // empty URL = in-memory store
	Redis     redisclient.Config `yaml:"redis"`     // empty URL = in-process refresh lock
	Registrar RegistrarConfig    `yaml:"registrar"`
	Pricing   PricingConfig      `yaml:"pricing"`
	Reconcile ReconcileConfig    `yaml:"reconcile"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RegistrarConfig holds the remote API client and resource service settings.
type RegistrarConfig struct {
	rpc.Config `yaml:",inline"`

	PurchasesEnabled bool   `yaml:"purchases_enabled"`
	Currency         string `yaml:"currency"`
	InvoiceOption    string `yaml:"invoice_option"`
	EmailProduct     string `yaml:"email_product"`
	AvailabilityURL  string `yaml:"availability_url"`
}

// PricingConfig holds pricing cache settings.
type PricingConfig struct {
	MaxAgeHours     int           `yaml:"max_age_hours"`
	RefreshInterval time.Duration `yaml:"refresh_interval"` // 0 = no scheduled refresh
	Tiers           []string      `yaml:"tiers"`
	ResourceKeys    []string      `yaml:"resource_keys"` // empty = cache every key returned
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

// MaxAge returns the staleness window.
func (p PricingConfig) MaxAge() time.Duration {
	return time.Duration(p.MaxAgeHours) * time.Hour
}

// ReconcileConfig holds reconciliation settings.
type ReconcileConfig struct {
	Interval    time.Duration `yaml:"interval"` // 0 = no scheduled reconciliation
	ItemDelay   time.Duration `yaml:"item_delay"`
	GraceWindow time.Duration `yaml:"grace_window"`
	Concurrency int           `yaml:"concurrency"`
}
