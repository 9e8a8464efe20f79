package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Auth          AuthConfig          `yaml:"auth"`
	Session       SessionConfig       `yaml:"session"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Sync          SyncConfig          `yaml:"sync"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Audit         AuditConfig         `yaml:"audit"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Backup        BackupConfig        `yaml:"backup"`
}

type ServerConfig struct {
	Address             string        `yaml:"address"`
	Port                int           `yaml:"port"`
	ShutdownTimeoutSecs int           `yaml:"shutdown_timeout_secs"`
	AllowedOrigins      []string      `yaml:"allowed_origins"` // empty = same-origin only
	AdminToken          string        `yaml:"admin_token"`     // empty leaves the admin API open
	TLS                 TLSConfig     `yaml:"tls"`
	AutoTLS             AutoTLSConfig `yaml:"autotls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type AutoTLSConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Domains    []string `yaml:"domains"`
	CacheDir   string   `yaml:"cache_dir"`
	SelfSigned bool     `yaml:"self_signed"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type StaticUser struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Admin bool   `yaml:"admin"`
}

type WebhookAuthConfig struct {
	URL         string `yaml:"url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type LDAPAuthConfig struct {
	ServerURL     string `yaml:"server_url"`
	BindDN        string `yaml:"bind_dn"`
	BindPassword  string `yaml:"bind_password"`
	BaseDN        string `yaml:"base_dn"`
	UserFilter    string `yaml:"user_filter"` // e.g. "(uid=%s)"
	NameAttr      string `yaml:"name_attr"`   // e.g. "cn"
	GroupAttr     string `yaml:"group_attr"`  // e.g. "memberOf"
	AdminGroup    string `yaml:"admin_group"` // group DN granting admin
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
	StartTLS      bool   `yaml:"start_tls"`
}

type AuthConfig struct {
	Mode    string            `yaml:"mode"` // passthrough, static, webhook, ldap
	Users   []StaticUser      `yaml:"users"`
	Webhook WebhookAuthConfig `yaml:"webhook"`
	LDAP    LDAPAuthConfig    `yaml:"ldap"`
}

type SessionConfig struct {
	ReapIntervalSecs int `yaml:"reap_interval_secs"`
	MaxIdleSecs      int `yaml:"max_idle_secs"` // 0 disables idle reaping
}

type SnapshotConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	IntervalSecs int    `yaml:"interval_secs"`
	ScrubOnStart bool   `yaml:"scrub_on_start"`
}

type SyncPeer struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type SyncConfig struct {
	Enabled          bool       `yaml:"enabled"`
	SiteID           string     `yaml:"site_id"`
	Secret           string     `yaml:"secret"` // shared HMAC secret across sites
	Peers            []SyncPeer `yaml:"peers"`
	ScanIntervalSecs int        `yaml:"scan_interval_secs"`
	MaxRetries       int        `yaml:"max_retries"`
	BatchSize        int        `yaml:"batch_size"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
	ListKey string `yaml:"list_key"`
}

type PostgresConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type ElasticsearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Index   string `yaml:"index"`
}

type WebhookEndpoint struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`          // empty matches every event
	DocumentPrefix string   `yaml:"document_prefix"` // empty matches every document
}

type WebhookConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

type NotificationsConfig struct {
	MaxWorkers    int                 `yaml:"max_workers"`
	QueueSize     int                 `yaml:"queue_size"`
	TimeoutSecs   int                 `yaml:"timeout_secs"`
	MaxRetries    int                 `yaml:"max_retries"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	NATS          NATSConfig          `yaml:"nats"`
	Redis         RedisConfig         `yaml:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Webhook       WebhookConfig       `yaml:"webhook"`
}

type AuditConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FilePath string `yaml:"file_path"`
}

type RateLimitConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MessagesPerSec  float64 `yaml:"messages_per_sec"`
	Burst           int     `yaml:"burst"`
	DumpBytesPerSec int64   `yaml:"dump_bytes_per_sec"` // 0 disables bulk download throttling
}

type BackupConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	ScheduleCron string `yaml:"schedule_cron"` // "M H * * *", daily only
	Keep         int    `yaml:"keep"`          // backup sets retained on disk
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:             "0.0.0.0",
			Port:                8080,
			ShutdownTimeoutSecs: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			Mode: "passthrough",
		},
		Session: SessionConfig{
			ReapIntervalSecs: 300,
			MaxIdleSecs:      1800,
		},
		Snapshot: SnapshotConfig{
			Enabled:      true,
			Dir:          "./snapshots",
			IntervalSecs: 60,
		},
		Sync: SyncConfig{
			ScanIntervalSecs: 30,
			MaxRetries:       5,
			BatchSize:        100,
		},
		Notifications: NotificationsConfig{
			MaxWorkers:  4,
			QueueSize:   256,
			TimeoutSecs: 10,
			MaxRetries:  3,
		},
		Audit: AuditConfig{
			FilePath: "./audit.log",
		},
		RateLimit: RateLimitConfig{
			MessagesPerSec: 50,
			Burst:          100,
		},
		Backup: BackupConfig{
			Dir:          "./backups",
			ScheduleCron: "0 3 * * *",
			Keep:         7,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Sync.Enabled {
		if cfg.Sync.SiteID == "" {
			return nil, fmt.Errorf("sync enabled without site_id")
		}
		if cfg.Sync.Secret == "" {
			return nil, fmt.Errorf("sync enabled without secret")
		}
	}
	switch cfg.Auth.Mode {
	case "", "passthrough":
	case "static":
		if len(cfg.Auth.Users) == 0 {
			return nil, fmt.Errorf("static auth without users")
		}
	case "webhook":
		if cfg.Auth.Webhook.URL == "" {
			return nil, fmt.Errorf("webhook auth without url")
		}
	case "ldap":
		if cfg.Auth.LDAP.ServerURL == "" || cfg.Auth.LDAP.BaseDN == "" || cfg.Auth.LDAP.UserFilter == "" {
			return nil, fmt.Errorf("ldap auth needs server_url, base_dn and user_filter")
		}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
	if cfg.Server.AutoTLS.Enabled && !cfg.Server.AutoTLS.SelfSigned && len(cfg.Server.AutoTLS.Domains) == 0 {
		return nil, fmt.Errorf("autotls enabled without domains")
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.MessagesPerSec <= 0 {
		return nil, fmt.Errorf("rate limit enabled with non-positive messages_per_sec")
	}
	if cfg.Backup.Enabled && !cfg.Snapshot.Enabled {
		return nil, fmt.Errorf("backup enabled without snapshot store")
	}

	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
