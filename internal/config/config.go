// Package config loads the Kestrel runtime configuration from
// KESTREL_* environment variables layered over tier defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opencredit/kestrel/internal/domain"
)

// Load builds the configuration. KESTREL_TIER selects the defaults
// (community or pro); every other setting can be overridden through the
// matching KESTREL_ variable, e.g. KESTREL_SERVER_PORT or
// KESTREL_REPOSITORY_DRIVER.
func Load() (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KESTREL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := domain.DefaultConfig()
	if strings.EqualFold(v.GetString("tier"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	setDefaults(v, cfg)

	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.ReadTimeout = v.GetInt("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetInt("server.write_timeout")

	cfg.Repository.Driver = v.GetString("repository.driver")
	cfg.Repository.SQLitePath = v.GetString("repository.sqlite_path")
	cfg.Repository.PostgresHost = v.GetString("repository.postgres_host")
	cfg.Repository.PostgresPort = v.GetInt("repository.postgres_port")
	cfg.Repository.PostgresUser = v.GetString("repository.postgres_user")
	cfg.Repository.PostgresPassword = v.GetString("repository.postgres_password")
	cfg.Repository.PostgresDB = v.GetString("repository.postgres_db")
	cfg.Repository.PostgresSSLMode = v.GetString("repository.postgres_sslmode")

	cfg.Cache.Type = v.GetString("cache.type")
	cfg.Cache.LocalMaxSize = v.GetInt("cache.local_max_size")
	cfg.Cache.LocalTTL = v.GetDuration("cache.local_ttl")
	cfg.Cache.RedisAddr = v.GetString("cache.redis_addr")
	cfg.Cache.RedisPassword = v.GetString("cache.redis_password")
	cfg.Cache.RedisDB = v.GetInt("cache.redis_db")
	cfg.Cache.EnableTwoPhase = v.GetBool("cache.two_phase")

	cfg.EventBus.Type = v.GetString("bus.type")
	cfg.EventBus.ChannelBufferSize = v.GetInt("bus.channel_buffer")
	cfg.EventBus.NATSUrl = v.GetString("bus.nats_url")
	cfg.EventBus.NATSToken = v.GetString("bus.nats_token")

	cfg.Refresh.FetchTimeout = v.GetDuration("refresh.fetch_timeout")
	cfg.Refresh.ResultTTL = v.GetDuration("refresh.result_ttl")
	cfg.Refresh.AutoRefresh = v.GetBool("refresh.auto")
	cfg.Refresh.CronSpec = v.GetString("refresh.cron")

	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")

	cfg.Tracing.Enabled = v.GetBool("tracing.enabled")
	cfg.Tracing.ServiceName = v.GetString("tracing.service_name")
	cfg.Tracing.Endpoint = v.GetString("tracing.endpoint")

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *domain.Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)

	v.SetDefault("repository.driver", cfg.Repository.Driver)
	v.SetDefault("repository.sqlite_path", cfg.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", cfg.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", cfg.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", cfg.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", cfg.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", cfg.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", cfg.Repository.PostgresSSLMode)

	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.local_max_size", cfg.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", cfg.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", cfg.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", cfg.Cache.RedisDB)
	v.SetDefault("cache.two_phase", cfg.Cache.EnableTwoPhase)

	v.SetDefault("bus.type", cfg.EventBus.Type)
	v.SetDefault("bus.channel_buffer", cfg.EventBus.ChannelBufferSize)
	v.SetDefault("bus.nats_url", cfg.EventBus.NATSUrl)
	v.SetDefault("bus.nats_token", cfg.EventBus.NATSToken)

	v.SetDefault("refresh.fetch_timeout", cfg.Refresh.FetchTimeout)
	v.SetDefault("refresh.result_ttl", cfg.Refresh.ResultTTL)
	v.SetDefault("refresh.auto", cfg.Refresh.AutoRefresh)
	v.SetDefault("refresh.cron", cfg.Refresh.CronSpec)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
}

func validate(cfg *domain.Config) error {
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown repository driver %q", cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache type %q", cfg.Cache.Type)
	}

	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("config: unknown event bus type %q", cfg.EventBus.Type)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", cfg.Server.Port)
	}

	if cfg.Refresh.AutoRefresh && cfg.Refresh.CronSpec == "" {
		return fmt.Errorf("config: auto refresh enabled without a cron spec")
	}
	if cfg.Refresh.FetchTimeout <= 0 {
		cfg.Refresh.FetchTimeout = 10 * time.Second
	}

	return nil
}
