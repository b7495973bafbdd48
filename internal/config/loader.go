package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	configDir  = ".pgstore"
	configFile = "config"
	configType = "yaml"
	envPrefix  = "PGSTORE"
)

var defaults = map[string]any{
	"postgres.host":              "localhost",
	"postgres.port":              5432,
	"postgres.database":          "postgres",
	"postgres.user":              "postgres",
	"postgres.password":          "",
	"postgres.application_name":  "pgstore",
	"postgres.no_verify_ssl":     false,
	"postgres.ssl":               false,
	"postgres.keyring_service":   "",
	"postgres.max_conns":         1,
	"postgres.connect_timeout":   "5s",
	"postgres.statement_timeout": "5s",
	"registry":                   "",
	"availability.wait_timeout":  "10s",
	"availability.poll_interval": "500ms",
	"slow_query":                 "5s",
	"type_scope.table":           "hosts",
	"type_scope.column":          "type_id",
	"log.level":                  "info",
	"log.format":                 "console",
}

// Load reads the configuration from path, or from ~/.pgstore/config.yaml
// when path is empty. A missing default file is not an error; every key
// can also be set through PGSTORE_* environment variables
// (PGSTORE_POSTGRES_HOST, PGSTORE_LOG_LEVEL, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := configDirPath()
		if err != nil {
			return nil, fmt.Errorf("config dir: %w", err)
		}
		v.SetConfigName(configFile)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// ApplyDSN overlays the settings carried by a connection URL onto the
// postgres section.
func (cfg *Config) ApplyDSN(dsn string) error {
	p, err := ParseDSN(dsn)
	if err != nil {
		return err
	}
	cur := &cfg.Postgres
	cur.Host = p.Host
	cur.Port = p.Port
	if p.Database != "" {
		cur.Database = p.Database
	}
	if p.User != "" {
		cur.User = p.User
	}
	if p.Password != "" {
		cur.Password = p.Password
	}
	if p.ApplicationName != "" {
		cur.ApplicationName = p.ApplicationName
	}
	if p.StatementTimeout > 0 {
		cur.StatementTimeout = p.StatementTimeout
	}
	cur.NoVerifySSL = p.NoVerifySSL
	cur.SSL = p.SSL
	return nil
}

// ResolvePassword fills in an empty password from the OS keyring when a
// keyring service is configured. The keyring entry is keyed by user.
func (cfg *Config) ResolvePassword() error {
	p := &cfg.Postgres
	if p.Password != "" || p.KeyringService == "" {
		return nil
	}
	secret, err := keyring.Get(p.KeyringService, p.User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no password for %s in keyring service %s", p.User, p.KeyringService)
		}
		return fmt.Errorf("keyring: %w", err)
	}
	p.Password = secret
	return nil
}

func configDirPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDir), nil
}
