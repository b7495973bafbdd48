package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Config represents the application configuration.
type Config struct {
	Postgres     Postgres      `mapstructure:"postgres" yaml:"postgres"`
	Registry     string        `mapstructure:"registry" yaml:"registry"`
	Availability Availability  `mapstructure:"availability" yaml:"availability"`
	SlowQuery    time.Duration `mapstructure:"slow_query" yaml:"slow_query"`
	TypeScope    TypeScope     `mapstructure:"type_scope" yaml:"type_scope"`
	Log          Log           `mapstructure:"log" yaml:"log"`
}

// Postgres describes how to reach the server.
type Postgres struct {
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             int           `mapstructure:"port" yaml:"port"`
	Database         string        `mapstructure:"database" yaml:"database"`
	User             string        `mapstructure:"user" yaml:"user"`
	Password         string        `mapstructure:"password" yaml:"password,omitempty"`
	ApplicationName  string        `mapstructure:"application_name" yaml:"application_name"`
	NoVerifySSL      bool          `mapstructure:"no_verify_ssl" yaml:"no_verify_ssl"`
	SSL              bool          `mapstructure:"ssl" yaml:"ssl"`
	KeyringService   string        `mapstructure:"keyring_service" yaml:"keyring_service,omitempty"`
	MaxConns         int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"`
}

// Availability bounds how long operations wait for the pool.
type Availability struct {
	WaitTimeout  time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// TypeScope names the JSON counter column used for type ids.
type TypeScope struct {
	Table  string `mapstructure:"table" yaml:"table"`
	Column string `mapstructure:"column" yaml:"column"`
}

// Log selects the log level and output format (console or json).
type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SSLMode maps the ssl flags to a libpq sslmode.
func (p Postgres) SSLMode() string {
	switch {
	case p.NoVerifySSL:
		return "require"
	case p.SSL:
		return "verify-full"
	default:
		return "disable"
	}
}

// DSN builds a PostgreSQL connection string from the postgres section.
func (p Postgres) DSN() string {
	u := url.URL{Scheme: "postgresql", Host: p.Host, Path: "/" + p.Database}
	if p.Port > 0 {
		u.Host += ":" + strconv.Itoa(p.Port)
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}

	q := url.Values{}
	q.Set("sslmode", p.SSLMode())
	if p.ApplicationName != "" {
		q.Set("application_name", p.ApplicationName)
	}
	if p.StatementTimeout > 0 {
		q.Set("statement_timeout", strconv.FormatInt(p.StatementTimeout.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// DisplayString returns a human-readable summary of the connection.
func (p Postgres) DisplayString() string {
	s := p.Host
	if p.Port > 0 {
		s += ":" + strconv.Itoa(p.Port)
	}
	s += "/" + p.Database
	if p.User != "" {
		s = p.User + "@" + s
	}
	return s
}

// ParseDSN parses a PostgreSQL connection string into a postgres section.
// Settings the URL does not carry keep their zero value.
func ParseDSN(dsn string) (Postgres, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Postgres{}, fmt.Errorf("invalid DSN: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return Postgres{}, fmt.Errorf("invalid DSN: unsupported scheme %q", u.Scheme)
	}

	q := u.Query()
	p := Postgres{
		Host:            u.Hostname(),
		Database:        trimPrefix(u.Path, "/"),
		ApplicationName: q.Get("application_name"),
	}

	switch q.Get("sslmode") {
	case "require":
		p.NoVerifySSL = true
	case "verify-ca", "verify-full":
		p.SSL = true
	}

	if u.User != nil {
		p.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			p.Password = pw
		}
	}

	if portStr := u.Port(); portStr != "" {
		p.Port, err = strconv.Atoi(portStr)
		if err != nil {
			return Postgres{}, fmt.Errorf("invalid DSN port %q: %w", portStr, err)
		}
	}
	if p.Port == 0 {
		p.Port = 5432
	}

	if ms := q.Get("statement_timeout"); ms != "" {
		n, err := strconv.Atoi(ms)
		if err != nil {
			return Postgres{}, fmt.Errorf("invalid DSN statement_timeout %q: %w", ms, err)
		}
		p.StatementTimeout = time.Duration(n) * time.Millisecond
	}

	return p, nil
}

// Validate checks the values Load cannot default.
func (cfg *Config) Validate() error {
	if cfg.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if cfg.Postgres.Port <= 0 || cfg.Postgres.Port > 65535 {
		return fmt.Errorf("postgres.port %d is out of range", cfg.Postgres.Port)
	}
	if cfg.Postgres.MaxConns < 1 {
		return fmt.Errorf("postgres.max_conns must be at least 1")
	}
	if cfg.Registry == "" {
		return fmt.Errorf("registry is required")
	}
	if cfg.TypeScope.Table == "" || cfg.TypeScope.Column == "" {
		return fmt.Errorf("type_scope.table and type_scope.column are required")
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", cfg.Log.Format)
	}
	return nil
}

func trimPrefix(s, prefix string) string {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
