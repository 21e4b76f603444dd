// Package config loads server settings from an optional TOML file and the
// MCP_* environment variables. Environment values override the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend names accepted by the backend setting.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMSSQL    = "mssql"
	BackendMySQL    = "mysql"
	BackendSQLite   = "sqlite"
)

const (
	DefaultQueryTimeout = 30 * time.Second
	DefaultMaxRows      = 10000
	DefaultLogLevel     = "info"
)

type Config struct {
	Backend      string   `toml:"backend"`
	LogLevel     string   `toml:"log_level"`
	QueryTimeout Duration `toml:"query_timeout"`
	MaxRows      int      `toml:"max_rows"`
	ReadOnly     bool     `toml:"read_only"`

	Postgres PostgresConfig `toml:"postgres"`
	MSSQL    MSSQLConfig    `toml:"mssql"`
	MySQL    MySQLConfig    `toml:"mysql"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Mongo    MongoConfig    `toml:"mongo"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode"`
}

type MSSQLConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type MySQLConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

type MongoConfig struct {
	URI         string       `toml:"uri"`
	Database    string       `toml:"database"`
	PromptRules []PromptRule `toml:"prompt_rules"`
}

// PromptRule maps a keyword found in a free-text prompt to a collection.
// Rules are tried in order; the first match wins.
type PromptRule struct {
	Keyword    string `toml:"keyword"`
	Collection string `toml:"collection"`
}

// DefaultPromptRules is the keyword table used when none is configured.
var DefaultPromptRules = []PromptRule{
	{Keyword: "user", Collection: "users"},
	{Keyword: "order", Collection: "orders"},
	{Keyword: "product", Collection: "products"},
}

// Duration is a time.Duration that decodes from strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func DefaultConfig() *Config {
	return &Config{
		Backend:      BackendPostgres,
		LogLevel:     DefaultLogLevel,
		QueryTimeout: Duration{DefaultQueryTimeout},
		MaxRows:      DefaultMaxRows,
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     "5432",
			Database: "mcp_postgres",
			User:     "mcp_user",
			SSLMode:  "prefer",
		},
		MSSQL: MSSQLConfig{
			Host:     "localhost",
			Port:     "1433",
			Database: "mcp_demo",
			User:     "mcp_user",
		},
		MySQL: MySQLConfig{
			Host: "localhost",
			Port: "3306",
		},
		Mongo: MongoConfig{
			URI: "mongodb://localhost:27017",
		},
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides. It does not validate; call Validate once the
// backend flag has been applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err == nil {
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if len(cfg.Mongo.PromptRules) == 0 {
		cfg.Mongo.PromptRules = DefaultPromptRules
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("MCP_BACKEND", &c.Backend)
	str("MCP_LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("MCP_QUERY_TIMEOUT"); ok && v != "" {
		if err := c.QueryTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid MCP_QUERY_TIMEOUT %q: %w", v, err)
		}
	}
	if v, ok := lookup("MCP_MAX_ROWS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MCP_MAX_ROWS %q: %w", v, err)
		}
		c.MaxRows = n
	}
	if v, ok := lookup("MCP_READ_ONLY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MCP_READ_ONLY %q: %w", v, err)
		}
		c.ReadOnly = b
	}

	str("MCP_PG_HOST", &c.Postgres.Host)
	str("MCP_PG_PORT", &c.Postgres.Port)
	str("MCP_PG_DB", &c.Postgres.Database)
	str("MCP_PG_USER", &c.Postgres.User)
	str("MCP_PG_PASSWORD", &c.Postgres.Password)
	str("MCP_PG_SSLMODE", &c.Postgres.SSLMode)

	str("MCP_MSSQL_HOST", &c.MSSQL.Host)
	str("MCP_MSSQL_PORT", &c.MSSQL.Port)
	str("MCP_MSSQL_DB", &c.MSSQL.Database)
	str("MCP_MSSQL_USER", &c.MSSQL.User)
	str("MCP_MSSQL_PASSWORD", &c.MSSQL.Password)

	str("MCP_MYSQL_HOST", &c.MySQL.Host)
	str("MCP_MYSQL_PORT", &c.MySQL.Port)
	str("MCP_MYSQL_DB", &c.MySQL.Database)
	str("MCP_MYSQL_USER", &c.MySQL.User)
	str("MCP_MYSQL_PASSWORD", &c.MySQL.Password)

	str("MCP_SQLITE_PATH", &c.SQLite.Path)

	str("MCP_MONGO_URI", &c.Mongo.URI)
	str("MCP_MONGO_DB", &c.Mongo.Database)
	return nil
}

// Validate checks the settings the selected backend cannot run without and
// reports all of them at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	switch c.Backend {
	case BackendPostgres:
		require("postgres.host", c.Postgres.Host)
		require("postgres.port", c.Postgres.Port)
		require("postgres.database", c.Postgres.Database)
		require("postgres.user", c.Postgres.User)
	case BackendMSSQL:
		require("mssql.host", c.MSSQL.Host)
		require("mssql.database", c.MSSQL.Database)
	case BackendMySQL:
		require("mysql.host", c.MySQL.Host)
		require("mysql.port", c.MySQL.Port)
		require("mysql.database", c.MySQL.Database)
		require("mysql.user", c.MySQL.User)
	case BackendSQLite:
		require("sqlite.path", c.SQLite.Path)
	case BackendMongo:
		require("mongo.uri", c.Mongo.URI)
		require("mongo.database", c.Mongo.Database)
	default:
		return fmt.Errorf("unknown backend %q (want one of %s, %s, %s, %s, %s)",
			c.Backend, BackendMongo, BackendPostgres, BackendMSSQL, BackendMySQL, BackendSQLite)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required settings for %s backend: %v", c.Backend, missing)
	}
	if c.QueryTimeout.Duration <= 0 {
		return fmt.Errorf("query_timeout must be positive, got %s", c.QueryTimeout)
	}
	if c.MaxRows <= 0 {
		return fmt.Errorf("max_rows must be positive, got %d", c.MaxRows)
	}
	return nil
}
