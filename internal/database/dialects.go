package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"

	sqliteMemoryDSN = "file::memory:?cache=shared&_foreign_keys=1"
)

func normaliseDriver(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return driverSQLite
	case "postgres", "postgresql", "pg":
		return driverPostgres
	case "mysql", "mariadb":
		return driverMySQL
	default:
		return ""
	}
}

func dialector(cfg Config) (gorm.Dialector, error) {
	switch normaliseDriver(cfg.Driver) {
	case driverSQLite:
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	case driverPostgres:
		dsn, err := postgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case driverMySQL:
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// sqliteDSN opens a file database in WAL mode, creating its directory, or a
// shared in-memory database when no path is set.
func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return sqliteMemoryDSN, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("sqlite: create %s: %w", dir, err)
		}
	}
	return "file:" + filepath.ToSlash(path) + "?_foreign_keys=1&_journal_mode=WAL", nil
}

func requireCredentials(driver string, cfg Config) error {
	if cfg.User == "" || cfg.Name == "" {
		return errors.New(driver + ": user and database name are required")
	}
	return nil
}

func hostPort(host string, port int, defaultHost string, defaultPort int) string {
	if host == "" {
		host = defaultHost
	}
	if port <= 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// postgresDSN renders a postgres:// URL. sslmode defaults to disable unless
// Options says otherwise.
func postgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if err := requireCredentials(driverPostgres, cfg); err != nil {
		return "", err
	}

	query := url.Values{"sslmode": {"disable"}}
	if cfg.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout/time.Second)))
	}
	for k, v := range cfg.Options {
		query.Set(k, v)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(cfg.User),
		Host:     hostPort(cfg.Host, cfg.Port, "localhost", 5432),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String(), nil
}

// mysqlDSN builds the DSN through the driver's own Config so escaping matches
// what the driver parses.
func mysqlDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if err := requireCredentials(driverMySQL, cfg); err != nil {
		return "", err
	}

	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = hostPort(cfg.Host, cfg.Port, "127.0.0.1", 3306)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = cfg.ConnectTimeout
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range cfg.Options {
		mc.Params[k] = v
	}
	return mc.FormatDSN(), nil
}
