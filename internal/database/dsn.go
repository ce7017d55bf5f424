package database

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Timestamps are compared against link expiry and throttle windows in UTC, so
// both server drivers pin their session time zone to UTC.

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig())
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig())
}

// buildPostgresDSN renders a postgres:// URL so credentials containing
// spaces or symbols survive without manual quoting.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	query := url.Values{}
	query.Set("sslmode", "disable")
	query.Set("TimeZone", "UTC")
	for key, value := range cfg.Options {
		query.Set(key, value)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(cfg.User),
		Host:     hostPort(cfg.Host, "localhost", cfg.Port, 5432),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String(), nil
}

// buildMySQLDSN formats the DSN through the driver's own config type.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	mc := mysqldriver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = hostPort(cfg.Host, "127.0.0.1", cfg.Port, 3306)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for key, value := range cfg.Options {
		mc.Params[key] = value
	}
	return mc.FormatDSN(), nil
}

func hostPort(host, defaultHost string, port, defaultPort int) string {
	if host == "" {
		host = defaultHost
	}
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
