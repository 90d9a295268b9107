package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

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

// buildPostgresDSN renders a keyword/value DSN. sslmode defaults to disable.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	params := []string{
		"host=" + valueOr(cfg.Host, "localhost"),
		fmt.Sprintf("port=%d", portOr(cfg.Port, 5432)),
		"user=" + cfg.User,
		"dbname=" + cfg.Name,
	}
	if cfg.Password != "" {
		params = append(params, "password="+cfg.Password)
	}

	options := mergeOptions(map[string]string{"sslmode": "disable"}, cfg.Options)
	for _, key := range sortedKeys(options) {
		params = append(params, key+"="+options[key])
	}
	return strings.Join(params, " "), nil
}

// buildMySQLDSN renders a go-sql-driver DSN with parseTime enabled so
// DATETIME columns scan into time.Time.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	credentials := cfg.User
	if cfg.Password != "" {
		credentials += ":" + cfg.Password
	}

	options := mergeOptions(map[string]string{
		"charset":   "utf8mb4",
		"parseTime": "True",
		"loc":       "UTC",
	}, cfg.Options)
	query := make([]string, 0, len(options))
	for _, key := range sortedKeys(options) {
		query = append(query, key+"="+options[key])
	}

	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s",
		credentials, valueOr(cfg.Host, "127.0.0.1"), portOr(cfg.Port, 3306), cfg.Name, strings.Join(query, "&")), nil
}

func mergeOptions(base, overrides map[string]string) map[string]string {
	for key, value := range overrides {
		base[key] = value
	}
	return base
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func portOr(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}
