// Package db owns the MySQL connection pool and the engine's schema.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Stores are constructed over it so the same code runs standalone or
// inside a request transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Open connects to MySQL using either a mysql:// URL or a native DSN.
func Open(databaseURL string) (*sql.DB, error) {
	dsn, err := NormalizeDSN(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return pool, nil
}

// NormalizeDSN converts a mysql:// URL into the driver's DSN format and
// forces parseTime so DATETIME columns scan into time.Time. A string
// without a scheme is treated as an already-native DSN.
func NormalizeDSN(databaseURL string) (string, error) {
	if !strings.Contains(databaseURL, "://") {
		return withParseTime(databaseURL), nil
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if u.Scheme != "mysql" {
		return "", fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}

	var userinfo string
	if u.User != nil {
		userinfo = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			userinfo += ":" + pass
		}
		userinfo += "@"
	}

	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":3306"
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	dsn := fmt.Sprintf("%stcp(%s)/%s", userinfo, host, dbName)
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}
	return withParseTime(dsn), nil
}

func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
