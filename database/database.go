// Package database opens the Postgres pool described by a [db_main] config
// section.
package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/freekieb7/jet/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const DriverName = "postgres"

var ErrNotConfigured = errors.New("database: neither host nor socket configured")

// DSN builds a lib/pq connection string. A host takes precedence over a
// socket; a socket is the directory holding the server's unix socket and is
// resolved with resolve when relative.
func DSN(cfg config.Database, resolve func(string) string) (string, error) {
	var pairs [][2]string
	switch {
	case cfg.Host != "":
		pairs = append(pairs, [2]string{"host", cfg.Host})
	case cfg.Socket != "":
		socket := cfg.Socket
		if resolve != nil {
			socket = resolve(socket)
		}
		pairs = append(pairs, [2]string{"host", socket})
	default:
		return "", ErrNotConfigured
	}

	if cfg.Port > 0 {
		pairs = append(pairs, [2]string{"port", strconv.Itoa(cfg.Port)})
	}
	if cfg.User != "" {
		pairs = append(pairs, [2]string{"user", cfg.User})
	}
	if cfg.Password != "" {
		pairs = append(pairs, [2]string{"password", cfg.Password})
	}
	if cfg.Database != "" {
		pairs = append(pairs, [2]string{"dbname", cfg.Database})
	}
	if cfg.Host != "" {
		pairs = append(pairs, [2]string{"sslmode", "disable"})
	}

	var sb strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(kv[0])
		sb.WriteByte('=')
		sb.WriteString(quote(kv[1]))
	}
	return sb.String(), nil
}

// quote escapes a value for the key=value DSN format.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Open returns a lazily connecting pool; the first query dials.
func Open(cfg config.Database, resolve func(string) string) (*sqlx.DB, error) {
	dsn, err := DSN(cfg, resolve)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	return db, nil
}
