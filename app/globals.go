// Package app is the demo deployment served by the jet binary: its
// configuration-derived globals, the item store and the routes.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/freekieb7/jet/config"
	"github.com/freekieb7/jet/database"
	"github.com/freekieb7/jet/http"
	"github.com/freekieb7/jet/telemetry"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const name = "github.com/freekieb7/jet/app"

var logger = otelslog.NewLogger(name)

const Version = "1.0"

// VersionString is the version reported by GET /version.
func VersionString(debug bool) string {
	if debug {
		return Version + " (DEBUG)"
	}
	return Version
}

// Globals holds the process-wide resources of the deployment. It implements
// http.Globals.
type Globals struct {
	Config *config.Config
	DB     *sqlx.DB

	bindAddress       http.Address
	shutdownTelemetry telemetry.ShutdownFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewGlobals starts telemetry and opens the database pool when [db_main] is
// configured.
func NewGlobals(ctx context.Context, cfg *config.Config) (*Globals, error) {
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	globals := &Globals{
		Config:            cfg,
		bindAddress:       bindAddress(cfg),
		shutdownTelemetry: shutdownTelemetry,
	}

	if cfg.DB.Configured() {
		db, err := database.Open(cfg.DB, cfg.ResolvePath)
		if err != nil {
			return nil, errors.Join(err, shutdownTelemetry(ctx))
		}
		globals.DB = db
	} else {
		logger.Warn("no database configured, item routes disabled")
	}

	return globals, nil
}

// bindAddress prefers a configured unix socket over host and port.
func bindAddress(cfg *config.Config) http.Address {
	if cfg.Main.BindSocket != "" {
		return http.UnixAddress(cfg.ResolvePath(cfg.Main.BindSocket))
	}
	host := cfg.Main.BindHost
	if host == "" {
		host = "localhost"
	}
	return http.TCPAddress(host, cfg.Main.BindPort)
}

func (g *Globals) BindAddress() http.Address {
	return g.bindAddress
}

// Shutdown closes the database pool and flushes telemetry. Only the first
// call does any work.
func (g *Globals) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		if g.DB != nil {
			g.shutdownErr = errors.Join(g.shutdownErr, g.DB.Close())
		}
		if g.shutdownTelemetry != nil {
			g.shutdownErr = errors.Join(g.shutdownErr, g.shutdownTelemetry(ctx))
		}
	})
	return g.shutdownErr
}

// Logger returns the OpenTelemetry bridged logger when telemetry is enabled
// and a stderr text logger otherwise.
func (g *Globals) Logger() *slog.Logger {
	if g.Config.Telemetry.Enabled {
		return otelslog.NewLogger(g.Config.Telemetry.ServiceName)
	}
	level := slog.LevelInfo
	if g.Config.Main.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Server builds the http.Server for this deployment.
func (g *Globals) Server() *http.Server {
	var items *ItemStore
	if g.DB != nil {
		items = NewItemStore(g.DB)
	}

	srv := http.NewServer("jet", Routes(items, g.Config.Main.Debug), g)
	srv.Logger = g.Logger()
	srv.Debug = g.Config.Main.Debug
	srv.MaxBodyBytes = g.Config.Main.BodyLimit
	srv.Workers = g.Config.Main.Workers
	srv.DrainTimeout = g.Config.Main.DrainTimeout.Std()
	return srv
}
