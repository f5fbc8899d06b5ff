// Package config loads the server configuration file. The file has a [main]
// section for the listener, a [db_main] section for the database and a
// [telemetry] section; TOML and YAML are accepted. Values from a .env file
// next to the config file and from JET_* environment variables override the
// file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"gopkg.in/yaml.v3"
)

const name = "github.com/freekieb7/jet/config"

var logger = otelslog.NewLogger(name)

var ErrUnknownFormat = errors.New("config: unknown file format")

type Main struct {
	BindHost     string   `toml:"bind_host" yaml:"bind_host" env:"JET_BIND_HOST"`
	BindPort     int      `toml:"bind_port" yaml:"bind_port" env:"JET_BIND_PORT"`
	BindSocket   string   `toml:"bind_socket" yaml:"bind_socket" env:"JET_BIND_SOCKET"`
	Debug        bool     `toml:"debug" yaml:"debug" env:"JET_DEBUG"`
	BodyLimit    int      `toml:"body_limit" yaml:"body_limit" env:"JET_BODY_LIMIT"`
	Workers      int      `toml:"workers" yaml:"workers" env:"JET_WORKERS"`
	DrainTimeout Duration `toml:"drain_timeout" yaml:"drain_timeout" env:"JET_DRAIN_TIMEOUT"`
}

type Database struct {
	Host     string `toml:"host" yaml:"host" env:"JET_DB_HOST"`
	Port     int    `toml:"port" yaml:"port" env:"JET_DB_PORT"`
	User     string `toml:"user" yaml:"user" env:"JET_DB_USER"`
	Password string `toml:"password" yaml:"password" env:"JET_DB_PASSWORD"`
	Database string `toml:"database" yaml:"database" env:"JET_DB_DATABASE"`
	Socket   string `toml:"socket" yaml:"socket" env:"JET_DB_SOCKET"`
	MaxConns int    `toml:"max_conns" yaml:"max_conns" env:"JET_DB_MAX_CONNS"`
}

// Configured reports whether either a host or a socket was given.
func (db Database) Configured() bool {
	return db.Host != "" || db.Socket != ""
}

type Telemetry struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled" env:"JET_TELEMETRY_ENABLED"`
	Endpoint    string `toml:"endpoint" yaml:"endpoint" env:"JET_TELEMETRY_ENDPOINT"`
	ServiceName string `toml:"service_name" yaml:"service_name" env:"JET_TELEMETRY_SERVICE_NAME"`
}

type Config struct {
	Main      Main      `toml:"main" yaml:"main"`
	DB        Database  `toml:"db_main" yaml:"db_main"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`

	dir string
}

// Default returns the configuration used for anything the file leaves out.
func Default() Config {
	return Config{
		Main: Main{
			BindHost:  "localhost",
			BindPort:  8080,
			BodyLimit: 1_000_000,
		},
		DB: Database{
			Port:     5432,
			MaxConns: 4,
		},
		Telemetry: Telemetry{
			ServiceName: "jet",
		},
	}
}

// Load reads the file at path. When the file does not exist and require is
// false a warning is logged and the defaults are used.
func Load(path string, require bool) (*Config, error) {
	cfg := Default()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.dir = filepath.Dir(abs)

	data, err := os.ReadFile(abs)
	switch {
	case err == nil:
		if err := decode(abs, data, &cfg); err != nil {
			return nil, err
		}
	case !require && errors.Is(err, fs.ErrNotExist):
		logger.Warn("no configuration file loaded", "path", abs)
	default:
		return nil, fmt.Errorf("config: could not open %s: %w", abs, err)
	}

	if err := godotenv.Load(filepath.Join(cfg.dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if cfg.Main.BindPort <= 0 || cfg.Main.BindPort > 65535 {
		return nil, fmt.Errorf("config: %s: bind_port %d out of range", abs, cfg.Main.BindPort)
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".ini", ".conf":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// ResolvePath resolves p against the directory of the config file. Absolute
// paths are returned unchanged.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// DefaultPath returns <root>/etc/<file>, where <root> is two levels above the
// executable (the executable normally lives in <root>/bin).
func DefaultPath(file string) string {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Join("etc", file)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(filepath.Dir(exe)), "etc", file)
}

// Duration is a time.Duration written as "30s" or "1m" in files and
// environment variables.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Decode implements envdecode.Decoder.
func (d *Duration) Decode(value string) error {
	return d.UnmarshalText([]byte(value))
}
