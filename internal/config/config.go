// Package config loads command configuration from CALSYNC_* environment
// variables, then lets command-line flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

type Server struct {
	Addr     string `env:"CALSYNC_ADDR"      envDefault:":8080"`
	DBPath   string `env:"CALSYNC_DB"        envDefault:"calsync.db"`
	Debug    bool   `env:"CALSYNC_DEBUG"`
	LogLevel string `env:"CALSYNC_LOG_LEVEL" envDefault:"info"`
}

func (c *Server) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP bind address")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite DB path")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "expose pprof handlers")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
}

type Client struct {
	RemoteURL       string        `env:"CALSYNC_REMOTE_URL"        envDefault:"http://127.0.0.1:8080"`
	Token           string        `env:"CALSYNC_TOKEN"`
	Resources       []string      `env:"CALSYNC_RESOURCES"         envSeparator:","`
	CacheTTL        time.Duration `env:"CALSYNC_CACHE_TTL"         envDefault:"5m"`
	MaxDaysPerFetch int           `env:"CALSYNC_MAX_DAYS_PER_FETCH" envDefault:"31"`
	RefreshSpec     string        `env:"CALSYNC_REFRESH"           envDefault:"*/15 * * * *"`
	DaysBehind      int           `env:"CALSYNC_DAYS_BEHIND"       envDefault:"1"`
	DaysAhead       int           `env:"CALSYNC_DAYS_AHEAD"        envDefault:"14"`
	Timezone        string        `env:"CALSYNC_TZ"                envDefault:"Local"`
	RequestTimeout  time.Duration `env:"CALSYNC_REQUEST_TIMEOUT"   envDefault:"30s"`
	LogLevel        string        `env:"CALSYNC_LOG_LEVEL"         envDefault:"info"`
}

func (c *Client) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.RemoteURL, "remote", c.RemoteURL, "calendar API base URL")
	fs.StringVar(&c.Token, "token", c.Token, "bearer token for the calendar API")
	fs.Func("resources", "comma separated resource ids to keep fresh", func(v string) error {
		c.Resources = splitList(v)
		return nil
	})
	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "how long fetched days stay fresh (0 never expires)")
	fs.IntVar(&c.MaxDaysPerFetch, "max-days", c.MaxDaysPerFetch, "max days per range query (0 unbounded)")
	fs.StringVar(&c.RefreshSpec, "refresh", c.RefreshSpec, "cron expression for the refresher")
	fs.IntVar(&c.DaysBehind, "days-behind", c.DaysBehind, "days before today to refresh")
	fs.IntVar(&c.DaysAhead, "days-ahead", c.DaysAhead, "days after today to refresh")
	fs.StringVar(&c.Timezone, "tz", c.Timezone, "IANA time zone used to bucket days")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "HTTP request timeout")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
}

func (c *Client) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RemoteURL) == "" {
		errs = append(errs, errors.New("remote url is required"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("cache ttl must not be negative"))
	}
	if c.MaxDaysPerFetch < 0 {
		errs = append(errs, errors.New("max days per fetch must not be negative"))
	}
	if c.DaysBehind < 0 || c.DaysAhead < 0 {
		errs = append(errs, errors.New("refresh window must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load fills cfg from the environment, then from args.
func Load(cfg interface{ Bind(*flag.FlagSet) }, name string, args []string) error {
	if err := ParseEnv(cfg); err != nil {
		return err
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfg.Bind(fs)
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// SetupLogging points the global logger at a console writer on stdout.
func SetupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
