// Package config holds the runtime settings shared by every command.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/storage"
	"github.com/julianstephens/habitpilot/internal/utils"
)

// Config is embedded in the kong CLI; every field can also come from the
// environment or a .env file.
type Config struct {
	APIURL       string        `name:"api-url" help:"Base URL of the HabitPilot API." env:"HABITPILOT_API_URL" default:"${default_api_url}"`
	Cache        string        `help:"Offline cache location: SQLite path, PostgreSQL connection string, or :memory:. PostgreSQL credentials must NOT be embedded; use PGPASSWORD or .pgpass." env:"HABITPILOT_CACHE" default:"${default_cache}"`
	Unlimited    bool          `help:"Enable the unlimited-habits entitlement." env:"HABITPILOT_UNLIMITED"`
	FreeLimit    int           `help:"Habit limit without the unlimited entitlement." env:"HABITPILOT_FREE_LIMIT" default:"${free_limit}"`
	Timezone     string        `help:"IANA timezone that defines 'today'." env:"HABITPILOT_TZ" default:"Local"`
	Profile      string        `help:"Keyring account holding the API token." env:"HABITPILOT_PROFILE" default:"${default_profile}"`
	RequestRate  float64       `help:"Maximum API requests per second (0 disables limiting)." env:"HABITPILOT_REQUEST_RATE" default:"${request_rate}"`
	RequestBurst int           `help:"API request burst size." env:"HABITPILOT_REQUEST_BURST" default:"${request_burst}"`
	Timeout      time.Duration `help:"Timeout for each API request." env:"HABITPILOT_TIMEOUT" default:"${timeout}"`
	Debug        bool          `help:"Enable debug logging to stderr." env:"HABITPILOT_DEBUG"`
}

// Vars are the kong interpolation variables used by Config's defaults.
func Vars() map[string]string {
	return map[string]string{
		"default_api_url": constants.DefaultAPIURL,
		"default_cache":   constants.DefaultCachePath,
		"default_profile": constants.DefaultKeyringUser,
		"free_limit":      fmt.Sprint(constants.FreeHabitLimit),
		"request_rate":    fmt.Sprint(constants.DefaultRequestRate),
		"request_burst":   fmt.Sprint(constants.DefaultRequestBurst),
		"timeout":         constants.DefaultHTTPTimeout.String(),
	}
}

// Default returns a Config populated with the same defaults the CLI uses.
func Default() Config {
	return Config{
		APIURL:       constants.DefaultAPIURL,
		Cache:        constants.DefaultCachePath,
		FreeLimit:    constants.FreeHabitLimit,
		Timezone:     "Local",
		Profile:      constants.DefaultKeyringUser,
		RequestRate:  constants.DefaultRequestRate,
		RequestBurst: constants.DefaultRequestBurst,
		Timeout:      constants.DefaultHTTPTimeout,
	}
}

func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.APIURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("invalid api url %q: %w", c.APIURL, err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("invalid api url %q: scheme must be http or https", c.APIURL))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("invalid api url %q: missing host", c.APIURL))
	}

	if c.Cache == "" {
		errs = append(errs, errors.New("cache location cannot be empty"))
	} else if storage.IsPostgresDSN(c.Cache) && storage.HasEmbeddedCredentials(c.Cache) {
		errs = append(errs, errors.New("PostgreSQL connection strings with embedded credentials are not allowed; use PGPASSWORD or .pgpass"))
	}

	if c.FreeLimit <= 0 {
		errs = append(errs, fmt.Errorf("free limit must be positive, got %d", c.FreeLimit))
	}
	if c.RequestRate < 0 {
		errs = append(errs, fmt.Errorf("request rate cannot be negative, got %v", c.RequestRate))
	}
	if c.RequestBurst < 0 {
		errs = append(errs, fmt.Errorf("request burst cannot be negative, got %d", c.RequestBurst))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if !utils.ValidateTimezone(c.Timezone) {
		errs = append(errs, fmt.Errorf("unknown timezone %q", c.Timezone))
	}
	if c.Profile == "" {
		errs = append(errs, errors.New("profile cannot be empty"))
	}

	return errors.Join(errs...)
}

func (c Config) Location() (*time.Location, error) {
	return utils.LoadLocation(c.Timezone)
}

// CacheDSN returns the cache location with a leading "~" expanded.
func (c Config) CacheDSN() (string, error) {
	if c.Cache == storage.MemoryDSN || storage.IsPostgresDSN(c.Cache) {
		return c.Cache, nil
	}
	return utils.ExpandPath(c.Cache)
}

// ConfigDir is where logs live: next to a SQLite cache, otherwise the
// default config directory.
func (c Config) ConfigDir() (string, error) {
	if c.Cache != storage.MemoryDSN && !storage.IsPostgresDSN(c.Cache) {
		path, err := utils.ExpandPath(c.Cache)
		if err != nil {
			return "", err
		}
		return filepath.Dir(path), nil
	}
	path, err := utils.ExpandPath(constants.DefaultCachePath)
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}
