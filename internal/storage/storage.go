package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/habitpilot/internal/storage/postgres"
	"github.com/julianstephens/habitpilot/internal/storage/sqlite"
)

// MemoryDSN selects the in-memory provider.
const MemoryDSN = ":memory:"

var (
	_ Provider = (*sqlite.Store)(nil)
	_ Provider = (*postgres.Store)(nil)
	_ Provider = (*MemoryStore)(nil)
)

// IsPostgresDSN reports whether dsn is a PostgreSQL URL.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// HasEmbeddedCredentials reports whether a PostgreSQL connection string
// carries a password.
func HasEmbeddedCredentials(dsn string) bool {
	_, err := postgres.ValidateConnString(dsn)
	return errors.Is(err, postgres.ErrEmbeddedCredentials)
}

// New picks a backend from the DSN without opening it.
func New(dsn string) (Provider, error) {
	switch {
	case dsn == MemoryDSN:
		return NewMemoryStore(), nil
	case IsPostgresDSN(dsn):
		if HasEmbeddedCredentials(dsn) {
			return nil, fmt.Errorf("PostgreSQL connection strings with embedded credentials are not allowed; use .pgpass or PGPASSWORD")
		}
		return postgres.New(dsn), nil
	case strings.TrimSpace(dsn) == "":
		return nil, fmt.Errorf("cache location cannot be empty")
	default:
		return sqlite.NewStore(dsn), nil
	}
}

// Open builds the provider for dsn and initializes it, creating the schema
// on first use.
func Open(dsn string) (Provider, error) {
	p, err := New(dsn)
	if err != nil {
		return nil, err
	}
	if err := p.Init(); err != nil {
		return nil, err
	}
	return p, nil
}
