package storage

// Provider is the key-value persistence capability behind the offline cache.
// Put is always a full overwrite of the value stored under key.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// Key-value access
	Put(key string, value []byte) error
	// Get returns ok=false, with a nil error, when the key is absent.
	Get(key string) (value []byte, ok bool, err error)
	Remove(key string) error
	Keys() ([]string, error)

	// Utils
	GetConfigPath() string
}
