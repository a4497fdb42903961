package config

import (
	"io"
	"time"
)

// TimeConfig defines helpers for retrieving time-based configuration values.
type TimeConfig interface {
	// GetMillisecond retrieves the value associated with the given key as milliseconds.
	GetMillisecond(key string) time.Duration

	// GetSecond retrieves the value associated with the given key as seconds.
	// If the key does not exist or the value cannot be converted to an integer,
	// the implementation should handle it accordingly (e.g., return a default value).
	GetSecond(key string) time.Duration
}

// Config defines a set of methods for retrieving configuration values of various types.
// Implementations of this interface should handle the retrieval and type conversion
// of configuration data, providing default behaviors or error handling as necessary.
type Config interface {
	io.Closer
	TimeConfig

	// GetBool retrieves the configuration value associated with the given key as a bool.
	GetBool(key string) bool

	// GetInt retrieves the configuration value associated with the given key as an int.
	GetInt(key string) int

	// GetFloat64 retrieves the configuration value associated with the given key as a float64.
	GetFloat64(key string) float64

	// GetString retrieves the configuration value associated with the given key as a string.
	// If the key does not exist, the implementation should handle it accordingly.
	GetString(key string) string

	// GetBinary retrieves the configuration value associated with the given key as a byte slice.
	// Configuration value is stored as base64 encoded.
	GetBinary(key string) []byte

	// GetArray retrieves the configuration value associated with the given key as a slice of strings.
	// Configuration value is either a list or a string with format <element1>,<element2>,...
	GetArray(key string) []string

	// GetMap retrieves the configuration value associated with the given key as a map of strings to strings.
	// Configuration value is either a map or a string with format <key1>:<value1>,<key2>:<value2>,...
	GetMap(key string) map[string]string

	// Unmarshal decodes the subtree under key (or everything when key is empty)
	// into out, honoring `mapstructure` struct tags.
	Unmarshal(key string, out any) error
}
