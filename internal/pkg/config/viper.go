package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ErrConfigTypeRequired is returned by NewViperFromBytes when no format is given.
var ErrConfigTypeRequired = errors.New("config type is required")

// Viper is a Config implementation backed by github.com/spf13/viper.
type Viper struct {
	v *viper.Viper
}

// Option customizes NewViper.
type Option func(*options)

type options struct {
	watch     bool
	envPrefix string
}

// WithWatch reloads the file on change through fsnotify.
func WithWatch() Option {
	return func(o *options) { o.watch = true }
}

// WithEnv lets environment variables override file values.
// A key "app.mode" is read from PREFIX_APP_MODE.
func WithEnv(prefix string) Option {
	return func(o *options) { o.envPrefix = prefix }
}

// NewViper loads configuration from the given file path and returns a Viper-backed Config.
//
// The config file type is inferred by Viper from the filename extension.
func NewViper(pathFile string, opts ...Option) (*Viper, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()

	filename := path.Base(pathFile)
	ext := path.Ext(filename)

	v.AddConfigPath(path.Dir(pathFile))
	v.SetConfigName(strings.TrimSuffix(filename, ext))
	if ext != "" {
		v.SetConfigType(strings.TrimPrefix(ext, "."))
	}

	if o.envPrefix != "" {
		v.SetEnvPrefix(o.envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", pathFile, err)
	}

	if o.watch {
		v.OnConfigChange(func(_ fsnotify.Event) {
			if err := v.ReadInConfig(); err != nil {
				slog.Error("config reload failed", "path", pathFile, "error", err)
				return
			}
			slog.Info("config success reloaded", "path", pathFile)
		})
		v.WatchConfig()
	}

	return &Viper{v: v}, nil
}

// NewViperFromBytes loads configuration from memory and returns a Viper-backed Config.
// configType should be a format supported by Viper (e.g. "yaml", "json", "toml").
func NewViperFromBytes(configType string, data []byte) (*Viper, error) {
	if strings.TrimSpace(configType) == "" {
		return nil, ErrConfigTypeRequired
	}

	v := viper.New()
	v.SetConfigType(configType)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return &Viper{v: v}, nil
}

// LoadFile reads a single document (e.g. a backend sender.json) and decodes it into out.
func LoadFile(pathFile string, out any) error {
	vc, err := NewViper(pathFile)
	if err != nil {
		return err
	}
	return vc.Unmarshal("", out)
}

// GetInt returns the value for key as int.
func (vc *Viper) GetInt(key string) int {
	return vc.v.GetInt(key)
}

// GetBool returns the value for key as bool.
func (vc *Viper) GetBool(key string) bool {
	return vc.v.GetBool(key)
}

// GetFloat64 returns the value for key as float64.
func (vc *Viper) GetFloat64(key string) float64 {
	return vc.v.GetFloat64(key)
}

// GetMillisecond returns the value for key as milliseconds.
func (vc *Viper) GetMillisecond(key string) time.Duration {
	return time.Duration(vc.v.GetInt64(key)) * time.Millisecond
}

// GetSecond returns the value for key as seconds.
func (vc *Viper) GetSecond(key string) time.Duration {
	return time.Duration(vc.v.GetInt64(key)) * time.Second
}

// GetString returns the value for key as string.
func (vc *Viper) GetString(key string) string {
	return vc.v.GetString(key)
}

// GetBinary returns the value for key decoded from base64.
func (vc *Viper) GetBinary(key string) []byte {
	data, err := base64.StdEncoding.DecodeString(vc.v.GetString(key))
	if err != nil {
		return nil
	}

	return data
}

// GetArray returns the value for key. Lists are returned as-is and strings are
// split by commas. Blank elements are dropped.
func (vc *Viper) GetArray(key string) []string {
	var raw []string
	if _, ok := vc.v.Get(key).([]any); ok {
		raw = vc.v.GetStringSlice(key)
	} else {
		raw = strings.Split(vc.v.GetString(key), ",")
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GetMap returns the value for key. Maps are returned as-is and strings are
// parsed from "k:v,k:v" pairs.
func (vc *Viper) GetMap(key string) map[string]string {
	if _, ok := vc.v.Get(key).(map[string]any); ok {
		return vc.v.GetStringMapString(key)
	}

	pairs := strings.Split(vc.v.GetString(key), ",")
	m := make(map[string]string)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) == 2 {
			m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	return m
}

// Unmarshal decodes the subtree under key into out.
func (vc *Viper) Unmarshal(key string, out any) error {
	if key == "" {
		return vc.v.Unmarshal(out)
	}
	return vc.v.UnmarshalKey(key, out)
}

// Close implements io.Closer for interface compatibility.
func (vc *Viper) Close() error {
	return nil
}
