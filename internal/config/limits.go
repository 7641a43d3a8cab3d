package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LimitsConfig carries platform-wide default quotas. A group's own settings
// override these; the holder only supplies the fallback when a group has no
// limit configured for a type.
type LimitsConfig struct {
	// DefaultMaxPerType applies to any thing type without an explicit entry.
	DefaultMaxPerType int `mapstructure:"defaultMaxPerType"`
	// MaxPerType maps thing type to its default per-group cap. Zero or a
	// missing entry means unlimited.
	MaxPerType map[string]int `mapstructure:"maxPerType"`
	// MaxGroupDepth bounds the tenant hierarchy.
	MaxGroupDepth int `mapstructure:"maxGroupDepth"`
}

func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		DefaultMaxPerType: 0,
		MaxPerType:        map[string]int{},
		MaxGroupDepth:     16,
	}
}

// LimitsHolder exposes the current limits config and hot-reloads it when the
// backing file changes.
type LimitsHolder struct {
	current atomic.Value // holds LimitsConfig
}

func NewLimitsHolder() (*LimitsHolder, error) {
	v := viper.New()

	v.SetConfigName("limits")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/ontology/config")
	v.AddConfigPath("/etc/ontology")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ONTOLOGY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg := DefaultLimitsConfig()
	if err := v.UnmarshalKey("limits", &cfg); err != nil {
		return nil, err
	}
	if err := validateLimitsConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LimitsHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := DefaultLimitsConfig()
			if err := v.UnmarshalKey("limits", &updated); err != nil {
				log.Printf("[limits-config] reload failed: %v", err)
				return
			}
			if err := validateLimitsConfig(updated); err != nil {
				log.Printf("[limits-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[limits-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticLimitsHolder wraps a fixed config with no file watching. Tests
// and embedded callers use it.
func NewStaticLimitsHolder(cfg LimitsConfig) *LimitsHolder {
	holder := &LimitsHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *LimitsHolder) Get() LimitsConfig {
	return h.current.Load().(LimitsConfig)
}

// MaxForType resolves the default cap for a thing type. Zero means unlimited.
func (c LimitsConfig) MaxForType(thingType string) int {
	if v, ok := c.MaxPerType[thingType]; ok {
		return v
	}
	return c.DefaultMaxPerType
}

func validateLimitsConfig(cfg LimitsConfig) error {
	if cfg.MaxGroupDepth <= 0 {
		return errors.New("limits.maxGroupDepth must be positive")
	}
	if cfg.DefaultMaxPerType < 0 {
		return errors.New("limits.defaultMaxPerType cannot be negative")
	}
	for name, max := range cfg.MaxPerType {
		if max < 0 {
			return errors.New("limits.maxPerType." + name + " cannot be negative")
		}
	}
	return nil
}
