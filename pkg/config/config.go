// Package config loads the service configuration from a YAML file with
// viper. String values may reference environment variables with
// ${VAR} syntax; any key can also be overridden through the
// VOICEBRIDGE_ environment prefix.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/curalink/voicebridge/pkg/transport/ws"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	BasePrompt  string `mapstructure:"base_prompt"`

	Server       ws.Config          `mapstructure:"server"`
	Vendors      VendorsConfig      `mapstructure:"vendors"`
	Session      SessionConfig      `mapstructure:"session"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Auth         AuthConfig         `mapstructure:"auth"`
}

// VendorConfig selects a provider by name; settings are free form and
// decoded by the provider factory.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	ASR VendorConfig `mapstructure:"asr"`
	LLM VendorConfig `mapstructure:"llm"`
}

type SessionConfig struct {
	ForwardInterim   bool          `mapstructure:"forward_interim"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	MaxResponseBytes int           `mapstructure:"max_response_bytes"`
}

type ConversationConfig struct {
	// Driver is "memory" or "redis".
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
	Redis  RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	// Mode is "static" or "none". "none" accepts every token and is
	// meant for local development only.
	Mode string `mapstructure:"mode"`
	// Tokens maps bearer token -> principal for static mode.
	Tokens map[string]string `mapstructure:"tokens"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VOICEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.path", "/stream")
	v.SetDefault("server.auth_timeout", "10s")
	v.SetDefault("session.forward_interim", true)
	v.SetDefault("session.grace_period", "5s")
	v.SetDefault("session.max_response_bytes", 32*1024)
	v.SetDefault("conversation.driver", "memory")
	v.SetDefault("conversation.ttl", "24h")
	v.SetDefault("auth.mode", "static")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.ASR.Provider) == "" {
		return fmt.Errorf("vendors.asr.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	switch c.Conversation.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("conversation.driver must be memory or redis, got %q", c.Conversation.Driver)
	}
	if c.Conversation.Driver == "redis" && strings.TrimSpace(c.Conversation.Redis.Addr) == "" {
		return fmt.Errorf("conversation.redis.addr is required for the redis driver")
	}
	switch c.Auth.Mode {
	case "static":
		if len(c.Auth.Tokens) == 0 {
			return fmt.Errorf("auth.tokens is required for static auth")
		}
	case "none":
	default:
		return fmt.Errorf("auth.mode must be static or none, got %q", c.Auth.Mode)
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.ASR.Settings = expandSettings(cfg.Vendors.ASR.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				expanded := os.ExpandEnv(v.MapIndex(key).String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
