// Package config loads recomlive settings from flags, an optional YAML file
// and the environment.
//
// Every key can be set through RECOMMENDER_<KEY> (dots become underscores).
// A few historical names are accepted as well:
//
//	RECOMMENDER_TORCH_DEVICE  device
//	CARBON_HOST               carbon.host
//	CARBON_PORT               carbon.port
package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "RECOMMENDER"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full server configuration.
type Config struct {
	DocsLimit    int `mapstructure:"docs_limit" validate:"min=1"`
	PersonsLimit int `mapstructure:"persons_limit" validate:"min=1"`
	RecsLimit    int `mapstructure:"recs_limit" validate:"min=1"`

	Device string `mapstructure:"device" validate:"required"`

	Host       string `mapstructure:"host" validate:"required"`
	Port       int    `mapstructure:"port" validate:"min=1,max=65535"`
	QueueLimit int    `mapstructure:"queue_limit" validate:"min=1"`

	// StatsInterval enables the periodic stats job when positive.
	StatsInterval time.Duration `mapstructure:"stats_interval" validate:"min=0"`
	// MetricsAddr enables the HTTP endpoint (/metrics, /healthz, /stats).
	MetricsAddr string `mapstructure:"metrics_addr"`

	Telemetry  string           `mapstructure:"telemetry" validate:"oneof=none graphite prometheus cloudwatch"`
	Carbon     CarbonConfig     `mapstructure:"carbon"`
	CloudWatch CloudWatchConfig `mapstructure:"cloudwatch"`

	Model ModelConfig `mapstructure:"model"`
	Log   LogConfig   `mapstructure:"log"`
}

// CarbonConfig addresses the Graphite relay.
type CarbonConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// CloudWatchConfig configures the CloudWatch sink.
type CloudWatchConfig struct {
	Namespace string        `mapstructure:"namespace" validate:"required"`
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
	Profile   string        `mapstructure:"profile"`
	Region    string        `mapstructure:"region"`
}

// ModelConfig sizes the predictor.
type ModelConfig struct {
	EmbeddingDim int     `mapstructure:"embedding_dim" validate:"min=1"`
	HiddenDim    int     `mapstructure:"hidden_dim" validate:"min=1"`
	LearningRate float64 `mapstructure:"learning_rate" validate:"gt=0"`
	ClipNorm     float64 `mapstructure:"clip_norm" validate:"gt=0"`
	Dropout      float64 `mapstructure:"dropout" validate:"gte=0,lt=1"`
}

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Addr is the UDP listen address.
func (c *Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// CarbonAddr is the Graphite relay address.
func (c *Config) CarbonAddr() string {
	return net.JoinHostPort(c.Carbon.Host, strconv.Itoa(c.Carbon.Port))
}

var defaults = map[string]any{
	"docs_limit":    2000,
	"persons_limit": 2000,
	"recs_limit":    5,
	"device":        "cpu",
	"host":          "0.0.0.0",
	"port":          25000,
	"queue_limit":   10000,

	"stats_interval": time.Duration(0),
	"metrics_addr":   "",

	"telemetry":            "graphite",
	"carbon.host":          "carbon",
	"carbon.port":          2003,
	"cloudwatch.namespace": "recomlive",
	"cloudwatch.interval":  60 * time.Second,
	"cloudwatch.profile":   "",
	"cloudwatch.region":    "",

	"model.embedding_dim": 320,
	"model.hidden_dim":    128,
	"model.learning_rate": 0.05,
	"model.clip_norm":     5.0,
	"model.dropout":       0.1,

	"log.level":  "info",
	"log.format": "json",
}

// legacyEnv maps keys to extra environment names, checked in order.
var legacyEnv = map[string][]string{
	"device":      {"RECOMMENDER_TORCH_DEVICE", "RECOMMENDER_DEVICE"},
	"carbon.host": {"CARBON_HOST", "RECOMMENDER_CARBON_HOST"},
	"carbon.port": {"CARBON_PORT", "RECOMMENDER_CARBON_PORT"},
}

// NewViper returns a viper instance with defaults and environment binding
// in place. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for k, names := range legacyEnv {
		_ = v.BindEnv(append([]string{k}, names...)...)
	}
	return v
}

// Load reads file (if non-empty) into v, decodes and validates the result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration with no file, flags or environment.
func Default() Config {
	cfg, err := Load(NewViper(), "")
	if err != nil {
		panic(err)
	}
	return cfg
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			return f.Tag.Get("mapstructure")
		})
	})
	return validate
}

// Validate checks every field constraint and reports all failures at once.
func (c *Config) Validate() error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s (got %v)", key, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
