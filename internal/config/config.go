// Package config loads host and engine settings from defaults, an optional
// YAML file named by CONFIG_FILE and environment variables, in that order.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/efreitasn/marketsim/internal/commission"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/fault"
	"github.com/efreitasn/marketsim/internal/ledger"
)

// Engine holds the settings of one simulation engine. Scenario scripts and
// host sessions use the same shape.
type Engine struct {
	VerifyMode            bool              `yaml:"verify_mode" json:"verify_mode"`
	Fault                 fault.Config      `yaml:"fault" json:"fault"`
	AllowShortSelling     bool              `yaml:"allow_short_selling" json:"allow_short_selling"`
	CheckMargin           bool              `yaml:"check_margin" json:"check_margin"`
	AveragePricePrecision int32             `yaml:"average_price_precision" json:"average_price_precision"`
	Securities            []string          `yaml:"securities" json:"securities"`
	Commission            []commission.Rule `yaml:"commission" json:"commission"`
}

// Validate checks fault bounds, security ids and commission rules.
func (e *Engine) Validate() error {
	_, err := e.Options()
	return err
}

// Options builds engine options. Output and Logger are left to the caller.
func (e *Engine) Options() (engine.Options, error) {
	if err := e.Fault.Validate(); err != nil {
		return engine.Options{}, errors.Wrap(err, "fault")
	}
	if e.AveragePricePrecision < 0 || e.AveragePricePrecision > domain.MaxDecimalPlaces {
		return engine.Options{}, errors.Errorf("average price precision %d must be within [0, %d]", e.AveragePricePrecision, domain.MaxDecimalPlaces)
	}
	eval, err := commission.Build(e.Commission)
	if err != nil {
		return engine.Options{}, err
	}
	securities := make([]domain.SecurityID, 0, len(e.Securities))
	for _, s := range e.Securities {
		id, err := domain.ParseSecurityID(s)
		if err != nil {
			return engine.Options{}, errors.Wrap(err, "securities")
		}
		if id.IsCash() {
			return engine.Options{}, errors.Errorf("securities: %s is not tradable", id)
		}
		securities = append(securities, id)
	}
	return engine.Options{
		VerifyMode: e.VerifyMode,
		Fault:      e.Fault,
		Ledger: ledger.Options{
			AllowShortSelling:     e.AllowShortSelling,
			CheckMargin:           e.CheckMargin,
			AveragePricePrecision: e.AveragePricePrecision,
		},
		Securities: securities,
		Commission: eval,
	}, nil
}

// Config holds all runtime configuration for the simulation host.
type Config struct {
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	LogFile         string        `yaml:"log_file"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Engine          Engine        `yaml:"engine"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:            8080,
		LogLevel:        "info",
		FlushInterval:   100 * time.Millisecond,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Engine: Engine{
			AveragePricePrecision: ledger.DefaultAveragePricePrecision,
		},
	}
}

// Load reads configuration from the optional CONFIG_FILE and environment
// variables, applies defaults, and validates values. It returns an error
// for any invalid value.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value of cfg.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("invalid PORT: %d out of range", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return errors.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.FlushInterval <= 0 {
		return errors.Errorf("invalid FLUSH_INTERVAL: %s must be positive", c.FlushInterval)
	}
	if err := c.Engine.Validate(); err != nil {
		return errors.Wrap(err, "invalid engine settings")
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	return nil
}

func (c *Config) loadEnv() error {
	var err error

	if c.Port, err = getInt("PORT", c.Port); err != nil {
		return errors.Wrap(err, "invalid PORT")
	}
	c.LogLevel = getStr("LOG_LEVEL", c.LogLevel)
	c.LogFile = getStr("LOG_FILE", c.LogFile)

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"FLUSH_INTERVAL", &c.FlushInterval},
		{"READ_TIMEOUT", &c.ReadTimeout},
		{"WRITE_TIMEOUT", &c.WriteTimeout},
		{"IDLE_TIMEOUT", &c.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
		{"LATENCY_MIN", &c.Engine.Fault.LatencyMin},
		{"LATENCY_MAX", &c.Engine.Fault.LatencyMax},
	} {
		if *d.dst, err = getDuration(d.key, *d.dst); err != nil {
			return errors.Wrapf(err, "invalid %s", d.key)
		}
	}

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"VERIFY_MODE", &c.Engine.VerifyMode},
		{"ALLOW_SHORT_SELLING", &c.Engine.AllowShortSelling},
		{"CHECK_MARGIN", &c.Engine.CheckMargin},
	} {
		if *b.dst, err = getBool(b.key, *b.dst); err != nil {
			return errors.Wrapf(err, "invalid %s", b.key)
		}
	}

	if c.Engine.Fault.RejectProbability, err = getFloat("REJECT_PROBABILITY", c.Engine.Fault.RejectProbability); err != nil {
		return errors.Wrap(err, "invalid REJECT_PROBABILITY")
	}
	if c.Engine.Fault.Seed, err = getInt64("FAULT_SEED", c.Engine.Fault.Seed); err != nil {
		return errors.Wrap(err, "invalid FAULT_SEED")
	}
	precision, err := getInt("AVERAGE_PRICE_PRECISION", int(c.Engine.AveragePricePrecision))
	if err != nil {
		return errors.Wrap(err, "invalid AVERAGE_PRICE_PRECISION")
	}
	c.Engine.AveragePricePrecision = int32(precision)

	if v := os.Getenv("SECURITIES"); v != "" {
		c.Engine.Securities = splitList(v)
	}

	// Env commission settings add rules on top of those from the file.
	for _, r := range []struct {
		key      string
		ruleType string
	}{
		{"COMMISSION_PER_TRADE", commission.RuleTypePerTrade},
		{"COMMISSION_PER_VOLUME", commission.RuleTypePerVolume},
		{"COMMISSION_TURNOVER_RATE", commission.RuleTypeTurnover},
	} {
		if v := os.Getenv(r.key); v != "" {
			c.Engine.Commission = append(c.Engine.Commission, commission.Rule{Type: r.ruleType, Value: v})
		}
	}
	return nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
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

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
