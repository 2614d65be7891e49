// Package config loads dqprobe settings from flags, environment and an
// optional config file through viper.
//
// Precedence (highest first): bound flags, DQPROBE_* environment variables,
// the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"

	"dqprobe/internal/mask"
)

// ErrInvalid marks configuration values that fail validation.
var ErrInvalid = errors.New("config: invalid")

// EnvPrefix is prepended to every environment key, e.g. DQPROBE_PROFILE_GRAIN.
const EnvPrefix = "DQPROBE"

// Config is the complete runtime configuration.
type Config struct {
	Log       Log     `mapstructure:"log"`
	Profile   Profile `mapstructure:"profile"`
	Sink      Sink    `mapstructure:"sink"`
	Datadog   Datadog `mapstructure:"datadog"`
	Countries string  `mapstructure:"countries"`
}

// Log selects the zap level and encoding.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Profile holds the profiling and enhancement knobs.
type Profile struct {
	Grain              string `mapstructure:"grain"`
	Delimiter          string `mapstructure:"delimiter"`
	MaxLen             int    `mapstructure:"maxlen"`
	Format             string `mapstructure:"format"`
	PathDepth          int    `mapstructure:"pathdepth"`
	RemoveArrayNumbers bool   `mapstructure:"remove_array_numbers"`
	HeaderRow          int    `mapstructure:"header_row"`
	Workers            int    `mapstructure:"workers"`
	Rules              bool   `mapstructure:"rules"`
	ExtractArray       string `mapstructure:"extract_array"`

	// HTMLTable selects the n-th <table> (0-based) when the input is HTML.
	HTMLTable int `mapstructure:"html_table"`
	// HTMLRecord, when set, switches HTML input to record mode: one JSON
	// line per element matching the selector, with HTMLFields mappings.
	HTMLRecord string   `mapstructure:"html_record"`
	HTMLFields []string `mapstructure:"html_fields"`
}

// Sink configures the optional report table.
type Sink struct {
	Kind  string `mapstructure:"kind"`
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// Datadog configures the optional metrics backend.
type Datadog struct {
	Enabled    bool          `mapstructure:"enabled"`
	Job        string        `mapstructure:"job"`
	Tags       string        `mapstructure:"tags"`
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

// SetDefaults registers defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("profile.grain", mask.DefaultGrain.String())
	v.SetDefault("profile.delimiter", "|")
	v.SetDefault("profile.maxlen", 32)
	v.SetDefault("profile.format", "auto")
	v.SetDefault("profile.pathdepth", 9)
	v.SetDefault("profile.remove_array_numbers", false)
	v.SetDefault("profile.header_row", 0)
	v.SetDefault("profile.workers", 0)
	v.SetDefault("profile.rules", false)
	v.SetDefault("profile.extract_array", "")
	v.SetDefault("profile.html_table", 0)
	v.SetDefault("profile.html_record", "")
	v.SetDefault("profile.html_fields", []string{})

	v.SetDefault("sink.kind", "")
	v.SetDefault("sink.dsn", "")
	v.SetDefault("sink.table", "dq_report")

	v.SetDefault("datadog.enabled", false)
	v.SetDefault("datadog.job", "dqprobe")
	v.SetDefault("datadog.tags", "")
	v.SetDefault("datadog.flush_every", time.Minute)

	v.SetDefault("countries", "")
}

// NewViper returns a viper instance with defaults and environment binding.
// When file is non-empty it is read as the config file.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := Configure(v, file); err != nil {
		return nil, err
	}
	return v, nil
}

// Configure enables DQPROBE_* environment lookups on v and reads file when
// it is non-empty. Callers that bind flags create v themselves and call
// Configure once flags are parsed.
func Configure(v *viper.Viper, file string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return nil
}

// Load decodes v into a Config, resolves the sink DSN and validates it.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if c.Sink.Kind != "" {
		c.Sink.Kind = NormalizeBackend(c.Sink.Kind)
		dsn, ok, err := ResolveDSN(c.Sink.Kind, c.Sink.DSN, v.GetString)
		if err != nil {
			return Config{}, err
		}
		if ok {
			c.Sink.DSN = dsn
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges. Errors wrap ErrInvalid.
func (c Config) Validate() error {
	p := c.Profile
	if _, ok := mask.ParseGrain(p.Grain); !ok {
		return fmt.Errorf("%w: grain %q (want H, L, HU or LU)", ErrInvalid, p.Grain)
	}
	if _, err := c.DelimiterRune(); err != nil {
		return err
	}
	switch strings.ToLower(p.Format) {
	case "auto", "tabular", "json", "html":
	default:
		return fmt.Errorf("%w: format %q", ErrInvalid, p.Format)
	}
	if p.MaxLen < 0 {
		return fmt.Errorf("%w: maxlen %d", ErrInvalid, p.MaxLen)
	}
	if p.PathDepth < 0 {
		return fmt.Errorf("%w: pathdepth %d", ErrInvalid, p.PathDepth)
	}
	if p.HeaderRow < 0 {
		return fmt.Errorf("%w: header_row %d", ErrInvalid, p.HeaderRow)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, p.Workers)
	}
	if p.HTMLTable < 0 {
		return fmt.Errorf("%w: html_table %d", ErrInvalid, p.HTMLTable)
	}
	switch c.Sink.Kind {
	case "":
	case "sqlite", "postgres", "mssql":
		if c.Sink.DSN == "" {
			return fmt.Errorf("%w: sink %s needs a dsn", ErrInvalid, c.Sink.Kind)
		}
		if strings.TrimSpace(c.Sink.Table) == "" {
			return fmt.Errorf("%w: sink table is empty", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: sink kind %q", ErrInvalid, c.Sink.Kind)
	}
	return nil
}

// Grain returns the parsed profile grain.
func (c Config) Grain() mask.Grain {
	g, ok := mask.ParseGrain(c.Profile.Grain)
	if !ok {
		return mask.DefaultGrain
	}
	return g
}

// DelimiterRune returns the single-rune delimiter. "tab" and `\t` name a tab.
func (c Config) DelimiterRune() (rune, error) {
	d := c.Profile.Delimiter
	switch strings.ToLower(d) {
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(d) != 1 {
		return 0, fmt.Errorf("%w: delimiter %q must be one character", ErrInvalid, d)
	}
	r, _ := utf8.DecodeRuneInString(d)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("%w: delimiter %q", ErrInvalid, d)
	}
	return r, nil
}
