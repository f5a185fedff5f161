package napcat

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Reconnection governs automatic retry of a dropped connection. The zero
// value means enabled with the defaults below; set Disabled to opt out.
type Reconnection struct {
	Disabled    bool          `mapstructure:"disabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

const (
	DefaultMaxAttempts    = 10
	DefaultReconnectDelay = 5000 * time.Millisecond
)

// Config holds construction parameters for a Client. Address the bot host
// either with a pre-built BaseURL ("ws://host:port") or with the
// Protocol/Host/Port triple.
type Config struct {
	BaseURL     string `mapstructure:"base_url"`
	Protocol    string `mapstructure:"protocol"` // "ws" or "wss"; default "ws"
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AccessToken string `mapstructure:"access_token"`

	// Split selects the dual-socket server variant: events arrive on
	// <base>/event while API traffic uses <base>/api. The default single
	// socket multiplexes both.
	Split bool `mapstructure:"split"`

	Reconnection Reconnection `mapstructure:"reconnection"`

	// Debug logs every frame sent and received.
	Debug bool `mapstructure:"debug"`
}

// LoadConfig reads a Config from a file (any format viper understands) with
// NAPCAT_-prefixed environment variables taking precedence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("protocol", "ws")
	v.SetDefault("reconnection.max_attempts", DefaultMaxAttempts)
	v.SetDefault("reconnection.delay", DefaultReconnectDelay)

	v.SetEnvPrefix("NAPCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys it already knows about, so
	// every Config key is bound explicitly.
	for _, key := range []string{
		"base_url", "protocol", "host", "port", "access_token", "split",
		"reconnection.disabled", "reconnection.max_attempts",
		"reconnection.delay", "debug",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true // env values arrive as strings
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate fails fast on missing addressing fields.
func (c *Config) validate() error {
	if c.BaseURL == "" {
		if c.Host == "" {
			return errors.New("config: either base_url or host is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("config: invalid port %d", c.Port)
		}
	} else {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("config: invalid base_url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("config: base_url scheme must be ws or wss, got %q", u.Scheme)
		}
	}
	if c.Protocol != "" && c.Protocol != "ws" && c.Protocol != "wss" {
		return fmt.Errorf("config: protocol must be ws or wss, got %q", c.Protocol)
	}
	if c.Reconnection.MaxAttempts < 0 {
		return errors.New("config: reconnection.max_attempts must not be negative")
	}
	if c.Reconnection.Delay < 0 {
		return errors.New("config: reconnection.delay must not be negative")
	}
	return nil
}

// setDefaults fills unset fields before the client is wired up.
func (c *Config) setDefaults() {
	if c.Protocol == "" {
		c.Protocol = "ws"
	}
	if c.Reconnection.MaxAttempts == 0 {
		c.Reconnection.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reconnection.Delay == 0 {
		c.Reconnection.Delay = DefaultReconnectDelay
	}
}

// endpoint builds the socket URL for a channel path ("" for the multiplexed
// socket, "/event" or "/api" in split mode), appending the access token as
// a query parameter.
func (c *Config) endpoint(path string) string {
	base := c.BaseURL
	if base == "" {
		base = fmt.Sprintf("%s://%s:%d", c.Protocol, c.Host, c.Port)
	}
	base = strings.TrimRight(base, "/") + path
	if c.AccessToken != "" {
		base += "?access_token=" + url.QueryEscape(c.AccessToken)
	}
	return base
}
