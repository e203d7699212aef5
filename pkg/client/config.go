package client

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of the environment variables read by LoadConfig.
	EnvPrefix = "FILECLI"

	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8020
	DefaultDialTimeout     = 5 * time.Second
	DefaultResponseTimeout = 5 * time.Second
	DefaultIOTimeout       = 30 * time.Second
)

// Config configures client connections.
type Config struct {
	// Address is the server host:port.
	Address string `mapstructure:"address" validate:"required"`

	// DialTimeout bounds establishing the TCP connection.
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"min=0"`

	// ResponseTimeout bounds each header exchange, including the TEST
	// liveness probe.
	ResponseTimeout time.Duration `mapstructure:"response_timeout" validate:"min=0"`

	// IOTimeout bounds each body chunk. It is pushed forward per chunk, so
	// large transfers are not limited as a whole.
	IOTimeout time.Duration `mapstructure:"io_timeout" validate:"min=0"`
}

var validate = validator.New()

// DefaultConfig returns a Config for the default local server.
func DefaultConfig() Config {
	return Config{
		Address:         net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultPort)),
		DialTimeout:     DefaultDialTimeout,
		ResponseTimeout: DefaultResponseTimeout,
		IOTimeout:       DefaultIOTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = DefaultIOTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("client config: %s failed on '%s' (value: %v)", errs[0].Field(), errs[0].Tag(), errs[0].Value())
		}
		return err
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("client config: address %q: %w", c.Address, err)
	}
	return nil
}

// flagKeys maps configuration keys to the flag names cmd/fileclient defines.
var flagKeys = map[string]string{
	"host":             "host",
	"port":             "port",
	"dial_timeout":     "dial-timeout",
	"response_timeout": "timeout",
	"io_timeout":       "io-timeout",
}

// LoadConfig builds a Config from flags, FILECLI_* environment variables
// and defaults, in that order of precedence. Flags are only consulted when
// set on the command line. fs may be nil.
func LoadConfig(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("dial_timeout", DefaultDialTimeout)
	v.SetDefault("response_timeout", DefaultResponseTimeout)
	v.SetDefault("io_timeout", DefaultIOTimeout)

	if fs != nil {
		for key, name := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	port := v.GetInt("port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("client config: invalid port %d", port)
	}

	cfg := Config{
		Address:         net.JoinHostPort(v.GetString("host"), strconv.Itoa(port)),
		DialTimeout:     v.GetDuration("dial_timeout"),
		ResponseTimeout: v.GetDuration("response_timeout"),
		IOTimeout:       v.GetDuration("io_timeout"),
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
