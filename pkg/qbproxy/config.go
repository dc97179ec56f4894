package qbproxy

import (
	"os"
	"time"

	internalTypes "github.com/eshaffer321/qbproxy-go/internal/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML form of Options
type FileConfig struct {
	Endpoints struct {
		API     string `yaml:"api"`
		Account string `yaml:"account"`
	} `yaml:"endpoints"`

	StorageHost string `yaml:"storage_host"`

	Credentials struct {
		AppID      int    `yaml:"app_id"`
		AuthKey    string `yaml:"auth_key"`
		AuthSecret string `yaml:"auth_secret"`
		AccountKey string `yaml:"account_key"`
	} `yaml:"credentials"`

	Timeout            time.Duration              `yaml:"timeout"`
	Version            string                     `yaml:"version"`
	AddISOTime         bool                       `yaml:"add_iso_time"`
	MaxSessionRenewals int                        `yaml:"max_session_renewals"`
	Retry              *internalTypes.RetryConfig `yaml:"retry"`

	RateLimit *struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	SentryDSN string `yaml:"sentry_dsn"`
}

// LoadOptions reads Options from a YAML file
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return ParseOptions(data)
}

// ParseOptions parses Options from YAML
func ParseOptions(data []byte) (*Options, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return cfg.Options(), nil
}

// Options converts the file form into proxy Options
func (c *FileConfig) Options() *Options {
	opts := &Options{
		Endpoints: Endpoints{
			API:     c.Endpoints.API,
			Account: c.Endpoints.Account,
		},
		StorageHost: c.StorageHost,
		Credentials: Credentials{
			AppID:      c.Credentials.AppID,
			AuthKey:    c.Credentials.AuthKey,
			AuthSecret: c.Credentials.AuthSecret,
			AccountKey: c.Credentials.AccountKey,
		},
		Timeout:            c.Timeout,
		Version:            c.Version,
		AddISOTime:         c.AddISOTime,
		MaxSessionRenewals: c.MaxSessionRenewals,
		RetryConfig:        c.Retry,
		SentryDSN:          c.SentryDSN,
	}

	if c.RateLimit != nil && c.RateLimit.RPS > 0 {
		burst := c.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		opts.RateLimiter = NewRateLimiter(c.RateLimit.RPS, burst)
	}

	return opts
}
