// Package config loads the settings used to reach the engine daemon.
//
// Values come from an optional YAML file and are then overridden by the
// DOCKER_* environment variables the engine CLI understands.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/docker/go-connections/tlsconfig"
	"github.com/nczempin/enginestream/transport"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIVersion is the engine API version paths are prefixed with.
	DefaultAPIVersion = "1.41"

	defaultTimeout     = 30 * time.Second
	defaultDialTimeout = 10 * time.Second
)

// Environment variables read by ApplyEnv.
const (
	EnvHost       = "DOCKER_HOST"
	EnvTLSVerify  = "DOCKER_TLS_VERIFY"
	EnvCertPath   = "DOCKER_CERT_PATH"
	EnvAPIVersion = "DOCKER_API_VERSION"
)

// Config holds the client settings.
type Config struct {
	Host       string `yaml:"host"`
	TLSVerify  bool   `yaml:"tls_verify"`
	CertPath   string `yaml:"cert_path"`
	APIVersion string `yaml:"api_version"`
	// Timeout bounds ordinary request/response calls. Streams take their
	// own timeout from the caller.
	Timeout     time.Duration `yaml:"timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	IOURing     bool          `yaml:"io_uring"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	host := "unix://" + transport.DefaultUnixSocket
	if runtime.GOOS == "windows" {
		host = "npipe://" + transport.DefaultNamedPipe
	}
	return &Config{
		Host:        host,
		APIVersion:  DefaultAPIVersion,
		Timeout:     defaultTimeout,
		DialTimeout: defaultDialTimeout,
	}
}

// Load reads the YAML file at path on top of Default. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// ApplyEnv overrides c with the DOCKER_* variables that are set.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvTLSVerify); v != "" {
		// the engine CLI treats any non-empty value as enabled, except
		// explicit false values
		verify, err := strconv.ParseBool(v)
		c.TLSVerify = err != nil || verify
	}
	if v := os.Getenv(EnvCertPath); v != "" {
		c.CertPath = v
	}
	if v := os.Getenv(EnvAPIVersion); v != "" {
		c.APIVersion = v
	}
	return c.Validate()
}

// Validate checks that c can produce a Descriptor.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is not set")
	}
	if c.APIVersion == "" {
		return errors.New("api version is not set")
	}
	if c.Timeout < 0 || c.DialTimeout < 0 {
		return errors.Errorf("timeouts must not be negative (timeout %s, dial timeout %s)", c.Timeout, c.DialTimeout)
	}
	return nil
}

// Descriptor builds the transport descriptor for c, loading TLS material
// from CertPath when TLS is in use.
func (c *Config) Descriptor() (transport.Descriptor, error) {
	d, err := transport.ParseHost(c.Host)
	if err != nil {
		return transport.Descriptor{}, errors.Wrap(err, "parse host")
	}
	d.DialTimeout = c.DialTimeout
	d.RequestTimeout = c.Timeout
	d.IOURing = c.IOURing

	if d.Kind != transport.KindTCP && d.Kind != transport.KindTLS {
		return d, nil
	}
	if !c.TLSVerify && c.CertPath == "" {
		return d, nil
	}

	opts := tlsconfig.Options{InsecureSkipVerify: !c.TLSVerify}
	if c.CertPath != "" {
		opts.CertFile = filepath.Join(c.CertPath, "cert.pem")
		opts.KeyFile = filepath.Join(c.CertPath, "key.pem")
		if c.TLSVerify {
			opts.CAFile = filepath.Join(c.CertPath, "ca.pem")
		}
	}

	tlsCfg, err := tlsconfig.Client(opts)
	if err != nil {
		return transport.Descriptor{}, errors.Wrap(err, "load tls material")
	}
	return d.WithTLS(tlsCfg), nil
}
