// Package config loads the process-wide configuration snapshot. The snapshot
// is read once at startup, validated eagerly, and never re-read during
// request handling; missing deployment configuration surfaces as a startup
// failure instead of a mid-request fault.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"xlsmconv/internal/convert"
)

// SharedKey is the typed form of an Azure storage connection string: the
// pieces needed to authenticate uploads and sign SAS URLs with the account
// key.
type SharedKey struct {
	AccountName string
	AccountKey  string
	Endpoint    string
}

// Config is the immutable deployment configuration.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string
	// Container is the output blob container name.
	Container string
	// NamingPolicy selects output object naming: "timestamped" or "flat".
	NamingPolicy convert.NamingPolicy
	// NamePrefix, when non-empty, is prepended folder-style to every
	// derived object name.
	NamePrefix string
	// LinkTTL bounds the lifetime of issued signed read URLs.
	LinkTTL time.Duration
	// FetchTimeout bounds the whole source download.
	FetchTimeout time.Duration
	// EnableCORS turns on permissive CORS on the HTTP surface.
	EnableCORS bool

	// ConnectionString, when set, selects shared-key authentication.
	ConnectionString string
	// AccountURL is the storage account endpoint used with managed
	// identity, e.g. https://acct.blob.core.windows.net.
	AccountURL string
	// UseManagedIdentity selects the ambient-credential path for storage
	// access and user-delegation SAS signing.
	UseManagedIdentity bool

	sharedKey *SharedKey
}

// Load reads configuration from the environment (prefix XLSMCONV_) and an
// optional xlsmconv.yaml in the working directory, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("XLSMCONV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("container", "converted")
	v.SetDefault("naming_policy", string(convert.NamingTimestamped))
	v.SetDefault("name_prefix", "")
	v.SetDefault("link_ttl", "60m")
	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("enable_cors", false)
	v.SetDefault("connection_string", "")
	v.SetDefault("account_url", "")
	v.SetDefault("use_managed_identity", false)

	v.SetConfigName("xlsmconv")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:         v.GetString("listen_addr"),
		Container:          v.GetString("container"),
		NamingPolicy:       convert.NamingPolicy(v.GetString("naming_policy")),
		NamePrefix:         strings.Trim(v.GetString("name_prefix"), "/"),
		LinkTTL:            v.GetDuration("link_ttl"),
		FetchTimeout:       v.GetDuration("fetch_timeout"),
		EnableCORS:         v.GetBool("enable_cors"),
		ConnectionString:   v.GetString("connection_string"),
		AccountURL:         v.GetString("account_url"),
		UseManagedIdentity: v.GetBool("use_managed_identity"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the snapshot and resolves the storage credential. All
// configuration faults surface here, at startup.
func (c *Config) Validate() error {
	if c.Container == "" {
		return errors.New("output container name is required")
	}
	if !convert.ValidPolicy(c.NamingPolicy) {
		return fmt.Errorf("unknown naming policy %q (want %q or %q)",
			c.NamingPolicy, convert.NamingTimestamped, convert.NamingFlat)
	}
	if c.LinkTTL <= 0 {
		return errors.New("link TTL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}

	switch {
	case c.ConnectionString != "":
		key, err := ParseConnectionString(c.ConnectionString)
		if err != nil {
			return fmt.Errorf("parsing storage connection string: %w", err)
		}
		c.sharedKey = &key
	case c.UseManagedIdentity:
		if c.AccountURL == "" {
			return errors.New("account URL is required with managed identity")
		}
	default:
		return errors.New("no storage credential configured: set a connection string or enable managed identity")
	}
	return nil
}

// SharedKey returns the parsed shared-key credential, if the deployment is
// configured with one.
func (c *Config) SharedKey() (SharedKey, bool) {
	if c.sharedKey == nil {
		return SharedKey{}, false
	}
	return *c.sharedKey, true
}

// ParseConnectionString extracts the account name, key, and blob endpoint
// from an Azure storage connection string.
func ParseConnectionString(s string) (SharedKey, error) {
	var key SharedKey
	protocol := "https"
	suffix := "core.windows.net"

	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return SharedKey{}, fmt.Errorf("malformed connection string segment %q", name)
		}
		switch name {
		case "AccountName":
			key.AccountName = value
		case "AccountKey":
			key.AccountKey = value
		case "BlobEndpoint":
			key.Endpoint = value
		case "DefaultEndpointsProtocol":
			protocol = value
		case "EndpointSuffix":
			suffix = value
		}
	}

	if key.AccountName == "" || key.AccountKey == "" {
		return SharedKey{}, errors.New("connection string is missing AccountName or AccountKey")
	}
	if key.Endpoint == "" {
		key.Endpoint = fmt.Sprintf("%s://%s.blob.%s", protocol, key.AccountName, suffix)
	}
	return key, nil
}
