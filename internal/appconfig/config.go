package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/snipforge/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	HTTP          HTTPConfig     `mapstructure:"http" yaml:"http"`
	Auth          AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Quota         QuotaConfig    `mapstructure:"quota" yaml:"quota"`
	Session       SessionConfig  `mapstructure:"session" yaml:"session"`
	Provider      ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Share         ShareConfig    `mapstructure:"share" yaml:"share"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// BaseURL is the external URL used when rendering share links and
	// join QR codes, e.g. https://snips.example.com.
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// AuthConfig configures the workshop password store.
type AuthConfig struct {
	PasswordFile string `mapstructure:"password_file" yaml:"password_file"`
	// TOTPIssuer names the service in authenticator apps for rotating
	// passwords.
	TOTPIssuer string `mapstructure:"totp_issuer" yaml:"totp_issuer"`
}

// QuotaConfig controls the per-visitor generation allowance.
type QuotaConfig struct {
	Uses int `mapstructure:"uses" yaml:"uses"`
}

// SessionConfig controls session controller pacing.
type SessionConfig struct {
	FlushIntervalMS int `mapstructure:"flush_interval_ms" yaml:"flush_interval_ms"`
	SettleDelayMS   int `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms"`
}

// ProviderConfig selects the generation provider backend.
type ProviderConfig struct {
	// Mode is "mock" for the deterministic local provider.
	Mode string `mapstructure:"mode" yaml:"mode"`
	// DelayMS is the mock provider's inter-event pause.
	DelayMS int `mapstructure:"delay_ms" yaml:"delay_ms"`
}

// ShareConfig configures snippet publishing.
type ShareConfig struct {
	KeyStorePath string `mapstructure:"key_store_path" yaml:"key_store_path"`
	Dir          string `mapstructure:"dir" yaml:"dir"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	stateDir := filepath.Join(home, ".snipforge", "state")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		HTTP: HTTPConfig{
			Addr:     ":27490",
			BaseURL:  "",
			BasePath: "",
		},
		Auth: AuthConfig{
			PasswordFile: filepath.Join(home, ".snipforge", "passwords.json"),
			TOTPIssuer:   "snipforge",
		},
		Quota: QuotaConfig{
			Uses: schema.DefaultQuotaUses,
		},
		Session: SessionConfig{
			FlushIntervalMS: int(schema.DefaultFlushInterval.Milliseconds()),
			SettleDelayMS:   int(schema.DefaultSettleDelay.Milliseconds()),
		},
		Provider: ProviderConfig{
			Mode:    "mock",
			DelayMS: 30,
		},
		Share: ShareConfig{
			KeyStorePath: filepath.Join(stateDir, "share", "keys.bundle"),
			Dir:          filepath.Join(stateDir, "share", "snippets"),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".snipforge", "config.yaml"), nil
}
