package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syncdrive/encryptd/internal/storage"
)

// Config holds the complete engine configuration.
type Config struct {
	LogLevel   string `yaml:"log_level"`
	InstanceID string `yaml:"instance_id"`

	Encryption EncryptionConfig `yaml:"encryption"`
	Backend    BackendConfig    `yaml:"backend"`
	Module     ModuleConfig     `yaml:"module"`
	Mounts     []MountConfig    `yaml:"mounts"`
	Admin      AdminConfig      `yaml:"admin"`
	Cache      CacheConfig      `yaml:"cache"`
	Audit      AuditConfig      `yaml:"audit"`
	Tracing    TracingConfig    `yaml:"tracing"`
	StateFile  string           `yaml:"state_file"`
}

// EncryptionConfig holds the engine-level switches.
type EncryptionConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Installed      bool   `yaml:"installed"`
	KeyStorageRoot string `yaml:"key_storage_root"` // empty string is the default root
}

// BackendConfig selects the storage backend the virtual tree lives on.
type BackendConfig struct {
	Type  string           `yaml:"type"` // local, s3
	Local LocalConfig      `yaml:"local"`
	S3    storage.S3Config `yaml:"s3"`
}

// LocalConfig holds local disk backend settings.
type LocalConfig struct {
	Root string `yaml:"root"`
}

// ModuleConfig configures the bundled default encryption module.
type ModuleConfig struct {
	Cipher     string `yaml:"cipher"` // aes-gcm, chacha20-poly1305
	Passphrase string `yaml:"passphrase"`
	KeyFile    string `yaml:"key_file"`
}

// MountConfig describes an externally mounted, system-wide storage.
type MountConfig struct {
	MountPoint       string           `yaml:"mount_point"`
	Type             string           `yaml:"type"` // local, s3
	Local            LocalConfig      `yaml:"local"`
	S3               storage.S3Config `yaml:"s3"`
	ApplicableUsers  []string         `yaml:"applicable_users"`
	ApplicableGroups []string         `yaml:"applicable_groups"`
}

// AdminConfig holds the optional admin HTTP listener settings.
type AdminConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// CacheConfig bounds the per-run access list cache.
type CacheConfig struct {
	MaxItems int `yaml:"max_items"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxEvents int  `yaml:"max_events"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Exporter       string  `yaml:"exporter"` // stdout, otlp
	OtlpEndpoint   string  `yaml:"otlp_endpoint"`
	SamplingRatio  float64 `yaml:"sampling_ratio"`
}

// LoadConfig loads configuration from a file and environment variables.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		LogLevel:   "info",
		InstanceID: "default",
		Encryption: EncryptionConfig{
			Enabled:   true,
			Installed: true,
		},
		Backend: BackendConfig{
			Type: "local",
			Local: LocalConfig{
				Root: "data",
			},
		},
		Module: ModuleConfig{
			Cipher: "aes-gcm",
		},
		Admin: AdminConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
		Cache: CacheConfig{
			MaxItems: 512,
		},
		Audit: AuditConfig{
			Enabled:   false,
			MaxEvents: 10000,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "encryptd",
			ServiceVersion: "dev",
			Exporter:       "stdout",
			SamplingRatio:  1.0,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration values from environment variables.
func loadFromEnv(config *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("INSTANCE_ID"); v != "" {
		config.InstanceID = v
	}
	if v := os.Getenv("ENCRYPTION_ENABLED"); v != "" {
		config.Encryption.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ENCRYPTION_KEY_STORAGE_ROOT"); v != "" {
		config.Encryption.KeyStorageRoot = v
	}
	if v := os.Getenv("BACKEND_TYPE"); v != "" {
		config.Backend.Type = v
	}
	if v := os.Getenv("BACKEND_LOCAL_ROOT"); v != "" {
		config.Backend.Local.Root = v
	}
	if v := os.Getenv("BACKEND_S3_ENDPOINT"); v != "" {
		config.Backend.S3.Endpoint = v
	}
	if v := os.Getenv("BACKEND_S3_REGION"); v != "" {
		config.Backend.S3.Region = v
	}
	if v := os.Getenv("BACKEND_S3_BUCKET"); v != "" {
		config.Backend.S3.Bucket = v
	}
	if v := os.Getenv("BACKEND_S3_ACCESS_KEY"); v != "" {
		config.Backend.S3.AccessKey = v
	}
	if v := os.Getenv("BACKEND_S3_SECRET_KEY"); v != "" {
		config.Backend.S3.SecretKey = v
	}
	if v := os.Getenv("BACKEND_S3_USE_PATH_STYLE"); v != "" {
		config.Backend.S3.PathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("MODULE_CIPHER"); v != "" {
		config.Module.Cipher = v
	}
	if v := os.Getenv("MODULE_PASSPHRASE"); v != "" {
		config.Module.Passphrase = v
	}
	if v := os.Getenv("MODULE_KEY_FILE"); v != "" {
		config.Module.KeyFile = v
	}
	if v := os.Getenv("ADMIN_ENABLED"); v != "" {
		config.Admin.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ADMIN_LISTEN_ADDR"); v != "" {
		config.Admin.ListenAddr = v
	}
	if v := os.Getenv("CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Cache.MaxItems = n
		}
	}
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		config.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AUDIT_MAX_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Audit.MaxEvents = n
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		config.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACING_SERVICE_NAME"); v != "" {
		config.Tracing.ServiceName = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		config.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACING_OTLP_ENDPOINT"); v != "" {
		config.Tracing.OtlpEndpoint = v
	}
	if v := os.Getenv("TRACING_SAMPLING_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0.0 && ratio <= 1.0 {
			config.Tracing.SamplingRatio = ratio
		}
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		config.StateFile = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.LogLevel] {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
		}
	}

	switch c.Backend.Type {
	case "local":
		if c.Backend.Local.Root == "" {
			return fmt.Errorf("backend.local.root is required for the local backend")
		}
	case "s3":
		if c.Backend.S3.Bucket == "" {
			return fmt.Errorf("backend.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid backend.type: %s (must be local or s3)", c.Backend.Type)
	}

	switch strings.ToLower(c.Module.Cipher) {
	case "", "aes-gcm", "chacha20-poly1305":
	default:
		return fmt.Errorf("invalid module.cipher: %s (must be aes-gcm or chacha20-poly1305)", c.Module.Cipher)
	}

	for _, m := range c.Mounts {
		if m.MountPoint == "" || m.MountPoint == "/" {
			return fmt.Errorf("mounts[].mount_point must be a non-root path")
		}
		switch m.Type {
		case "local":
			if m.Local.Root == "" {
				return fmt.Errorf("mount %s: local.root is required", m.MountPoint)
			}
		case "s3":
			if m.S3.Bucket == "" {
				return fmt.Errorf("mount %s: s3.bucket is required", m.MountPoint)
			}
		default:
			return fmt.Errorf("mount %s: invalid type %s", m.MountPoint, m.Type)
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name is required when tracing is enabled")
		}
		switch c.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			return fmt.Errorf("invalid tracing.exporter: %s (must be stdout or otlp)", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0.0 || c.Tracing.SamplingRatio > 1.0 {
			return fmt.Errorf("tracing.sampling_ratio must be between 0.0 and 1.0")
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.OtlpEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is otlp")
		}
	}

	return nil
}
