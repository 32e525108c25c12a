package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.LogLevel != "info" {
		t.Errorf("expected LogLevel info, got %s", config.LogLevel)
	}
	if config.Backend.Type != "local" {
		t.Errorf("expected backend local, got %s", config.Backend.Type)
	}
	if !config.Encryption.Enabled {
		t.Error("expected encryption enabled by default")
	}
	if config.Cache.MaxItems != 512 {
		t.Errorf("expected cache max items 512, got %d", config.Cache.MaxItems)
	}
	if config.Admin.ListenAddr != ":9090" {
		t.Errorf("expected admin addr :9090, got %s", config.Admin.ListenAddr)
	}
	if config.Module.Cipher != "aes-gcm" {
		t.Errorf("expected cipher aes-gcm, got %s", config.Module.Cipher)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("BACKEND_LOCAL_ROOT", "/srv/data")
	os.Setenv("MODULE_CIPHER", "chacha20-poly1305")
	os.Setenv("ENCRYPTION_ENABLED", "false")
	defer func() {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("BACKEND_LOCAL_ROOT")
		os.Unsetenv("MODULE_CIPHER")
		os.Unsetenv("ENCRYPTION_ENABLED")
	}()

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %s", config.LogLevel)
	}
	if config.Backend.Local.Root != "/srv/data" {
		t.Errorf("expected backend root /srv/data, got %s", config.Backend.Local.Root)
	}
	if config.Module.Cipher != "chacha20-poly1305" {
		t.Errorf("expected cipher chacha20-poly1305, got %s", config.Module.Cipher)
	}
	if config.Encryption.Enabled {
		t.Error("expected encryption disabled via env")
	}
}

func TestLoadConfig_File(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	yaml := `log_level: warn
instance_id: prod42
backend:
  type: s3
  s3:
    bucket: files
    region: eu-central-1
mounts:
  - mount_point: /ext/projects
    type: local
    local:
      root: /srv/projects
    applicable_users: ["all"]
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.LogLevel != "warn" {
		t.Errorf("log level = %s", config.LogLevel)
	}
	if config.InstanceID != "prod42" {
		t.Errorf("instance id = %s", config.InstanceID)
	}
	if config.Backend.Type != "s3" || config.Backend.S3.Bucket != "files" {
		t.Errorf("backend = %+v", config.Backend)
	}
	if len(config.Mounts) != 1 || config.Mounts[0].MountPoint != "/ext/projects" {
		t.Errorf("mounts = %+v", config.Mounts)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad backend type", func(c *Config) { c.Backend.Type = "ftp" }},
		{"local without root", func(c *Config) { c.Backend.Local.Root = "" }},
		{"s3 without bucket", func(c *Config) { c.Backend.Type = "s3"; c.Backend.S3.Bucket = "" }},
		{"bad cipher", func(c *Config) { c.Module.Cipher = "rot13" }},
		{"root mountpoint", func(c *Config) {
			c.Mounts = []MountConfig{{MountPoint: "/", Type: "local", Local: LocalConfig{Root: "/x"}}}
		}},
		{"mount without backing", func(c *Config) {
			c.Mounts = []MountConfig{{MountPoint: "/ext", Type: "local"}}
		}},
		{"tracing bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "carrier-pigeon"
		}},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OtlpEndpoint = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
