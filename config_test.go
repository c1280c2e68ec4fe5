package axisdb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendMemory {
		t.Errorf("default backend = %q", cfg.Backend)
	}
	if cfg.Files.Compression != CompressionSnappy {
		t.Errorf("default compression = %q", cfg.Files.Compression)
	}
	if cfg.Cache.MaxEntries != 0 {
		t.Errorf("default cache bound = %d, want 0 (unbounded)", cfg.Cache.MaxEntries)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func writeConfigFile(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
backend: files
path: /data/axisdb
cache:
  max_entries: 128
files:
  compression: none
encryption:
  enabled: true
  passphrase: hunter2
`)
	cfg, err := LoadConfig(path)
	must(t, err)
	if cfg.Backend != BackendFiles {
		t.Errorf("backend = %q", cfg.Backend)
	}
	if cfg.Path != "/data/axisdb" {
		t.Errorf("path = %q", cfg.Path)
	}
	if cfg.Cache.MaxEntries != 128 {
		t.Errorf("cache max entries = %d", cfg.Cache.MaxEntries)
	}
	if cfg.Files.Compression != CompressionNone {
		t.Errorf("compression = %q", cfg.Files.Compression)
	}
	if cfg.Encryption == nil || !cfg.Encryption.Enabled || cfg.Encryption.Passphrase != "hunter2" {
		t.Errorf("encryption = %+v", cfg.Encryption)
	}
}

func TestLoadConfigS3(t *testing.T) {
	path := writeConfigFile(t, `
backend: s3
s3:
  bucket: my-data
  prefix: prod/
  region: us-east-1
  endpoint: http://minio:9000
  force_path_style: true
`)
	cfg, err := LoadConfig(path)
	must(t, err)
	if cfg.Backend != BackendS3 {
		t.Errorf("backend = %q", cfg.Backend)
	}
	if cfg.S3 == nil {
		t.Fatal("s3 config missing")
	}
	if cfg.S3.Bucket != "my-data" || cfg.S3.Prefix != "prod/" || !cfg.S3.ForcePathStyle {
		t.Errorf("s3 = %+v", cfg.S3)
	}
}

func TestLoadConfigDefaultsApply(t *testing.T) {
	path := writeConfigFile(t, "{}\n")
	cfg, err := LoadConfig(path)
	must(t, err)
	if cfg.Backend != BackendMemory {
		t.Errorf("backend = %q", cfg.Backend)
	}
	if cfg.Files.Compression != CompressionSnappy {
		t.Errorf("compression = %q", cfg.Files.Compression)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown backend", Config{Backend: "etcd"}, "unknown backend"},
		{"files without path", Config{Backend: BackendFiles}, "requires a path"},
		{"sqlite without path", Config{Backend: BackendSQLite}, "requires a path"},
		{"s3 without bucket", Config{Backend: BackendS3, S3: &S3Config{}}, "requires an s3 bucket"},
		{"s3 without config", Config{Backend: BackendS3}, "requires an s3 bucket"},
		{"unknown compression", Config{Backend: BackendMemory, Files: FilesConfig{Compression: "zstd"}}, "unknown compression"},
		{
			"encryption without passphrase",
			Config{Backend: BackendMemory, Encryption: &EncryptionConfig{Enabled: true}},
			"requires a passphrase",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.applyDefaults()
			err := cfg.validate()
			if err == nil {
				t.Fatal("validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	path := writeConfigFile(t, "backend: [not a string\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed yaml accepted")
	}
	path = writeConfigFile(t, "backend: nosuch\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("invalid backend accepted")
	}
}

func TestConfigCodecChain(t *testing.T) {
	cfg := DefaultConfig()
	codec, err := cfg.codec()
	must(t, err)
	if _, ok := codec.(snappyCodec); !ok {
		t.Errorf("default codec = %T, want snappy", codec)
	}

	cfg.Files.Compression = CompressionNone
	codec, err = cfg.codec()
	must(t, err)
	if _, ok := codec.(rawCodec); !ok {
		t.Errorf("codec = %T, want raw", codec)
	}

	cfg.Encryption = &EncryptionConfig{Enabled: true, Passphrase: "secret"}
	codec, err = cfg.codec()
	must(t, err)
	if _, ok := codec.(*encryptionCodec); !ok {
		t.Errorf("codec = %T, want encryption", codec)
	}
}

func TestOpenWithBackends(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Backend = BackendFiles
	cfg.Path = filepath.Join(dir, "files")
	db, err := Open(cfg)
	must(t, err)
	must(t, db.SetAxis("cell", []string{"A", "B"}))
	must(t, db.Close())

	cfg = DefaultConfig()
	cfg.Backend = BackendSQLite
	cfg.Path = filepath.Join(dir, "data.db")
	db, err = Open(cfg)
	must(t, err)
	must(t, db.SetAxis("cell", []string{"A", "B"}))
	must(t, db.Close())
}
