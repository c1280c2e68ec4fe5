package axisdb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config defines engine configuration.
type Config struct {
	// Backend selects the storage backend: "memory", "files", "sqlite",
	// or "s3". Default: "memory".
	Backend string `yaml:"backend"`

	// Path is the data directory for the files backend or the database
	// file for the sqlite backend. Required for both.
	Path string `yaml:"path"`

	// Cache configures the query result cache.
	Cache CacheConfig `yaml:"cache"`

	// Files configures the files backend.
	Files FilesConfig `yaml:"files"`

	// S3 configures the s3 backend.
	S3 *S3Config `yaml:"s3"`

	// Encryption configures encryption at rest for the files and s3
	// backends. If nil or Enabled is false, data is stored unencrypted.
	Encryption *EncryptionConfig `yaml:"encryption"`
}

// CacheConfig groups result cache settings.
type CacheConfig struct {
	// MaxEntries bounds the number of cached results. The oldest entries
	// are evicted past the bound. 0 means unbounded.
	MaxEntries int `yaml:"max_entries"`
}

// FilesConfig groups files backend settings.
type FilesConfig struct {
	// Compression selects the blob compression codec: "snappy" or
	// "none". Default: "snappy".
	Compression string `yaml:"compression"`
}

// S3Config groups s3 backend settings.
type S3Config struct {
	// Bucket is the bucket name. Required.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`

	// Region is the bucket region. Falls back to the SDK's default
	// resolution when empty.
	Region string `yaml:"region"`

	// Endpoint overrides the S3 endpoint, for S3-compatible object
	// stores.
	Endpoint string `yaml:"endpoint"`

	// AccessKeyID and SecretAccessKey provide static credentials. When
	// empty, the SDK's default credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// ForcePathStyle addresses the bucket in the path rather than the
	// host, which most S3-compatible stores require.
	ForcePathStyle bool `yaml:"force_path_style"`
}

// EncryptionConfig groups encryption-at-rest settings.
type EncryptionConfig struct {
	// Enabled turns encryption on.
	Enabled bool `yaml:"enabled"`

	// Passphrase derives the encryption key. Required when Enabled.
	Passphrase string `yaml:"passphrase"`
}

// DefaultConfig returns a memory-backed configuration.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Files.Compression == "" {
		c.Files.Compression = CompressionSnappy
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendFiles, BackendSQLite:
		if c.Path == "" {
			return fmt.Errorf("backend %q requires a path", c.Backend)
		}
	case BackendS3:
		if c.S3 == nil || c.S3.Bucket == "" {
			return fmt.Errorf("backend %q requires an s3 bucket", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Files.Compression {
	case CompressionSnappy, CompressionNone:
	default:
		return fmt.Errorf("unknown compression %q", c.Files.Compression)
	}
	if c.Encryption != nil && c.Encryption.Enabled && c.Encryption.Passphrase == "" {
		return fmt.Errorf("encryption requires a passphrase")
	}
	return nil
}

// codec builds the blob codec chain the files and s3 backends run their
// blobs through.
func (c *Config) codec() (Codec, error) {
	var codec Codec = rawCodec{}
	if c.Files.Compression == CompressionSnappy {
		codec = snappyCodec{}
	}
	if c.Encryption != nil && c.Encryption.Enabled {
		enc, err := newEncryptionCodec(codec, c.Encryption.Passphrase)
		if err != nil {
			return nil, err
		}
		codec = enc
	}
	return codec, nil
}

func openStorage(cfg Config) (Storage, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFiles:
		codec, err := cfg.codec()
		if err != nil {
			return nil, err
		}
		return NewFilesStore(cfg.Path, codec)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case BackendS3:
		codec, err := cfg.codec()
		if err != nil {
			return nil, err
		}
		backend, err := newS3BlobBackend(*cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewBlobStore(backend, codec)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
