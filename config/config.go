// Package config loads the tuning constants and front-end settings shared
// by cmd/flashkv-shell and cmd/flashkv-server from a TOML file, in the
// style of the teacher's functional-options configuration layer.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/flashdb/flashkv/codec"
	"github.com/flashdb/flashkv/database"
	"github.com/flashdb/flashkv/kverrors"
)

// Config is the on-disk shape of a flashkv TOML configuration file. Fields
// the file omits keep their Default() values, so an empty file is not an
// error; a missing file is (see Load).
type Config struct {
	Dir            string `toml:"dir"`
	MaxMemoryUsage int    `toml:"max_memory_usage"`
	BlockSize      int    `toml:"block_size"`
	Compression    string `toml:"compression"` // "identity" (default) or "s2"
	UseMmap        bool   `toml:"use_mmap"`
	UseFlock       bool   `toml:"use_flock"`

	ListenAddr     string `toml:"listen_addr"`     // cmd/flashkv-server
	MetricsEnabled bool   `toml:"metrics_enabled"` // cmd/flashkv-server
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Dir:            "./flashkv-data",
		MaxMemoryUsage: database.DefaultMaxMemoryUsage,
		Compression:    "identity",
		UseMmap:        true,
		ListenAddr:     "127.0.0.1:7878",
	}
}

// Load reads and parses a TOML configuration file. Fields the file omits
// keep their Default() values; max_memory_usage and compression also fall
// back to their defaults when set to 0 or "". Other fields keep an
// explicit zero value from the file.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, kverrors.NewIOError(err, "failed to read config file").WithPath(path)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, kverrors.NewCorruptionError(err, "failed to parse config file").WithPath(path)
	}

	if cfg.MaxMemoryUsage == 0 {
		cfg.MaxMemoryUsage = database.DefaultMaxMemoryUsage
	}
	if cfg.Compression == "" {
		cfg.Compression = "identity"
	}

	return cfg, nil
}

// Compressor resolves the configured compression scheme to a codec.Compressor.
func (c Config) Compressor() (codec.Compressor, error) {
	switch c.Compression {
	case "", "identity":
		return codec.IdentityCompressor{}, nil
	case "s2":
		return codec.S2Compressor{}, nil
	default:
		return nil, kverrors.NewInternalError("unknown compression scheme: " + c.Compression)
	}
}

// DatabaseOptions translates this Config into database.Option values.
func (c Config) DatabaseOptions(logger *zap.Logger) ([]database.Option, error) {
	compressor, err := c.Compressor()
	if err != nil {
		return nil, err
	}

	opts := []database.Option{
		database.WithMaxMemoryUsage(c.MaxMemoryUsage),
		database.WithCompressor(compressor),
		database.WithLogger(logger),
	}
	if c.BlockSize > 0 {
		opts = append(opts, database.WithBlockSize(c.BlockSize))
	}
	if !c.UseMmap {
		opts = append(opts, database.WithoutMmap())
	}
	if c.UseFlock {
		opts = append(opts, database.WithFlock())
	}

	return opts, nil
}
