package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// AppName is the application name used in XDG paths.
const AppName = "btdu"

// Config holds runtime configuration derived from the environment.
type Config struct {
	// Paths
	DataDir   string // XDG_DATA_HOME/btdu
	ConfigDir string // XDG_CONFIG_HOME/btdu
	CacheDir  string // XDG_CACHE_HOME/btdu

	// BlockSize is a size unit resolved the way coreutils du resolves it.
	// No caller reads it; the headless summary formats sizes with
	// humanize.IBytes.
	BlockSize int64

	// POSIXMode disables the BLOCK_SIZE/DU_BLOCK_SIZE overrides and forces
	// a 512-byte block, matching du's documented behavior.
	POSIXMode bool

	LogLevel string
}

// New creates a Config populated from the environment, creating the XDG
// directories it reports.
func New() *Config {
	cfg := &Config{}

	cfg.DataDir = getDataDir()
	cfg.ConfigDir = getConfigDir()
	cfg.CacheDir = getCacheDir()

	os.MkdirAll(cfg.DataDir, 0755)
	os.MkdirAll(cfg.ConfigDir, 0755)
	os.MkdirAll(cfg.CacheDir, 0755)

	cfg.POSIXMode = os.Getenv("POSIXLY_CORRECT") != ""
	cfg.BlockSize = resolveBlockSize(cfg.POSIXMode)

	cfg.LogLevel = envOrDefault("BTDU_LOG_LEVEL", "info")

	return cfg
}

// resolveBlockSize follows the same precedence coreutils du uses:
// POSIXLY_CORRECT forces 512 bytes; otherwise BTDU_BLOCK_SIZE, DU_BLOCK_SIZE,
// BLOCK_SIZE and BLOCKSIZE are tried in order before falling back to 1024.
func resolveBlockSize(posix bool) int64 {
	if posix {
		return 512
	}
	for _, key := range []string{"BTDU_BLOCK_SIZE", "DU_BLOCK_SIZE", "BLOCK_SIZE", "BLOCKSIZE"} {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1024
}

// getDataDir returns $XDG_DATA_HOME/btdu or ~/.local/share/btdu.
func getDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", AppName, "data")
	}
	return filepath.Join(home, ".local", "share", AppName)
}

// getConfigDir returns $XDG_CONFIG_HOME/btdu or ~/.config/btdu.
func getConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", AppName, "config")
	}
	return filepath.Join(home, ".config", AppName)
}

// getCacheDir returns $XDG_CACHE_HOME/btdu or ~/.cache/btdu.
func getCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", AppName, "cache")
	}
	return filepath.Join(home, ".cache", AppName)
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// SubPath joins parts under the data directory, e.g. for default export
// file locations.
func (c *Config) SubPath(parts ...string) string {
	return filepath.Join(append([]string{c.DataDir}, parts...)...)
}
