// Package dirs resolves per-user directories for config, cached artifacts,
// logs and saved downloads.
package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "jobfetch"

// AppName returns the name used for every directory below.
func AppName() string {
	return appName
}

// base picks a root for one directory kind. On Linux the XDG variable wins,
// then $HOME/<linux...>. macOS uses $HOME/<darwin...>. Everything else goes
// through fallback.
func base(xdgVar string, linux, darwin []string, fallback func() (string, error)) (string, error) {
	switch runtime.GOOS {
	case "linux":
		if v := os.Getenv(xdgVar); v != "" {
			return filepath.Join(v, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(append(append([]string{home}, linux...), appName)...), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(append(append([]string{home}, darwin...), appName)...), nil
	default:
		root, err := fallback()
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}
}

var appSupport = []string{"Library", "Application Support"}

// ConfigDir holds config.yaml.
// Linux: $XDG_CONFIG_HOME/jobfetch or ~/.config/jobfetch.
func ConfigDir() (string, error) {
	return base("XDG_CONFIG_HOME", []string{".config"}, appSupport, os.UserConfigDir)
}

// DataDir holds saved downloads by default.
// Linux: $XDG_DATA_HOME/jobfetch or ~/.local/share/jobfetch.
func DataDir() (string, error) {
	return base("XDG_DATA_HOME", []string{".local", "share"}, appSupport, os.UserConfigDir)
}

// CacheDir holds session blob directories.
// Linux: $XDG_CACHE_HOME/jobfetch or ~/.cache/jobfetch.
func CacheDir() (string, error) {
	return base("XDG_CACHE_HOME", []string{".cache"}, []string{"Library", "Caches"}, os.UserCacheDir)
}

// StateDir holds the log file.
// Linux: $XDG_STATE_HOME/jobfetch or ~/.local/state/jobfetch.
func StateDir() (string, error) {
	if runtime.GOOS == "linux" {
		return base("XDG_STATE_HOME", []string{".local", "state"}, nil, nil)
	}
	if la := os.Getenv("LOCALAPPDATA"); la != "" && runtime.GOOS == "windows" {
		return filepath.Join(la, appName, "state"), nil
	}
	cfg, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "state"), nil
}

// DefaultOutputDir is where downloads land when --out-dir is not given.
func DefaultOutputDir() (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "downloads"), nil
}

// BlobBaseDir is the parent of per-session blob stores.
func BlobBaseDir() (string, error) {
	c, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(c, "blobs"), nil
}

// LogFile is the log destination while the TUI owns the terminal.
func LogFile() (string, error) {
	s, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(s, appName+".log"), nil
}

// Ensure creates path and its parents.
func Ensure(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll creates the config, cache and state directories. Resolution
// failures are skipped; creation failures are returned.
func EnsureAll() error {
	for _, resolve := range []func() (string, error){ConfigDir, CacheDir, StateDir} {
		p, err := resolve()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}
