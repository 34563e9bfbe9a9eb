package version

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	CLIName     = "gempm"
	FullVersion = CLIName + " v" + Version
	Version     = "0.1.0"

	// HomeEnv overrides the base directory for config, installs and caches.
	HomeEnv = "GEMPM_HOME"
	// InstallDirEnv overrides only the installation directory.
	InstallDirEnv = "GEMPM_INSTALL_DIR"
	// DebugEnv turns on debug logging unless empty or a false boolean.
	DebugEnv = "GEMPM_DEBUG"
)

var logged = false

func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, "."+CLIName)
	}
	// no usable home directory (containers, CI), fall back to a temp directory
	baseDir := filepath.Join(os.TempDir(), CLIName+"base")
	if !logged {
		logged = true
		slog.Info("No home directory; using temporary base directory", "baseDir", baseDir)
	}
	return baseDir
}

func DefaultInstallDir() string {
	return filepath.Join(BaseDir(), "gems")
}

func DefaultCacheDir() string {
	return filepath.Join(BaseDir(), "cache")
}

func DefaultConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}
