package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/keshon/ccview/internal/fs"
)

// DefaultCacheDir returns the per-user cache directory for snapshots.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(dir, AppName)
}

// FindConfigFile walks up from dir until it finds a ConfigFileName file.
// It returns "" when none exists up to the filesystem root.
func FindConfigFile(fsys fs.FS, dir string) string {
	cur := filepath.Clean(dir)
	for {
		candidate := filepath.Join(cur, ConfigFileName)
		if fsys.Exists(candidate) && !fsys.IsDir(candidate) {
			return candidate
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			break // reached filesystem root
		}
		cur = parent
	}
	return ""
}

// ReadConfig loads name, or the nearest ConfigFileName above the working
// directory when name is empty, into v. A missing discovered file is not an
// error.
func ReadConfig(v *viper.Viper, fsys fs.FS, name string) (string, error) {
	if name == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", nil
		}
		if name = FindConfigFile(fsys, cwd); name == "" {
			return "", nil
		}
	}
	v.SetConfigFile(name)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config %s: %w", name, err)
	}
	return name, nil
}
