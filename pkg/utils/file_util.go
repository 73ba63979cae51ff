// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// EnsureWritableDir creates folder if needed and proves it is writable by
// creating and removing a temporary file. The local storage backend calls it
// before it accepts uploads.
func EnsureWritableDir(folder string) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return err
	}

	info, err := os.Stat(folder)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", folder)
	}

	f, err := os.CreateTemp(folder, ".write-check-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", folder, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// ResolvePath expands ~ and environment variables and makes path absolute.
func ResolvePath(path string) string {
	if path == "~" {
		if usr, err := user.Current(); err == nil {
			path = usr.HomeDir
		}
	} else if strings.HasPrefix(path, "~/") {
		if usr, err := user.Current(); err == nil {
			path = filepath.Join(usr.HomeDir, path[2:])
		}
	}

	path = os.ExpandEnv(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}
