// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/LeeDigitalWorks/zapupload/pkg/env"

	"github.com/spf13/cobra"
)

// Build-time variables (set via -ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)

	// Also support --version flag on root command
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("ZapUpload {{.Version}}\n")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := VersionInfo()
		fmt.Printf("ZapUpload %s\n", info["version"])
		fmt.Printf("  Git commit:  %s\n", info["git_commit"])
		fmt.Printf("  Built:       %s\n", info["build_date"])
		fmt.Printf("  Go version:  %s\n", info["go_version"])
		fmt.Printf("  OS/Arch:     %s/%s\n", info["os"], info["arch"])
		fmt.Printf("  Environment: %s\n", info["env"])
	},
}

// VersionInfo returns structured version information.
func VersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"env":        env.Env,
	}
}

// serveVersion answers /version on the debug mux.
func serveVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(VersionInfo())
}
