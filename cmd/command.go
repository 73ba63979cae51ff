// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "zapupload",
	Short: "ZapUpload - multipart upload ingestion",
	Long: `ZapUpload accepts multipart/form-data uploads, validates the file against
size and content type limits, optionally renders a thumbnail, stores every
rendition in an object store and answers with signed read URLs.
It runs as an HTTP server or behind API Gateway on AWS Lambda.`,
	PersistentPreRun: initializeLogging,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	f.String("log_level", "", "Log level (debug, info, warn, error). Env: LOG_LEVEL")

	addUploadFlags(f)

	viper.BindPFlags(f)
}

// initializeLogging applies --log_level on top of LOG_LEVEL.
func initializeLogging(cmd *cobra.Command, args []string) {
	level := NewFlagLoader(cmd).String("log_level")
	if level == "" {
		return
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		logger.Warn().Err(err).Str("log_level", level).Msg("Ignoring unknown log level")
		return
	}
	logger.SetLevel(parsed)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
