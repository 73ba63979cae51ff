// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/LeeDigitalWorks/zapupload/pkg/handler"
	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/utils"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve API Gateway proxy events on AWS Lambda",
	Long: `Run as an AWS Lambda function behind an API Gateway proxy integration.
Binary media types must be enabled so multipart bodies arrive base64 encoded.
Configuration comes from the environment (BUCKET, PROFILE, BACKEND_TYPE, ...).`,
	Run: runLambda,
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}

func runLambda(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("upload", false)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, store, err := buildService(ctx, cmd)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure upload service")
	}

	h := handler.NewEventHandler(svc)
	lambda.StartWithOptions(h.Handle,
		lambda.WithContext(ctx),
		lambda.WithEnableSIGTERM(func() {
			logger.Info().Msg("Lambda runtime shutting down")
			store.Close()
		}),
	)
}
