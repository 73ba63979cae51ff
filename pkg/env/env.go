// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package env reports which deployment environment the process runs in.
// The value comes from ENV (or ZAPUPLOAD_ENV) and defaults to local.
package env

import (
	"os"
	"sync"

	"github.com/spf13/viper"
)

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
	Lambda     = "lambda"
)

var (
	Env string

	once sync.Once
)

func IsLocal() bool {
	return Env == Local
}

func IsProduction() bool {
	return Env == Production || Env == Lambda
}

func IsTesting() bool {
	return Env == Testing
}

// IsLambda reports whether the process runs inside the AWS Lambda runtime,
// either declared through ENV or detected from the runtime's own variables.
func IsLambda() bool {
	return Env == Lambda
}

func init() {
	once.Do(func() {
		v := viper.New()
		v.AutomaticEnv()
		Env = v.GetString("env")
		if Env == "" {
			Env = v.GetString("zapupload_env")
		}
		if Env == "" && os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
			Env = Lambda
		}
		if Env == "" {
			Env = Local
		}
	})
}
