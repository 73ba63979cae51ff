package main

import (
	"fmt"
	"os"
	"time"

	"github.com/LeeDigitalWorks/zapupload/cmd"
	"github.com/LeeDigitalWorks/zapupload/pkg/env"

	"github.com/getsentry/sentry-go"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		Environment:      env.Env,
		Release:          "zapupload@" + cmd.Version,
		SampleRate:       1.0,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	cmd.Execute()
}
