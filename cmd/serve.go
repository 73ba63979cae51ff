// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/debug"
	"github.com/LeeDigitalWorks/zapupload/pkg/handler"
	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapupload/pkg/types"
	"github.com/LeeDigitalWorks/zapupload/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServeOpts holds the HTTP server configuration
type ServeOpts struct {
	// Network binding
	BindAddr  string // Interface to listen on; both ports bind to it
	HTTPPort  int
	DebugPort int // 0 mounts the debug endpoints on the HTTP port

	// ReadTimeout is the idle read deadline per connection; it grows with
	// the bytes already received so slow but steady uploads survive.
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Rate limiting of POST /upload (0 = disabled)
	RateLimitRPS   float64
	RateLimitBurst int

	// TLS
	CertFile     string
	KeyFile      string
	ClientCAFile string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload HTTP server",
	Long: `Start an HTTP server accepting multipart uploads on POST /upload.
With the local backend it also serves signed object reads on /objects/.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()

	f.String("bind_addr", "0.0.0.0", "Interface to bind the HTTP and debug servers to")
	f.Int("http_port", 8080, "HTTP port")
	f.Int("debug_port", 8081, "Debug/metrics HTTP port (0 serves them on the HTTP port)")
	f.Duration("read_timeout", 30*time.Second, "Per-connection read deadline, scaled by bytes received (0 = disabled)")
	f.Duration("shutdown_timeout", 30*time.Second, "Grace period for in-flight uploads on shutdown")

	f.Float64("rate_limit_rps", 0, "Uploads admitted per second (0 = unlimited)")
	f.Int("rate_limit_burst", 10, "Upload burst size when rate limiting")

	f.String("cert_file", "", "Path to TLS certificate file")
	f.String("key_file", "", "Path to TLS key file")
	f.String("client_ca_file", "", "CA bundle for verifying client certificates (enables mTLS)")

	viper.BindPFlags(f)
}

func runServe(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("upload", false)
	opts := loadServeOpts(cmd)

	debug.SetNotReady()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, store, err := buildService(ctx, cmd)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure upload service")
	}
	defer store.Close()

	tlsConfig, err := utils.LoadServerTLSConfig(opts.CertFile, opts.KeyFile, opts.ClientCAFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load TLS credentials")
	}

	httpOpts := []handler.HTTPOption{handler.WithRateLimit(opts.RateLimitRPS, opts.RateLimitBurst)}
	if local, ok := store.(*backend.Local); ok {
		httpOpts = append(httpOpts, handler.WithObjectServer(local))
	}
	uploads := handler.NewHTTPHandler(svc, httpOpts...)

	debug.RegisterHandlerFunc("/version", serveVersion)
	if check, ok := storeReadyCheck(store, svc.Config().Bucket); ok {
		debug.AddReadyCheck(storeReadyCheckName, check)
		defer debug.RemoveReadyCheck(storeReadyCheckName)
	}

	var servers []*http.Server
	if opts.DebugPort == 0 {
		mux := http.NewServeMux()
		debug.Mount(mux)
		mux.Handle("/", uploads)
		servers = append(servers, startHTTPServer(mux, opts.BindAddr, opts.HTTPPort, opts.ReadTimeout, tlsConfig))
	} else {
		servers = append(servers,
			startHTTPServer(uploads, opts.BindAddr, opts.HTTPPort, opts.ReadTimeout, tlsConfig),
			startHTTPServer(debug.NewMux(), opts.BindAddr, opts.DebugPort, 0, nil),
		)
	}

	debug.SetReady()

	waitForShutdown()

	debug.SetNotReady()
	logger.Info().Msg("Shutting down upload server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("Server did not shut down cleanly")
		}
	}
}

func loadServeOpts(cmd *cobra.Command) ServeOpts {
	fl := NewFlagLoader(cmd)
	return ServeOpts{
		BindAddr:        fl.String("bind_addr"),
		HTTPPort:        fl.Int("http_port"),
		DebugPort:       fl.Int("debug_port"),
		ReadTimeout:     fl.Duration("read_timeout"),
		ShutdownTimeout: fl.Duration("shutdown_timeout"),
		RateLimitRPS:    fl.Float64("rate_limit_rps"),
		RateLimitBurst:  fl.Int("rate_limit_burst"),
		CertFile:        fl.String("cert_file"),
		KeyFile:         fl.String("key_file"),
		ClientCAFile:    fl.String("client_ca_file"),
	}
}

func startHTTPServer(h http.Handler, ip string, port int, readTimeout time.Duration, tlsConfig *tls.Config) *http.Server {
	addr := utils.JoinHostPort(ip, port)
	listener, err := utils.NewListener(addr, readTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("http_addr", addr).Bool("tls", tlsConfig != nil).Msg("Starting HTTP server")
		var err error
		if tlsConfig != nil {
			err = httpServer.ServeTLS(listener, "", "")
		} else {
			err = httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

const storeReadyCheckName = "store"

// storeReadyCheck reports the destination bucket's reachability on /ready
// when the store supports it.
func storeReadyCheck(store types.ObjectStore, bucket string) (debug.ReadyCheck, bool) {
	p, ok := store.(types.Pinger)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) error {
		return p.Ping(ctx, bucket)
	}, true
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
}
