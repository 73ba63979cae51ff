// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package debug serves operational endpoints: /metrics, /health, /ready and
// pprof under /debug/.
package debug

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/pprof"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readyStateNotReady = 0
	readyStateReady    = 1

	// readyCheckTimeout bounds a single /ready evaluation.
	readyCheckTimeout = 2 * time.Second
)

// ReadyCheck reports nil when a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

var (
	readyState atomic.Int64

	customHandlersMu sync.RWMutex
	customHandlers   = make(map[string]http.Handler)

	readyChecksMu sync.RWMutex
	readyChecks   = make(map[string]ReadyCheck)

	globalRegistry = newRegistry()
)

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func SetReady() {
	readyState.Store(readyStateReady)
}

func SetNotReady() {
	readyState.Store(readyStateNotReady)
}

// AddReadyCheck registers a named readiness check. Registering the same name
// again replaces the previous check.
func AddReadyCheck(name string, check ReadyCheck) {
	readyChecksMu.Lock()
	defer readyChecksMu.Unlock()
	readyChecks[name] = check
}

// RemoveReadyCheck unregisters a readiness check.
func RemoveReadyCheck(name string) {
	readyChecksMu.Lock()
	defer readyChecksMu.Unlock()
	delete(readyChecks, name)
}

// IsReady reports whether SetReady has been called and every check passes.
func IsReady(ctx context.Context) bool {
	ready, _ := readiness(ctx)
	return ready
}

// readiness returns the overall state and the failing checks by name.
func readiness(ctx context.Context) (bool, map[string]string) {
	failing := make(map[string]string)
	if readyState.Load() != readyStateReady {
		failing["server"] = "not started"
	}

	readyChecksMu.RLock()
	checks := maps.Clone(readyChecks)
	readyChecksMu.RUnlock()

	for _, name := range slices.Sorted(maps.Keys(checks)) {
		if err := checks[name](ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	return len(failing) == 0, failing
}

// RegisterHandler registers a custom handler on the debug mux.
// Must be called before NewMux to be included.
func RegisterHandler(pattern string, handler http.Handler) {
	customHandlersMu.Lock()
	defer customHandlersMu.Unlock()
	customHandlers[pattern] = handler
}

// RegisterHandlerFunc registers a custom handler function on the debug mux.
func RegisterHandlerFunc(pattern string, handler http.HandlerFunc) {
	RegisterHandler(pattern, handler)
}

// Registry returns the Prometheus registry for registering custom metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

// Gatherer exposes the registry for tests and push gateways.
func Gatherer() prometheus.Gatherer {
	return globalRegistry
}

// NewMux returns a mux serving every debug endpoint.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	Mount(mux)
	return mux
}

// Mount adds the debug endpoints to an existing mux, for processes that
// serve everything on one port.
func Mount(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(globalRegistry, promhttp.HandlerOpts{
		Registry: globalRegistry,
	}))
	mux.Handle("/debug/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/allocs/", pprof.Handler("allocs"))
	mux.Handle("/debug/block/", pprof.Handler("block"))
	mux.Handle("/debug/cmdline", http.HandlerFunc(pprof.Cmdline))
	mux.Handle("/debug/goroutine/", pprof.Handler("goroutine"))
	mux.Handle("/debug/heap/", pprof.Handler("heap"))
	mux.Handle("/debug/mutex/", pprof.Handler("mutex"))
	mux.Handle("/debug/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/symbol", http.HandlerFunc(pprof.Symbol))
	mux.Handle("/debug/trace", http.HandlerFunc(pprof.Trace))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", serveReady)

	customHandlersMu.RLock()
	defer customHandlersMu.RUnlock()
	for pattern, handler := range customHandlers {
		mux.Handle(pattern, handler)
	}
}

func serveReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	ready, failing := readiness(ctx)
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Ready   bool              `json:"ready"`
		Failing map[string]string `json:"failing,omitempty"`
	}{ready, failing})
}
