package common

import (
	"net"
	"net/http"
	"net/http/pprof"
	"time"
)

func startPprof(endpoint string) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		rootLogger.Error("failed to create pprof listener", "err", err)
		return
	}

	// A dedicated mux keeps the profiler off the API router and off the
	// global mux where pprof's init registers itself.
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{
		Addr:              endpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		// CPU profiles stream for up to 30s by default.
		WriteTimeout: 60 * time.Second,
	}

	rootLogger.Info("serving pprof", "endpoint", endpoint)
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			rootLogger.Error("pprof server stopped", "err", err)
		}
	}()
}
