// Package main runs the edge proxy: TLS termination, static and media files, forwarding to the application pool.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"

	"github.com/motorsales/vsms/config"
	"github.com/motorsales/vsms/internal/edge"
	"github.com/motorsales/vsms/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "proxy")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pc := cfg.Proxy
	handler, err := edge.New(edge.Options{
		Upstream:              pc.Upstream,
		StaticRoot:            pc.StaticRoot,
		MediaRoot:             pc.MediaRoot,
		StaticMaxAge:          pc.StaticMaxAge,
		MediaMaxAge:           pc.MediaMaxAge,
		DialTimeout:           pc.DialTimeout,
		ResponseHeaderTimeout: pc.ResponseHeaderTimeout,
	}, log)
	if err != nil {
		log.Fatal("edge", zap.Error(err))
	}

	var servers []*http.Server
	var serveTLS func(*http.Server) error
	plain := &http.Server{Addr: pc.Listen, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	switch {
	case len(pc.AutocertHosts) > 0:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(pc.AutocertHosts...),
			Cache:      autocert.DirCache(pc.AutocertCacheDir),
		}
		plain.Handler = m.HTTPHandler(edge.RedirectHTTPS(pc.TLSListen))
		secure := &http.Server{Addr: pc.TLSListen, Handler: handler, TLSConfig: m.TLSConfig(), ReadHeaderTimeout: 10 * time.Second}
		servers = append(servers, secure)
		serveTLS = func(s *http.Server) error { return s.ListenAndServeTLS("", "") }
		log.Info("tls via acme", zap.Strings("hosts", pc.AutocertHosts))
	case pc.TLSCert != "" && pc.TLSKey != "":
		plain.Handler = edge.RedirectHTTPS(pc.TLSListen)
		secure := &http.Server{
			Addr:              pc.TLSListen,
			Handler:           handler,
			TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, secure)
		serveTLS = func(s *http.Server) error { return s.ListenAndServeTLS(pc.TLSCert, pc.TLSKey) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	start := func(s *http.Server, serve func() error) {
		g.Go(func() error {
			log.Info("proxy listening", zap.String("addr", s.Addr), zap.String("upstream", pc.Upstream))
			if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	start(plain, plain.ListenAndServe)
	for _, s := range servers {
		s := s
		start(s, func() error { return serveTLS(s) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, s := range append(servers, plain) {
			if err := s.Shutdown(shutdownCtx); err != nil {
				log.Error("proxy shutdown", zap.String("addr", s.Addr), zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("proxy stopped with error", zap.Error(err))
		return
	}
	log.Info("proxy stopped")
}
