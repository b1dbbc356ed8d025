package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/concord-chat/concord/internal/config"
	"github.com/concord-chat/concord/pkg/chatservice"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON or YAML configuration file")
	flag.Parse()

	var opts []config.LoadOptions
	if *configPath != "" {
		opts = append(opts, config.LoadOptions{Path: *configPath})
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	svc, err := chatservice.New(cfg, chatservice.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "chatservice:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ws", svc.Handler().ServeHTTP)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "serve:", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Chat.CloseTimeout+5*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
	if err := svc.Close(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
}
