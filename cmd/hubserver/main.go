package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/pnson1322/coursechat/internal/obs"
	"github.com/pnson1322/coursechat/internal/server/auth"
	"github.com/pnson1322/coursechat/internal/server/config"
	"github.com/pnson1322/coursechat/internal/server/handlers"
	"github.com/pnson1322/coursechat/internal/server/hub"
	"github.com/pnson1322/coursechat/internal/server/ratelimit"
	"github.com/pnson1322/coursechat/internal/server/storage"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := obs.NewLogger(cfg.Env)
	auth.InitKey([]byte(cfg.JWTSecret))

	store, err := storage.New(cfg.DatabaseURL, log)
	if err != nil {
		log.Error("connect database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := &handlers.Server{
		Store:   store,
		Hub:     hub.New(store, log),
		Limiter: ratelimit.New(cfg.MaxConnsPerIP, cfg.MaxLoginsPerMin),
		Log:     log,
	}

	log.Info("hub server starting",
		"addr", cfg.HTTPAddr,
		"max_conns_per_ip", cfg.MaxConnsPerIP,
		"login_attempts_per_min", cfg.MaxLoginsPerMin)
	if err := http.ListenAndServe(cfg.HTTPAddr, srv.Routes()); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
