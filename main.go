package main

import (
	"carepulse/app/client/analytics"
	"carepulse/app/client/probe"
	"carepulse/app/config"
	"carepulse/app/server"
	"carepulse/app/service/activity"
	"carepulse/app/service/conversation"
	"carepulse/app/service/session"
	"carepulse/app/util/mylog"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, probe.NewClient)
	do.Provide(di, analytics.NewClient)
	do.Provide(di, activity.NewRegistry)
	do.Provide(di, activity.NewBroadcaster)
	do.Provide(di, conversation.New)
	do.Provide(di, session.New)
	do.Provide(di, server.New)

	sessionMgr := do.MustInvoke[*session.Manager](di)
	if err = sessionMgr.Init(session.Callbacks{
		OnWarning: func(remaining time.Duration) {
			slog.Warn("Admin session expiring soon", "remaining", remaining)
		},
		OnTimeout: func() {
			slog.Info("Admin session timed out")
		},
	}); err != nil {
		log.Fatalf("session init failed: %v", err)
	}

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*activity.Broadcaster](di).Run(appCtx)
	go sessionMgr.Run(appCtx)

	go func() {
		if err := do.MustInvoke[*server.Server](di).Run(appCtx); err != nil {
			slog.Error("Server stopped", "error", err)
			cancel()
		}
	}()

	<-appCtx.Done()
}
