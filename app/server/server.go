package server

import (
	"carepulse/app/config"
	"carepulse/app/service/activity"
	"carepulse/app/service/conversation"
	"carepulse/app/service/session"
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

// Server exposes the lifecycle core to the chat and admin UIs. Handlers
// stay thin: all state lives in the services.
type Server struct {
	cfg             *config.Config
	conversationSvc *conversation.Service
	broadcaster     *activity.Broadcaster
	registry        *activity.Registry
	sessionMgr      *session.Manager

	app *fiber.App
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:             do.MustInvoke[*config.Config](di),
		conversationSvc: do.MustInvoke[*conversation.Service](di),
		broadcaster:     do.MustInvoke[*activity.Broadcaster](di),
		registry:        do.MustInvoke[*activity.Registry](di),
		sessionMgr:      do.MustInvoke[*session.Manager](di),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.app.Group("/api")

	api.Post("/chat", s.handleStartChat)
	api.Get("/chat/:id", s.handleGetChat)
	api.Post("/chat/:id/message", s.handleMessage)
	api.Post("/chat/:id/stop", s.handleStop)
	api.Post("/chat/:id/retry", s.handleRetryConnection)
	api.Post("/chat/:id/scroll", s.handleScroll)

	api.Post("/activity", s.handleActivity)
	api.Post("/presence", s.handlePresence)
	api.Get("/connection", s.handleConnection)

	admin := api.Group("/admin")
	admin.Post("/login", s.handleAdminLogin)
	admin.Get("/session", s.handleAdminSession)
	admin.Post("/activity", s.handleAdminActivity)
	admin.Post("/extend", s.handleAdminExtend)
	admin.Post("/logout", s.handleAdminLogout)
}

func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.app.Listen(s.cfg.Server.Addr)
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.app.ShutdownWithTimeout(5 * time.Second)
	})

	return g.Wait()
}
