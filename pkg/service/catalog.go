package service

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/catalog"
)

/*
CatalogServer exposes an agent catalog over HTTP.  Agents POST their card
to stay listed, and anyone can read the listing from the well-known path.
With a TTL set, agents that stop re-registering are swept out.
*/
type CatalogServer struct {
	app      *fiber.App
	registry *catalog.Registry
	addr     string
	ttl      time.Duration

	done     chan struct{}
	shutdown sync.Once
}

type CatalogOption func(*CatalogServer)

func WithCatalogRegistry(registry *catalog.Registry) CatalogOption {
	return func(srv *CatalogServer) { srv.registry = registry }
}

func WithCatalogAddr(addr string) CatalogOption {
	return func(srv *CatalogServer) { srv.addr = addr }
}

// WithCatalogTTL evicts agents that have not re-registered within ttl.
func WithCatalogTTL(ttl time.Duration) CatalogOption {
	return func(srv *CatalogServer) { srv.ttl = ttl }
}

func NewCatalogServer(opts ...CatalogOption) *CatalogServer {
	srv := &CatalogServer{
		registry: catalog.NewRegistry(),
		addr:     ":3211",
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.ttl > 0 {
		srv.registry.WithTTL(srv.ttl)
	}

	srv.app = fiber.New(fiber.Config{
		AppName:      "A2A Catalog",
		ServerHeader: "A2A-Catalog-Server",
	})

	srv.app.Use(logger.New(logger.Config{
		Next: func(c fiber.Ctx) bool {
			return isHealthPath(c.Path())
		},
	}), healthcheck.NewHealthChecker())

	srv.routes()

	return srv
}

// App exposes the underlying fiber app, mainly for tests.
func (srv *CatalogServer) App() *fiber.App {
	return srv.app
}

func (srv *CatalogServer) Registry() *catalog.Registry {
	return srv.registry
}

func (srv *CatalogServer) Start() error {
	if srv.ttl > 0 {
		go srv.sweep()
	}

	return srv.app.Listen(srv.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *CatalogServer) Shutdown(ctx context.Context) error {
	srv.shutdown.Do(func() { close(srv.done) })
	return srv.app.ShutdownWithContext(ctx)
}

func (srv *CatalogServer) sweep() {
	ticker := time.NewTicker(srv.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-srv.done:
			return
		case <-ticker.C:
			if removed := srv.registry.Cleanup(); removed > 0 {
				log.Debug("catalog evicted stale agents", "count", removed)
			}
		}
	}
}

func (srv *CatalogServer) routes() {
	srv.app.Get("/.well-known/catalog.json", func(ctx fiber.Ctx) error {
		return ctx.JSON(srv.registry.GetAgents())
	})

	srv.app.Get("/agent/:id", func(ctx fiber.Ctx) error {
		card, ok := srv.registry.GetAgent(ctx.Params("id"))

		if !ok {
			return ctx.SendStatus(fiber.StatusNotFound)
		}

		return ctx.JSON(card)
	})

	srv.app.Post("/agent", func(ctx fiber.Ctx) error {
		var card a2a.AgentCard

		if err := ctx.Bind().Body(&card); err != nil {
			return ctx.Status(fiber.StatusBadRequest).SendString("invalid agent card: " + err.Error())
		}

		if card.Name == "" {
			return ctx.Status(fiber.StatusBadRequest).SendString("agent card needs a name")
		}

		srv.registry.AddAgent(card)

		return ctx.Status(fiber.StatusCreated).JSON(card)
	})

	srv.app.Delete("/agent/:id", func(ctx fiber.Ctx) error {
		srv.registry.RemoveAgent(ctx.Params("id"))
		return ctx.SendStatus(fiber.StatusNoContent)
	})
}
