package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/auth"
)

// TaskSink consumes verified push deliveries.
type TaskSink func(ctx context.Context, task *a2a.Task)

/*
WebhookReceiver is the receiving end of push notifications: a small HTTP
endpoint that authenticates each delivery, decodes the task snapshot and
hands it to a sink.  It pairs with push.Sender for clients that cannot
keep a stream open, and gives tests a real endpoint to deliver against.
*/
type WebhookReceiver struct {
	app    *fiber.App
	sink   TaskSink
	token  string
	keys   jwk.Set
	secret *auth.Service
	addr   string
}

type ReceiverOption func(*WebhookReceiver)

// WithReceiverAddr overrides the listen address.
func WithReceiverAddr(addr string) ReceiverOption {
	return func(srv *WebhookReceiver) { srv.addr = addr }
}

// WithDeliveryToken rejects deliveries that do not echo the token this
// receiver registered its push config with.
func WithDeliveryToken(token string) ReceiverOption {
	return func(srv *WebhookReceiver) { srv.token = token }
}

// WithSharedSecret verifies HS256 bearer tokens minted by a sender holding
// the same secret.
func WithSharedSecret(secret []byte) ReceiverOption {
	return func(srv *WebhookReceiver) {
		srv.secret = auth.NewService().WithSigningKey(secret)
	}
}

// WithSenderKeys verifies RS256 bearer tokens against the sender's JWKS,
// as served at its /.well-known/jwks.json.
func WithSenderKeys(keys jwk.Set) ReceiverOption {
	return func(srv *WebhookReceiver) { srv.keys = keys }
}

func NewWebhookReceiver(sink TaskSink, opts ...ReceiverOption) *WebhookReceiver {
	srv := &WebhookReceiver{
		sink: sink,
		addr: ":3230",
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.app = fiber.New(fiber.Config{
		AppName:      "A2A-Webhook-Receiver",
		ServerHeader: "A2A-Webhook-Receiver",
	})

	srv.app.Use(logger.New(logger.Config{
		Next: func(c fiber.Ctx) bool {
			return isHealthPath(c.Path())
		},
	}), healthcheck.NewHealthChecker())

	srv.app.Get("/", srv.handleRoot)
	srv.app.Post("/webhook", srv.handleDelivery)

	return srv
}

// App exposes the underlying fiber app, mainly for tests.
func (srv *WebhookReceiver) App() *fiber.App {
	return srv.app
}

func (srv *WebhookReceiver) Start() error {
	return srv.app.Listen(srv.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *WebhookReceiver) Shutdown(ctx context.Context) error {
	return srv.app.ShutdownWithContext(ctx)
}

// handleRoot answers the sender's HEAD probe when a config is registered.
func (srv *WebhookReceiver) handleRoot(ctx fiber.Ctx) error {
	return ctx.SendString("OK")
}

func (srv *WebhookReceiver) handleDelivery(ctx fiber.Ctx) error {
	if srv.token != "" && ctx.Get(a2a.NotificationTokenHeader) != srv.token {
		return ctx.SendStatus(fiber.StatusUnauthorized)
	}

	var snapshot a2a.StreamResponse

	if err := ctx.Bind().Body(&snapshot); err != nil {
		return ctx.SendStatus(fiber.StatusBadRequest)
	}

	task, ok := snapshot.Event.(*a2a.Task)

	if !ok {
		return ctx.SendStatus(fiber.StatusBadRequest)
	}

	if err := srv.verify(ctx.Get("Authorization"), task.ID); err != nil {
		log.Warn("rejecting webhook delivery", "task_id", task.ID, "error", err)
		return ctx.SendStatus(fiber.StatusUnauthorized)
	}

	if srv.sink != nil {
		srv.sink(ctx.Context(), task)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

/*
verify checks the delivery's bearer token with whichever key material the
receiver was configured with.  The token's taskId claim has to match the
snapshot it arrived with, so a captured token cannot replay a different
task.
*/
func (srv *WebhookReceiver) verify(authorization, taskID string) error {
	if srv.keys == nil && srv.secret == nil {
		return nil
	}

	raw, ok := strings.CutPrefix(authorization, "Bearer ")

	if !ok {
		return stderrors.New("missing bearer token")
	}

	if srv.keys != nil {
		token, err := jwt.Parse([]byte(raw), jwt.WithKeySet(srv.keys))

		if err != nil {
			return err
		}

		if claim, _ := token.Get("taskId"); claim != taskID {
			return fmt.Errorf("token issued for task %v, delivery carries %s", claim, taskID)
		}

		return nil
	}

	claims, err := srv.secret.ValidateToken(raw)

	if err != nil {
		return err
	}

	if claims["taskId"] != taskID {
		return fmt.Errorf("token issued for task %v, delivery carries %s", claims["taskId"], taskID)
	}

	return nil
}
