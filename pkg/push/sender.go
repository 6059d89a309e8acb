package push

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	fiberClient "github.com/gofiber/fiber/v3/client"
	"github.com/golang-jwt/jwt/v5"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"golang.org/x/sync/errgroup"
)

/*
OwnerResolver maps a call context to the identity push configs are scoped
by.  The default trusts the authenticated user name and falls back to
"unknown" for anonymous calls.
*/
type OwnerResolver func(*a2a.ServerCallContext) string

func DefaultOwnerResolver(call *a2a.ServerCallContext) string {
	return call.Owner()
}

// ShouldNotify reports whether a snapshot warrants a notification: the
// task finished, or it is waiting on the client to come back.
func ShouldNotify(task *a2a.Task) bool {
	if task == nil {
		return false
	}

	return task.Status.State.Terminal() || task.Status.State.Interrupted()
}

/*
Sender delivers task snapshots to registered webhooks.  Deliveries fan out
concurrently, retry with backoff, and fail independently: one unreachable
webhook never blocks the rest, and no delivery failure ever surfaces to
the protocol caller.
*/
type Sender struct {
	store  ConfigStore
	conn   *fiberClient.Client
	secret []byte
	auth   *SenderAuth
	retry  *errors.RetryConfig
}

func NewSender(store ConfigStore) *Sender {
	return &Sender{
		store: store,
		conn:  fiberClient.New(),
		retry: &errors.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2.0,
		},
	}
}

// WithSigningSecret makes every delivery carry a short-lived HS256 bearer
// token so receivers can authenticate the sender.
func (s *Sender) WithSigningSecret(secret []byte) *Sender {
	s.secret = secret
	return s
}

// WithSenderAuth switches deliveries to RS256 bearer tokens that receivers
// verify against the sender's published JWKS.  Takes precedence over a
// shared secret when both are set.
func (s *Sender) WithSenderAuth(auth *SenderAuth) *Sender {
	s.auth = auth
	return s
}

// VerifyURL reports whether a webhook endpoint answers a HEAD probe.
// Callers registering a config can use it to reject dead endpoints early.
func (s *Sender) VerifyURL(url string) bool {
	res, err := s.conn.Head(url)

	if err != nil {
		return false
	}

	defer res.Close()

	return res.StatusCode() >= 200 && res.StatusCode() < 400
}

/*
Notify posts the snapshot to every webhook registered for the task.  It
blocks until all deliveries finished or gave up, logging failures instead
of returning them.
*/
func (s *Sender) Notify(ctx context.Context, owner string, task *a2a.Task) {
	if s == nil || s.store == nil || task == nil {
		return
	}

	configs, rpcErr := s.store.List(ctx, owner, task.ID)

	if rpcErr != nil {
		log.Error("failed to list push configs", "task_id", task.ID, "error", rpcErr)
		return
	}

	if len(configs) == 0 {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for _, config := range configs {
		group.Go(func() error {
			if err := s.post(groupCtx, config, task); err != nil {
				log.Warn(
					"push notification failed",
					"task_id", task.ID,
					"url", config.PushNotificationConfig.URL,
					"error", err,
				)
			}

			return nil
		})
	}

	_ = group.Wait()
}

func (s *Sender) post(ctx context.Context, config *a2a.TaskPushNotificationConfig, task *a2a.Task) error {
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	if config.PushNotificationConfig.Token != "" {
		headers[a2a.NotificationTokenHeader] = config.PushNotificationConfig.Token
	}

	if token, err := s.deliveryToken(task.ID); err != nil {
		return err
	} else if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	payload := a2a.StreamResponse{Event: task}

	return errors.RetryWithBackoff(ctx, s.retry, func() error {
		res, err := s.conn.Post(config.PushNotificationConfig.URL, fiberClient.Config{
			Header: headers,
			Body:   payload,
		})

		if err != nil {
			return err
		}

		defer res.Close()

		if res.StatusCode() >= 400 {
			return fmt.Errorf("push endpoint returned HTTP %d", res.StatusCode())
		}

		return nil
	})
}

// deliveryToken picks the configured credential: RS256 via SenderAuth when
// present, HS256 via the shared secret otherwise, empty when neither is set.
func (s *Sender) deliveryToken(taskID string) (string, error) {
	if s.auth != nil {
		return s.auth.Token(taskID)
	}

	if len(s.secret) == 0 {
		return "", nil
	}

	now := time.Now()

	claims := jwt.MapClaims{
		"iat":    jwt.NewNumericDate(now),
		"exp":    jwt.NewNumericDate(now.Add(5 * time.Minute)),
		"taskId": taskID,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
