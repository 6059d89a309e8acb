package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

/*
The REST surface mirrors the JSON-RPC methods resource-style:

	POST   /v1/message:send
	POST   /v1/message:stream                                (SSE)
	GET    /v1/card
	GET    /v1/tasks
	GET    /v1/tasks/{id}
	GET    /v1/tasks/{id}:subscribe                          (SSE)
	POST   /v1/tasks/{id}:cancel
	POST   /v1/tasks/{id}/pushNotificationConfigs
	GET    /v1/tasks/{id}/pushNotificationConfigs
	GET    /v1/tasks/{id}/pushNotificationConfigs/{configID}
	DELETE /v1/tasks/{id}/pushNotificationConfigs/{configID}

Errors carry the JSON-RPC error object as the body with an HTTP status
mapped from the code.
*/

func (srv *A2AServer) restMessageSend(ctx fiber.Ctx) error {
	var params a2a.MessageSendParams

	if err := ctx.Bind().Body(&params); err != nil {
		return restError(ctx, errors.ErrInvalidRequest.WithMessagef("Invalid request body: %v", err))
	}

	event, rpcErr := srv.handler.OnMessageSend(ctx.Context(), &params, callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.JSON(a2a.StreamResponse{Event: event})
}

func (srv *A2AServer) restMessageStream(ctx fiber.Ctx) error {
	var params a2a.MessageSendParams

	if err := ctx.Bind().Body(&params); err != nil {
		return restError(ctx, errors.ErrInvalidRequest.WithMessagef("Invalid request body: %v", err))
	}

	events, rpcErr := srv.handler.OnMessageSendStream(ctx.Context(), &params, callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return srv.streamREST(ctx, events)
}

func (srv *A2AServer) restCard(ctx fiber.Ctx) error {
	return ctx.JSON(srv.handler.Card())
}

func (srv *A2AServer) restListTasks(ctx fiber.Ctx) error {
	params := a2a.ListTasksParams{
		ContextID: ctx.Query("contextId"),
		Status:    a2a.TaskState(ctx.Query("status")),
		PageToken: ctx.Query("pageToken"),
	}

	if raw := ctx.Query("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)

		if err != nil {
			return restError(ctx, errors.ErrInvalidParams.WithMessagef("invalid pageSize %q", raw))
		}

		params.PageSize = size
	}

	if raw := ctx.Query("statusTimestampAfter"); raw != "" {
		after, err := time.Parse(time.RFC3339, raw)

		if err != nil {
			return restError(ctx, errors.ErrInvalidParams.WithMessagef("invalid statusTimestampAfter %q", raw))
		}

		params.StatusTimestampAfter = &after
	}

	if length, rpcErr := queryHistoryLength(ctx); rpcErr != nil {
		return restError(ctx, rpcErr)
	} else if length != nil {
		params.HistoryLength = length
	}

	result, rpcErr := srv.handler.OnListTasks(ctx.Context(), &params, callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.JSON(result)
}

// restGetOrSubscribe serves GET /v1/tasks/{id} and GET /v1/tasks/{id}:subscribe,
// which fiber sees as a single path parameter.
func (srv *A2AServer) restGetOrSubscribe(ctx fiber.Ctx) error {
	rest := ctx.Params("rest")

	if id, found := strings.CutSuffix(rest, ":subscribe"); found {
		events, rpcErr := srv.handler.OnResubscribe(ctx.Context(), &a2a.TaskIDParams{ID: id}, callContextFrom(ctx))

		if rpcErr != nil {
			return restError(ctx, rpcErr)
		}

		return srv.streamREST(ctx, events)
	}

	params := a2a.TaskQueryParams{ID: rest}

	if length, rpcErr := queryHistoryLength(ctx); rpcErr != nil {
		return restError(ctx, rpcErr)
	} else if length != nil {
		params.HistoryLength = length
	}

	task, rpcErr := srv.handler.OnGetTask(ctx.Context(), &params, callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.JSON(task)
}

func (srv *A2AServer) restCancelTask(ctx fiber.Ctx) error {
	id, found := strings.CutSuffix(ctx.Params("rest"), ":cancel")

	if !found {
		return restError(ctx, errors.ErrMethodNotFound)
	}

	task, rpcErr := srv.handler.OnCancelTask(ctx.Context(), &a2a.TaskIDParams{ID: id}, callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.JSON(task)
}

func (srv *A2AServer) restSetPushConfig(ctx fiber.Ctx) error {
	var config a2a.PushNotificationConfig

	if err := ctx.Bind().Body(&config); err != nil {
		return restError(ctx, errors.ErrInvalidRequest.WithMessagef("Invalid request body: %v", err))
	}

	params := a2a.TaskPushNotificationConfig{
		TaskID:                 ctx.Params("id"),
		PushNotificationConfig: config,
	}

	stored, rpcErr := srv.handler.OnSetTaskPushConfig(ctx.Context(), &params, callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.JSON(stored)
}

func (srv *A2AServer) restListPushConfigs(ctx fiber.Ctx) error {
	params := a2a.ListTaskPushNotificationConfigParams{ID: ctx.Params("id")}

	configs, rpcErr := srv.handler.OnListTaskPushConfig(ctx.Context(), &params, callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.JSON(configs)
}

func (srv *A2AServer) restGetPushConfig(ctx fiber.Ctx) error {
	params := a2a.GetTaskPushNotificationConfigParams{
		ID:                       ctx.Params("id"),
		PushNotificationConfigID: ctx.Params("configID"),
	}

	config, rpcErr := srv.handler.OnGetTaskPushConfig(ctx.Context(), &params, callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.JSON(config)
}

func (srv *A2AServer) restDeletePushConfig(ctx fiber.Ctx) error {
	params := a2a.DeleteTaskPushNotificationConfigParams{
		ID:                       ctx.Params("id"),
		PushNotificationConfigID: ctx.Params("configID"),
	}

	if rpcErr := srv.handler.OnDeleteTaskPushConfig(ctx.Context(), &params, callContextFrom(ctx)); rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func queryHistoryLength(ctx fiber.Ctx) (*int, *errors.RpcError) {
	raw := ctx.Query("historyLength")

	if raw == "" {
		return nil, nil
	}

	length, err := strconv.Atoi(raw)

	if err != nil {
		return nil, errors.ErrInvalidParams.WithMessagef("invalid historyLength %q", raw)
	}

	return &length, nil
}

// restStatus maps protocol error codes onto HTTP statuses.
func restStatus(code int) int {
	switch code {
	case errors.ErrParseError.Code, errors.ErrInvalidRequest.Code, errors.ErrInvalidParams.Code:
		return fiber.StatusBadRequest
	case errors.ErrMethodNotFound.Code, errors.ErrTaskNotFound.Code, errors.ErrExtendedCardNotConfigured.Code:
		return fiber.StatusNotFound
	case errors.ErrTaskNotCancelable.Code:
		return fiber.StatusConflict
	case errors.ErrContentTypeNotSupported.Code:
		return fiber.StatusUnsupportedMediaType
	case errors.ErrPushNotificationNotSupported.Code, errors.ErrUnsupportedOperation.Code:
		return fiber.StatusNotImplemented
	case errors.ErrInvalidAgentResponse.Code:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func restError(ctx fiber.Ctx, rpcErr *errors.RpcError) error {
	return ctx.Status(restStatus(rpcErr.Code)).JSON(rpcErr)
}
