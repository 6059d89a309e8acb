package handler

import (
	"context"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

// pushChecks gates every push config operation: the capability must be
// advertised, a store must be wired, and the task must exist.
func (h *RequestHandler) pushChecks(ctx context.Context, taskID string) *errors.RpcError {
	if !h.card.PushNotificationsEnabled() {
		return errors.ErrPushNotificationNotSupported
	}

	if h.pushStore == nil {
		return errors.ErrUnsupportedOperation.WithMessagef("push notification store is not configured")
	}

	if taskID == "" {
		return errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	task, rpcErr := h.taskStore.Get(ctx, taskID)

	if rpcErr != nil {
		return rpcErr
	}

	if task == nil {
		return errors.ErrTaskNotFound.WithMessagef("no task with id %s", taskID)
	}

	return nil
}

func (h *RequestHandler) OnSetTaskPushConfig(ctx context.Context, params *a2a.TaskPushNotificationConfig, call *a2a.ServerCallContext) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if params == nil {
		return nil, errors.ErrInvalidParams.WithMessagef("push notification config is required")
	}

	if rpcErr := h.pushChecks(ctx, params.TaskID); rpcErr != nil {
		return nil, rpcErr
	}

	return h.pushStore.Set(ctx, h.ownerResolver(call), *params)
}

func (h *RequestHandler) OnGetTaskPushConfig(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams, call *a2a.ServerCallContext) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if params == nil {
		return nil, errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	if rpcErr := h.pushChecks(ctx, params.ID); rpcErr != nil {
		return nil, rpcErr
	}

	config, rpcErr := h.pushStore.Get(ctx, h.ownerResolver(call), params.ID, params.PushNotificationConfigID)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if config == nil {
		return nil, errors.ErrInvalidParams.WithMessagef(
			"no push notification config found for task %s", params.ID,
		)
	}

	return config, nil
}

func (h *RequestHandler) OnListTaskPushConfig(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams, call *a2a.ServerCallContext) ([]*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if params == nil {
		return nil, errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	if rpcErr := h.pushChecks(ctx, params.ID); rpcErr != nil {
		return nil, rpcErr
	}

	return h.pushStore.List(ctx, h.ownerResolver(call), params.ID)
}

func (h *RequestHandler) OnDeleteTaskPushConfig(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams, call *a2a.ServerCallContext) *errors.RpcError {
	if params == nil {
		return errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	if rpcErr := h.pushChecks(ctx, params.ID); rpcErr != nil {
		return rpcErr
	}

	return h.pushStore.Delete(ctx, h.ownerResolver(call), params.ID, params.PushNotificationConfigID)
}
