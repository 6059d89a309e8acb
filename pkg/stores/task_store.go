package stores

import (
	"context"
	"encoding/base64"
	"sort"
	"strings"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

/*
TaskStore persists authoritative task snapshots.  Get returns nil without
an error when the task does not exist; deciding whether that is a protocol
error belongs to the request handler, not the store.
*/
type TaskStore interface {
	Save(ctx context.Context, task *a2a.Task) *errors.RpcError
	Get(ctx context.Context, taskID string) (*a2a.Task, *errors.RpcError)
	Delete(ctx context.Context, taskID string) *errors.RpcError
	List(ctx context.Context, params a2a.ListTasksParams) (*a2a.ListTasksResult, *errors.RpcError)
}

/*
EncodePageToken renders the id of the last task on a page as an opaque
continuation token.
*/
func EncodePageToken(taskID string) string {
	return base64.URLEncoding.EncodeToString([]byte(taskID))
}

/*
DecodePageToken recovers the task id from a continuation token.  Both
padded and unpadded variants of the same token decode to the same id.
*/
func DecodePageToken(token string) (string, *errors.RpcError) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return "", errors.ErrInvalidParams.WithMessagef("Invalid page token: %s", token)
	}

	return string(raw), nil
}

/*
ApplyListQuery runs the full list pipeline (filter, order, page) over an
unordered snapshot of tasks.  Backends without a query planner of their own
share it so paging behaves identically everywhere.
*/
func ApplyListQuery(tasks []*a2a.Task, params a2a.ListTasksParams) (*a2a.ListTasksResult, *errors.RpcError) {
	tasks = filterTasks(tasks, params)
	sortTasks(tasks)

	return paginate(tasks, params)
}

// filterTasks applies the list filters in place of a query planner.
func filterTasks(tasks []*a2a.Task, params a2a.ListTasksParams) []*a2a.Task {
	filtered := make([]*a2a.Task, 0, len(tasks))

	for _, task := range tasks {
		if params.ContextID != "" && task.ContextID != params.ContextID {
			continue
		}

		if params.Status != "" && task.Status.State != params.Status {
			continue
		}

		if params.StatusTimestampAfter != nil {
			if task.Status.Timestamp == nil || !task.Status.Timestamp.After(*params.StatusTimestampAfter) {
				continue
			}
		}

		filtered = append(filtered, task)
	}

	return filtered
}

// sortTasks orders by status timestamp descending, ties broken by id
// descending; tasks without a timestamp sort last.
func sortTasks(tasks []*a2a.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]

		switch {
		case a.Status.Timestamp == nil && b.Status.Timestamp == nil:
			return a.ID > b.ID
		case a.Status.Timestamp == nil:
			return false
		case b.Status.Timestamp == nil:
			return true
		case a.Status.Timestamp.Equal(*b.Status.Timestamp):
			return a.ID > b.ID
		}

		return a.Status.Timestamp.After(*b.Status.Timestamp)
	})
}

// paginate slices one page out of the sorted, filtered task list, resolving
// the page token and computing the follow-up token.
func paginate(tasks []*a2a.Task, params a2a.ListTasksParams) (*a2a.ListTasksResult, *errors.RpcError) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = a2a.DefaultListPageSize
	}

	start := 0

	if params.PageToken != "" {
		lastID, rpcErr := DecodePageToken(params.PageToken)
		if rpcErr != nil {
			return nil, rpcErr
		}

		found := false
		for i, task := range tasks {
			if task.ID == lastID {
				start = i + 1
				found = true
				break
			}
		}

		if !found {
			return nil, errors.ErrInvalidParams.WithMessagef("Invalid page token: %s", params.PageToken)
		}
	}

	end := start + pageSize
	if end > len(tasks) {
		end = len(tasks)
	}

	page := make([]*a2a.Task, 0, end-start)
	for _, task := range tasks[start:end] {
		page = append(page, task.Clone().TrimHistory(params.HistoryLength))
	}

	result := &a2a.ListTasksResult{
		Tasks:     page,
		PageSize:  pageSize,
		TotalSize: len(tasks),
	}

	if end < len(tasks) && len(page) > 0 {
		result.NextPageToken = EncodePageToken(page[len(page)-1].ID)
	}

	return result, nil
}
