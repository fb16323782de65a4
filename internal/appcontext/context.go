package appcontext

import (
	"context"
)

type EXECUTION_CONTEXT string

var (
	ProcessInstanceIdKey EXECUTION_CONTEXT = "processInstanceId"
	WorkerIdKey          EXECUTION_CONTEXT = "workerId"
)

// WithProcessInstanceId marks ctx as belonging to the processing of one process instance.
func WithProcessInstanceId(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ProcessInstanceIdKey, id)
}

func ProcessInstanceIdFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(ProcessInstanceIdKey)
	if v == nil {
		return 0, false
	}
	return v.(int64), true
}

func WithWorkerId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, WorkerIdKey, id)
}

func WorkerIdFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(WorkerIdKey)
	if v == nil {
		return "", false
	}
	return v.(string), true
}
