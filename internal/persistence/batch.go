// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package persistence

import (
	"context"
	ssql "database/sql"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/internal/sql"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/rqlite/rqlite/v8/command/proto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DBBatch stages statements and sends them as one transactional request on Flush.
// Reads issued through the batch queries go straight to the database.
type DBBatch struct {
	db               *DB
	stmtToRun        []*proto.Statement
	queries          *sql.Queries
	postFlushActions []func()
	logger           hclog.Logger
}

var _ storage.Batch = &DBBatch{}

func (b *DBBatch) ExecContext(ctx context.Context, query string, args ...interface{}) (ssql.Result, error) {
	b.stmtToRun = append(b.stmtToRun, b.db.generateStatement(query, args...))
	return rqliteResult{}, nil
}

func (b *DBBatch) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, query, args...)
}

func (b *DBBatch) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return b.db.QueryRowContext(ctx, query, args...)
}

func (b *DBBatch) AddPostFlushAction(ctx context.Context, action func()) {
	b.postFlushActions = append(b.postFlushActions, action)
}

func (b *DBBatch) Flush(ctx context.Context) error {
	ctx, span := b.db.tracer.Start(ctx, "rqlite-batch-flush", trace.WithAttributes(
		attribute.Int("statements", len(b.stmtToRun)),
	))
	defer span.End()

	stmts := b.stmtToRun
	actions := b.postFlushActions
	b.stmtToRun = make([]*proto.Statement, 0, 10)
	b.postFlushActions = make([]func(), 0, 5)
	if len(stmts) == 0 {
		for _, action := range actions {
			action()
		}
		return nil
	}

	_, err := b.db.execute(ctx, stmts, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Error("Failed to flush batch", "statements", len(stmts), "err", err)
		return err
	}
	for _, action := range actions {
		action()
	}
	return nil
}

func (b *DBBatch) SaveBpmnProcessDefinition(ctx context.Context, definition runtime.BpmnProcessDefinition) error {
	return SaveBpmnProcessDefinitionWith(ctx, b.queries, definition)
}

func (b *DBBatch) SaveTaskDefinition(ctx context.Context, definition runtime.TaskDefinition) error {
	return SaveTaskDefinitionWith(ctx, b.queries, definition)
}

func (b *DBBatch) SaveBpmnProcessDefinitionRelationship(ctx context.Context, relationship runtime.BpmnProcessDefinitionRelationship) error {
	return SaveBpmnProcessDefinitionRelationshipWith(ctx, b.queries, relationship)
}

func (b *DBBatch) SaveJsonData(ctx context.Context, data runtime.JsonData) error {
	return SaveJsonDataWith(ctx, b.queries, data)
}

func (b *DBBatch) SaveProcessInstance(ctx context.Context, instance runtime.ProcessInstance) error {
	return SaveProcessInstanceWith(ctx, b.queries, instance)
}

func (b *DBBatch) SaveBpmnProcess(ctx context.Context, process runtime.BpmnProcess) error {
	return SaveBpmnProcessWith(ctx, b.queries, process)
}

func (b *DBBatch) DeleteBpmnProcesses(ctx context.Context, ids ...int64) error {
	return DeleteBpmnProcessesWith(ctx, b.queries, ids...)
}

func (b *DBBatch) SaveTask(ctx context.Context, task runtime.Task) error {
	return SaveTaskWith(ctx, b.queries, task)
}

func (b *DBBatch) DeleteTasks(ctx context.Context, guids ...string) error {
	return DeleteTasksWith(ctx, b.queries, guids...)
}

func (b *DBBatch) SaveGroup(ctx context.Context, group runtime.Group) error {
	return SaveGroupWith(ctx, b.queries, group)
}

func (b *DBBatch) SaveHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return SaveHumanTaskWith(ctx, b.queries, task)
}

func (b *DBBatch) SaveHumanTaskUser(ctx context.Context, user runtime.HumanTaskUser) error {
	return SaveHumanTaskUserWith(ctx, b.queries, user)
}

func (b *DBBatch) SaveProcessInstanceEvent(ctx context.Context, event runtime.ProcessInstanceEvent) error {
	return SaveProcessInstanceEventWith(ctx, b.queries, event)
}

func (b *DBBatch) SaveProcessInstanceErrorDetail(ctx context.Context, detail runtime.ProcessInstanceErrorDetail) error {
	return SaveProcessInstanceErrorDetailWith(ctx, b.queries, detail)
}
