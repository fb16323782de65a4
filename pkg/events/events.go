// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package events writes the audit log of process instances and hands every committed event
// to the configured exporters.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
)

// Exporter receives events after the batch that recorded them was flushed.
type Exporter interface {
	Export(ctx context.Context, event runtime.ProcessInstanceEvent, details []runtime.ProcessInstanceErrorDetail)
}

type ExporterFunc func(ctx context.Context, event runtime.ProcessInstanceEvent, details []runtime.ProcessInstanceErrorDetail)

func (f ExporterFunc) Export(ctx context.Context, event runtime.ProcessInstanceEvent, details []runtime.ProcessInstanceErrorDetail) {
	f(ctx, event, details)
}

type IdGenerator interface {
	GenerateId() int64
}

// Event is what callers record. TaskGuid, UserId and Err are optional.
type Event struct {
	Type     runtime.ProcessInstanceEventType
	TaskGuid string
	UserId   *int64
	Err      error
}

type Recorder struct {
	ids       IdGenerator
	exporters []Exporter
	now       func() time.Time
}

func NewRecorder(ids IdGenerator, exporters ...Exporter) *Recorder {
	return &Recorder{
		ids:       ids,
		exporters: exporters,
		now:       time.Now,
	}
}

// Record stages the event, and its error detail when e.Err is set, into batch. Exporters are
// called once the batch is flushed.
func (r *Recorder) Record(ctx context.Context, batch storage.Batch, processInstanceId int64, e Event) (runtime.ProcessInstanceEvent, error) {
	event := runtime.ProcessInstanceEvent{
		Id:                r.ids.GenerateId(),
		ProcessInstanceId: processInstanceId,
		EventType:         e.Type,
		UserId:            e.UserId,
		Timestamp:         runtime.ToSeconds(r.now()),
	}
	if e.TaskGuid != "" {
		guid := e.TaskGuid
		event.TaskGuid = &guid
	}
	if err := batch.SaveProcessInstanceEvent(ctx, event); err != nil {
		return event, fmt.Errorf("failed to stage %s event: %w", e.Type, err)
	}

	var details []runtime.ProcessInstanceErrorDetail
	if e.Err != nil {
		detail := runtime.ProcessInstanceErrorDetail{
			Id:                     r.ids.GenerateId(),
			ProcessInstanceEventId: event.Id,
			Message:                e.Err.Error(),
			Stacktrace:             fmt.Sprintf("%+v", e.Err),
		}
		if err := batch.SaveProcessInstanceErrorDetail(ctx, detail); err != nil {
			return event, fmt.Errorf("failed to stage error detail of %s event: %w", e.Type, err)
		}
		details = append(details, detail)
	}

	if len(r.exporters) > 0 {
		exportCtx := context.WithoutCancel(ctx)
		batch.AddPostFlushAction(ctx, func() {
			for _, exp := range r.exporters {
				exp.Export(exportCtx, event, details)
			}
		})
	}
	return event, nil
}

// LogExporter writes events to an hclog logger.
type LogExporter struct {
	logger hclog.Logger
}

func NewLogExporter(logger hclog.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (l *LogExporter) Export(ctx context.Context, event runtime.ProcessInstanceEvent, details []runtime.ProcessInstanceErrorDetail) {
	args := []any{"instance", event.ProcessInstanceId, "type", event.EventType}
	if event.TaskGuid != nil {
		args = append(args, "task", *event.TaskGuid)
	}
	if event.UserId != nil {
		args = append(args, "user", *event.UserId)
	}
	if len(details) > 0 {
		for _, d := range details {
			l.logger.Warn("Process instance event", append(args, "error", d.Message)...)
		}
		return
	}
	l.logger.Info("Process instance event", args...)
}
