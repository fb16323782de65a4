package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStagesAndExports(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStorage()

	var exported []runtime.ProcessInstanceEvent
	var exportedDetails []runtime.ProcessInstanceErrorDetail
	rec := NewRecorder(store, NewLogExporter(hclog.NewNullLogger()), ExporterFunc(func(ctx context.Context, event runtime.ProcessInstanceEvent, details []runtime.ProcessInstanceErrorDetail) {
		exported = append(exported, event)
		exportedDetails = append(exportedDetails, details...)
	}))
	rec.now = func() time.Time { return time.Unix(100, 0) }

	batch := store.NewBatch()
	_, err := rec.Record(ctx, batch, 1, Event{Type: runtime.EventTypeTaskCompleted, TaskGuid: "guid-1"})
	require.NoError(t, err)
	failed, err := rec.Record(ctx, batch, 1, Event{Type: runtime.EventTypeTaskFailed, TaskGuid: "guid-2", Err: errors.New("boom")})
	require.NoError(t, err)
	assert.Empty(t, exported)

	require.NoError(t, batch.Flush(ctx))
	require.Len(t, exported, 2)
	assert.Equal(t, runtime.EventTypeTaskCompleted, exported[0].EventType)
	assert.Equal(t, float64(100), exported[0].Timestamp)
	require.Len(t, exportedDetails, 1)
	assert.Equal(t, "boom", exportedDetails[0].Message)

	stored, err := store.FindProcessInstanceEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	details, err := store.FindProcessInstanceErrorDetails(ctx, failed.Id)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "boom", details[0].Message)
}

func TestFailedFlushDoesNotExport(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStorage()
	exported := 0
	rec := NewRecorder(store, ExporterFunc(func(context.Context, runtime.ProcessInstanceEvent, []runtime.ProcessInstanceErrorDetail) {
		exported++
	}))

	batch := store.NewBatch()
	_, err := rec.Record(ctx, batch, 1, Event{Type: runtime.EventTypeProcessInstanceSuspended})
	require.NoError(t, err)
	// an error detail pointing to a missing event fails the flush
	require.NoError(t, batch.SaveProcessInstanceErrorDetail(ctx, runtime.ProcessInstanceErrorDetail{Id: 1, ProcessInstanceEventId: -1}))
	require.Error(t, batch.Flush(ctx))
	assert.Equal(t, 0, exported)
}
