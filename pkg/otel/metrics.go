package otel

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

type ProcessorMetrics struct {
	ProcessesStarted  metric.Int64Counter
	ProcessesEnded    metric.Int64Counter
	ReconcilePasses   metric.Int64Counter
	ReconcileDuration metric.Float64Histogram
	TasksUpserted     metric.Int64Counter
	TasksDeleted      metric.Int64Counter
	HumanTasksCreated metric.Int64Counter
	ProcessResets     metric.Int64Counter
	LockContentions   metric.Int64Counter
	NoPotentialOwners metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*ProcessorMetrics, error) {
	var errJoin error

	processesStarted, err := meter.Int64Counter("processes_started", metric.WithDescription("Number of process instances started"))
	errJoin = errors.Join(errJoin, err)

	processesEnded, err := meter.Int64Counter("processes_ended", metric.WithDescription("Number of process instances that reached a final status"))
	errJoin = errors.Join(errJoin, err)

	reconcilePasses, err := meter.Int64Counter("reconcile_passes", metric.WithDescription("Number of reconciliation passes committed"))
	errJoin = errors.Join(errJoin, err)

	reconcileDuration, err := meter.Float64Histogram("reconcile_duration", metric.WithUnit("ms"), metric.WithDescription("Time spent in one reconciliation pass, milliseconds"))
	errJoin = errors.Join(errJoin, err)

	tasksUpserted, err := meter.Int64Counter("tasks_upserted", metric.WithDescription("Number of task records written"))
	errJoin = errors.Join(errJoin, err)

	tasksDeleted, err := meter.Int64Counter("tasks_deleted", metric.WithDescription("Number of task records deleted"))
	errJoin = errors.Join(errJoin, err)

	humanTasksCreated, err := meter.Int64Counter("human_tasks_created", metric.WithDescription("Number of human task records created"))
	errJoin = errors.Join(errJoin, err)

	processResets, err := meter.Int64Counter("process_resets", metric.WithDescription("Number of process instances rewound to a task"))
	errJoin = errors.Join(errJoin, err)

	lockContentions, err := meter.Int64Counter("lock_contentions", metric.WithDescription("Number of times a process instance lock could not be acquired"))
	errJoin = errors.Join(errJoin, err)

	noPotentialOwners, err := meter.Int64Counter("no_potential_owners", metric.WithDescription("Number of human tasks without any potential owner"))
	errJoin = errors.Join(errJoin, err)

	metrics := ProcessorMetrics{
		ProcessesStarted:  processesStarted,
		ProcessesEnded:    processesEnded,
		ReconcilePasses:   reconcilePasses,
		ReconcileDuration: reconcileDuration,
		TasksUpserted:     tasksUpserted,
		TasksDeleted:      tasksDeleted,
		HumanTasksCreated: humanTasksCreated,
		ProcessResets:     processResets,
		LockContentions:   lockContentions,
		NoPotentialOwners: noPotentialOwners,
	}
	return &metrics, errJoin
}
