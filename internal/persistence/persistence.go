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
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pbinitiative/zentask/internal/config"
	otelPkg "github.com/pbinitiative/zentask/internal/otel"
	"github.com/pbinitiative/zentask/internal/profile"
	"github.com/pbinitiative/zentask/internal/sql"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/pbinitiative/zentask/pkg/zenflake"
	"github.com/rqlite/rqlite/v8/command/proto"
	"github.com/rqlite/rqlite/v8/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DB is the storage.Storage backed by an embedded rqlite database file. Statements are sent
// to it as rqlite requests, a flushed batch is one transactional request.
type DB struct {
	store   *db.DB
	Queries *sql.Queries
	cfg     config.Persistence
	logger  hclog.Logger
	ids     *zenflake.Generator
	tracer  trace.Tracer
	pdCache *expirable.LRU[int64, runtime.BpmnProcessDefinition]
	tdCache *expirable.LRU[int64, []runtime.TaskDefinition]
}

// GenerateId implements storage.Storage.
func (rq *DB) GenerateId() int64 {
	return rq.ids.Generate()
}

// Open opens (and creates when missing) the database file and applies the migrations.
func Open(ctx context.Context, cfg config.Persistence, cacheCfg config.Cache, nodeId int64, logger hclog.Logger) (*DB, error) {
	ids, err := zenflake.NewGenerator(nodeId)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator for node %d: %w", nodeId, err)
	}
	store, err := db.Open(cfg.Path, true, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}
	// rqlite opens the file with synchronous=OFF and leaves durability to its raft log
	if err := store.SetSynchronousMode(db.SynchronousNormal); err != nil {
		_ = store.Close()
		return nil, err
	}
	busyTimeout := int(cfg.BusyTimeout.Milliseconds())
	if err := store.SetBusyTimeout(busyTimeout, busyTimeout); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to set busy timeout of %s: %w", cfg.Path, err)
	}

	rq := &DB{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		ids:     ids,
		tracer:  otel.GetTracerProvider().Tracer("zentask-rqlite"),
		pdCache: expirable.NewLRU[int64, runtime.BpmnProcessDefinition](cacheCfg.DefinitionCacheSize, nil, cacheCfg.DefinitionCacheTTL),
		tdCache: expirable.NewLRU[int64, []runtime.TaskDefinition](cacheCfg.DefinitionCacheSize, nil, cacheCfg.DefinitionCacheTTL),
	}
	rq.Queries = sql.New(rq)

	if err := rq.migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return rq, nil
}

func (rq *DB) migrate(ctx context.Context) error {
	migrations, err := sql.GetMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	for i, m := range migrations {
		if _, err := rq.execute(ctx, []*proto.Statement{{Sql: m}}, false); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i, err)
		}
	}
	rq.logger.Debug("Database migrated", "migrations", len(migrations))
	return nil
}

// Close truncates the WAL into the database file and closes it.
func (rq *DB) Close() error {
	if err := rq.store.Checkpoint(db.CheckpointTruncate); err != nil {
		rq.logger.Warn("Failed to checkpoint database on close", "path", rq.store.Path(), "err", err)
	}
	return rq.store.Close()
}

// Ping is used by the status endpoint.
func (rq *DB) Ping(ctx context.Context) error {
	_, err := rq.queryDatabase(ctx, &proto.Statement{Sql: "SELECT 1"})
	return err
}

func (rq *DB) generateStatement(query string, parameters ...interface{}) *proto.Statement {
	params, err := sql.ToParameters(parameters...)
	if err != nil {
		rq.logger.Error(err.Error())
		if profile.Current == profile.DEV || profile.Current == profile.TEST {
			panic(err.Error())
		}
	}
	return &proto.Statement{
		Sql:        query,
		Parameters: params,
	}
}

type rqliteResult struct {
	lastInsertId int64
	rowsAffected int64
}

func (r rqliteResult) LastInsertId() (int64, error) {
	return r.lastInsertId, nil
}

func (r rqliteResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// dbTimeout hands the context deadline to rqlite, which does not take a context.
func dbTimeout(ctx context.Context) int64 {
	if deadline, ok := ctx.Deadline(); ok {
		return int64(time.Until(deadline))
	}
	return 0
}

// execute runs stmts as one request. Within a transaction the first failing statement rolls
// back the whole request.
func (rq *DB) execute(ctx context.Context, stmts []*proto.Statement, transaction bool) (rqliteResult, error) {
	res := rqliteResult{lastInsertId: -1}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	results, err := rq.store.Execute(&proto.Request{
		Transaction: transaction,
		Statements:  stmts,
		DbTimeout:   dbTimeout(ctx),
	}, false)
	if err != nil {
		return res, err
	}
	for i, r := range results {
		if msg := r.GetError(); msg != "" {
			return res, fmt.Errorf("statement %d of %d failed (%s): %s", i+1, len(stmts), stmts[i].Sql, msg)
		}
		if e := r.GetE(); e != nil {
			res.lastInsertId = e.LastInsertId
			res.rowsAffected += e.RowsAffected
		}
	}
	rq.checkpoint()
	return res, nil
}

// checkpoint moves the WAL into the database file once it outgrows the configured size,
// rqlite turns automatic checkpoints off.
func (rq *DB) checkpoint() {
	size, err := rq.store.WALSize()
	if err != nil || size < rq.cfg.WalCheckpointSize {
		return
	}
	if err := rq.store.Checkpoint(db.CheckpointTruncate); err != nil {
		rq.logger.Warn("Failed to checkpoint database", "walSize", size, "err", err)
	}
}

func (rq *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (ssql.Result, error) {
	ctx, execSpan := rq.tracer.Start(ctx, "rqlite-exec", trace.WithAttributes(
		attribute.String(otelPkg.AttributeExec, query),
		attribute.String(otelPkg.AttributeArgs, fmt.Sprintf("%v", args)),
	))
	defer func() {
		execSpan.End()
	}()
	result, err := rq.execute(ctx, []*proto.Statement{rq.generateStatement(query, args...)}, false)
	if err != nil {
		execSpan.RecordError(err)
		execSpan.SetStatus(codes.Error, err.Error())
		rq.logger.Error("Error executing SQL statement", "err", err)
		return nil, err
	}
	return result, nil
}

func (rq *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, querySpan := rq.tracer.Start(ctx, "rqlite-query", trace.WithAttributes(
		attribute.String(otelPkg.AttributeQuery, query),
		attribute.String(otelPkg.AttributeArgs, fmt.Sprintf("%v", args)),
	))
	defer func() {
		querySpan.End()
	}()
	rows, err := rq.queryDatabase(ctx, rq.generateStatement(query, args...))
	if err != nil {
		querySpan.RecordError(err)
		querySpan.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return sql.ConstructRows(ctx, rows.Columns, rows.Values), nil
}

func (rq *DB) queryDatabase(ctx context.Context, stmt *proto.Statement) (*proto.QueryRows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := rq.store.Query(&proto.Request{
		Statements: []*proto.Statement{stmt},
		DbTimeout:  dbTimeout(ctx),
	}, false)
	if err == nil && len(results) != 1 {
		err = fmt.Errorf("expected one result, got %d", len(results))
	}
	if err == nil && results[0].Error != "" {
		err = errors.New(results[0].Error)
	}
	if err != nil {
		err = fmt.Errorf("error executing SQL statement %s: %w", stmt.Sql, err)
		rq.logger.Error(err.Error())
		return nil, err
	}
	return results[0], nil
}

func (rq *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	rows, err := rq.QueryContext(ctx, query, args...)
	if err != nil {
		return sql.ConstructRow(ctx, []string{}, nil, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return sql.ConstructRow(ctx, []string{}, nil, nil)
	}
	return sql.ConstructRowFromRows(ctx, rows)
}

var _ storage.Storage = &DB{}

func (rq *DB) NewBatch() storage.Batch {
	batch := &DBBatch{
		db:               rq,
		stmtToRun:        make([]*proto.Statement, 0, 10),
		postFlushActions: make([]func(), 0, 5),
		logger:           rq.logger,
	}
	batch.queries = sql.New(batch)
	return batch
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, ssql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, storage.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
