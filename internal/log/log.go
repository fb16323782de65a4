// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package log is the process wide logger used by the command and packages that have no hclog.Logger at hand.
package log

import (
	"context"
	"fmt"
	"sync"

	"github.com/pbinitiative/zentask/internal/appcontext"
	"github.com/pbinitiative/zentask/internal/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// Init configures the logger according to the current profile.
func Init() {
	var cfg zap.Config
	if profile.Current == profile.PROD {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %s", err))
	}
	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = get().Sync()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func withContext(ctx context.Context) *zap.SugaredLogger {
	l := get()
	if id, ok := appcontext.ProcessInstanceIdFromContext(ctx); ok {
		l = l.With("processInstanceId", id)
	}
	if worker, ok := appcontext.WorkerIdFromContext(ctx); ok {
		l = l.With("workerId", worker)
	}
	return l
}

func Debug(msg string, args ...any) {
	get().Debugf(msg, args...)
}

func Debugf(ctx context.Context, msg string, args ...any) {
	withContext(ctx).Debugf(msg, args...)
}

func Info(msg string, args ...any) {
	get().Infof(msg, args...)
}

func Infof(ctx context.Context, msg string, args ...any) {
	withContext(ctx).Infof(msg, args...)
}

func Warnf(ctx context.Context, msg string, args ...any) {
	withContext(ctx).Warnf(msg, args...)
}

func Error(msg string, args ...any) {
	get().Errorf(msg, args...)
}

func Errorf(ctx context.Context, msg string, args ...any) {
	withContext(ctx).Errorf(msg, args...)
}
