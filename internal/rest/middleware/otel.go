// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zentask/internal/config"
	otelint "github.com/pbinitiative/zentask/internal/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

// Opentelemetry traces requests through otelhttp, names the span after the chi route and
// records the request metrics.
func Opentelemetry(conf config.Config) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(transferHeaderAttributes(r, conf.Tracing.TransferHeaders)...)
			ctx := transferHeadersCtx(r.Context(), r, conf.Tracing.TransferHeaders)

			rec := &statusRecorder{ResponseWriter: w}
			startTime := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))

			routePattern := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				routePattern = rctx.RoutePattern()
			}
			if routePattern != "" {
				span.SetName(r.Method + " " + routePattern)
				span.SetAttributes(attribute.String("http.route", routePattern))
			}
			recordRequest(r, routePattern, rec, startTime)
		})
		return otelhttp.NewHandler(routed, conf.Name)
	}
}

func recordRequest(r *http.Request, routePattern string, rec *statusRecorder, startTime time.Time) {
	if otelint.RequestTotal == nil {
		// instruments are created by SetupOtel
		return
	}
	ctx := r.Context()
	attrs := metric.WithAttributes(
		attribute.String("path", routePattern),
		attribute.String("method", r.Method),
		attribute.Int("status", rec.statusCode),
	)
	otelint.RequestTotal.Add(ctx, 1)
	otelint.RequestUriTotal.Add(ctx, 1, attrs)
	if r.ContentLength >= 0 {
		otelint.RequestBodySize.Add(ctx, float64(r.ContentLength), attrs)
	}
	if rec.written > 0 {
		otelint.ResponseBodySize.Add(ctx, float64(rec.written), attrs)
	}
	otelint.RequestDuration.Record(ctx, float64(time.Since(startTime).Microseconds())/1000, attrs)
}

func transferHeadersCtx(ctx context.Context, r *http.Request, transferHeaders []string) context.Context {
	for _, header := range transferHeaders {
		ctx = context.WithValue(ctx, otelint.TransferHeaderKey(header), r.Header.Get(header))
	}
	return ctx
}

func transferHeaderAttributes(r *http.Request, transferHeaders []string) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, len(transferHeaders))
	for i, header := range transferHeaders {
		attributes[i] = attribute.String(header, r.Header.Get(header))
	}
	return attributes
}
