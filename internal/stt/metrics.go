package stt

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	chunks    metric.Int64Counter
	fragments metric.Int64Counter
	failures  metric.Int64Counter
	attrs     metric.MeasurementOption
}

func newInstruments(variant string, log *slog.Logger) *instruments {
	meter := otel.Meter("github.com/loqalabs/whisperlite/stt")
	in := &instruments{attrs: metric.WithAttributes(attribute.String("variant", variant))}
	var err error
	if in.chunks, err = meter.Int64Counter("whisperlite.stt.chunks", metric.WithDescription("Chunks submitted to the recognizer")); err != nil {
		log.Warn("failed to create chunk counter", slogError(err))
	}
	if in.fragments, err = meter.Int64Counter("whisperlite.stt.fragments", metric.WithDescription("Fragments produced by the recognizer")); err != nil {
		log.Warn("failed to create fragment counter", slogError(err))
	}
	if in.failures, err = meter.Int64Counter("whisperlite.stt.failures", metric.WithDescription("Per-chunk recognition failures")); err != nil {
		log.Warn("failed to create failure counter", slogError(err))
	}
	return in
}

func (in *instruments) chunk() { in.add(in.chunks) }

func (in *instruments) fragment() { in.add(in.fragments) }

func (in *instruments) failure() { in.add(in.failures) }

func (in *instruments) add(c metric.Int64Counter) {
	if c != nil {
		c.Add(context.Background(), 1, in.attrs)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
