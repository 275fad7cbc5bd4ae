package upload

import (
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/imrenagi/go-drive-upload/upload"

var (
	meter  = otel.Meter(instrumentationName)
	tracer = otel.Tracer(instrumentationName)

	bytesCounter    = int64Counter("upload.bytes", "Bytes written to storage", "By")
	sessionsCounter = int64Counter("upload.sessions", "Upload sessions by terminal status", "{session}")
	progressCounter = int64Counter("upload.progress_events", "Progress events sent to subscribers", "{event}")
)

func int64Counter(name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit))
	if err != nil {
		log.Error().Err(err).Str("instrument", name).Msg("failed to create counter")
		return noop.Int64Counter{}
	}
	return c
}
