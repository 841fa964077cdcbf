package dispatcher

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pilgrimsafe/tracker/internal/dispatcher"

// loopCommand labels owner loop work in the dispatcher metrics.
const loopCommand = "loop"

func commandAttr(command string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("command", command))
}
