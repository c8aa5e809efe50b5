package main

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

func newUUID() string {
	return uuid.New().String()
}

// prometheusRegistryOrNil returns a process-local registry when
// verbose logging is on (so a curious operator running with -v also
// gets telemetry wired up to inspect), and nil otherwise — Engine
// treats a nil *telemetry.Metrics as "telemetry disabled".
func prometheusRegistryOrNil() prometheus.Registerer {
	if !verbose {
		return nil
	}
	return prometheus.NewRegistry()
}
