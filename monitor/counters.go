// Package monitor exposes process-wide counters for the indexing pipeline.
// Counter values also feed the end-of-run quality warnings: a JSON-repair
// rate above 5% or an extraction failure rate above 1% over a run suggests
// the extraction prompt or model needs revision.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JSONRepairs counts LLM outputs that needed JSON repair before parsing.
	JSONRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hippograph_json_repairs_total",
		Help: "LLM extraction outputs that required JSON repair before parsing.",
	})

	// ExtractionFailures counts chunks skipped because extraction output
	// could not be parsed even after repair.
	ExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hippograph_extraction_failures_total",
		Help: "Chunks skipped due to unparseable extraction output.",
	})

	// ValidationPrunes counts entities or relations dropped because a
	// required property was missing.
	ValidationPrunes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hippograph_validation_prunes_total",
		Help: "Extracted entities/relations pruned by schema validation.",
	})

	// FallbackExtractions counts chunks that fell through to a secondary
	// extractor because the primary returned too little.
	FallbackExtractions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hippograph_fallback_extractions_total",
		Help: "Chunks routed to the fallback extraction cascade.",
	})
)

// Thresholds for the end-of-run pipeline quality warning.
const (
	RepairRateWarn  = 0.05
	FailureRateWarn = 0.01
)
