package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductionMethod names a production route, e.g. SILKSCREEN.
type ProductionMethod string

const (
	MethodSilkscreen  ProductionMethod = "SILKSCREEN"
	MethodSublimation ProductionMethod = "SUBLIMATION"
	MethodDTF         ProductionMethod = "DTF"
	MethodEmbroidery  ProductionMethod = "EMBROIDERY"
)

type JoinType string

const (
	JoinAll JoinType = "ALL" // every predecessor must be done
	JoinAny JoinType = "ANY" // one finished predecessor suffices
)

// Valid reports whether j is a known join type.
func (j JoinType) Valid() bool {
	return j == JoinAll || j == JoinAny
}

// PipelineStepTemplate is one authored step of a production method.
type PipelineStepTemplate struct {
	Method             ProductionMethod `json:"method"`
	Name               string           `json:"name"`                // Unique within the method
	Workcenter         string           `json:"workcenter"`          // Responsible function or station
	StandardHours      decimal.Decimal  `json:"standard_hours"`      // Standard duration
	Predecessors       []string         `json:"predecessors"`        // Step names of the same method
	Join               JoinType         `json:"join"`                // Defaults to ALL
	Outsourceable      bool             `json:"outsourceable"`       // May be subcontracted
	ParallelAllowed    bool             `json:"parallel_allowed"`    // May overlap with sibling steps
	RequiredMaterials  []string         `json:"required_materials"`  // Materials to stage before start
	QualityCheckpoints []string         `json:"quality_checkpoints"` // Checks performed during the step
}

// StandardDuration converts the standard hours to a duration, truncated to the second.
func (t PipelineStepTemplate) StandardDuration() time.Duration {
	seconds := t.StandardHours.Mul(decimal.NewFromInt(3600)).IntPart()
	return time.Duration(seconds) * time.Second
}
