package templates

import (
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/shopspring/decimal"
)

// Step names shared by the built-in methods.
const (
	StepDesignPrep   = "Design Prep"
	StepFrameSetup   = "Frame Setup"
	StepPrinting     = "Printing"
	StepSewing       = "Sewing"
	StepQC           = "Quality Control"
	StepFinishing    = "Finishing"
	StepHeatTransfer = "Heat Transfer"
	StepCutting      = "Cutting"
	StepPowderCure   = "Powder Curing"
	StepGarmentPrep  = "Garment Prep"
	StepHeatPress    = "Heat Press"
	StepDigitizing   = "Digitizing"
	StepSampleRun    = "Sample Run"
	StepHooping      = "Hooping"
	StepEmbroidery   = "Embroidery"
	StepTrimming     = "Thread Trimming"
)

func step(name, workcenter string, hours float64, preds ...string) models.PipelineStepTemplate {
	return models.PipelineStepTemplate{
		Name:          name,
		Workcenter:    workcenter,
		StandardHours: decimal.NewFromFloat(hours),
		Predecessors:  preds,
		Join:          models.JoinAll,
	}
}

// DefaultCatalog returns the built-in routings for the supported production methods.
func DefaultCatalog() Catalog {
	silkscreen := []models.PipelineStepTemplate{
		withMaterials(step(StepDesignPrep, "GRAPHIC_ARTIST", 4), "artwork file"),
		withMaterials(step(StepFrameSetup, "SCREEN_MAKER", 3, StepDesignPrep), "mesh screen", "emulsion"),
		withChecks(withMaterials(step(StepPrinting, "PRINTER", 8, StepFrameSetup), "plastisol ink", "blank garments"), "first-piece color match"),
		outsourceable(step(StepSewing, "SEWER", 16, StepPrinting)),
		withChecks(step(StepQC, "QC_INSPECTOR", 4, StepSewing), "print adhesion", "stitch density", "measurement"),
		withMaterials(step(StepFinishing, "FINISHER", 6, StepQC), "polybags", "hang tags"),
	}

	sublimation := []models.PipelineStepTemplate{
		withMaterials(step(StepDesignPrep, "GRAPHIC_ARTIST", 4), "artwork file"),
		withMaterials(step(StepPrinting, "PRINTER", 6, StepDesignPrep), "sublimation paper", "sublimation ink"),
		withChecks(withMaterials(step(StepHeatTransfer, "HEAT_PRESS_OPERATOR", 6, StepPrinting), "polyester fabric"), "color fastness"),
		step(StepCutting, "CUTTER", 5, StepHeatTransfer),
		outsourceable(step(StepSewing, "SEWER", 14, StepCutting)),
		withChecks(step(StepQC, "QC_INSPECTOR", 3, StepSewing), "print alignment", "measurement"),
		step(StepFinishing, "FINISHER", 4, StepQC),
	}

	dtf := []models.PipelineStepTemplate{
		withMaterials(step(StepDesignPrep, "GRAPHIC_ARTIST", 3), "artwork file"),
		withMaterials(step(StepPrinting, "PRINTER", 4, StepDesignPrep), "PET film", "DTF ink"),
		withMaterials(step(StepPowderCure, "PRINTER", 2, StepPrinting), "adhesive powder"),
		parallel(withMaterials(step(StepGarmentPrep, "FINISHER", 2), "blank garments")),
		withChecks(step(StepHeatPress, "HEAT_PRESS_OPERATOR", 5, StepPowderCure, StepGarmentPrep), "peel test"),
		withChecks(step(StepQC, "QC_INSPECTOR", 2, StepHeatPress), "wash test", "placement"),
		step(StepFinishing, "FINISHER", 3, StepQC),
	}

	embroidery := []models.PipelineStepTemplate{
		outsourceable(withMaterials(step(StepDigitizing, "DIGITIZER", 5), "artwork file")),
		withChecks(step(StepSampleRun, "EMBROIDERER", 2, StepDigitizing), "sample approval"),
		parallel(withMaterials(step(StepHooping, "EMBROIDERER", 3), "stabilizer", "blank garments")),
		withMaterials(step(StepEmbroidery, "EMBROIDERER", 12, StepSampleRun, StepHooping), "embroidery thread"),
		step(StepTrimming, "FINISHER", 3, StepEmbroidery),
		withChecks(step(StepQC, "QC_INSPECTOR", 2, StepTrimming), "stitch count", "thread breaks"),
		step(StepFinishing, "FINISHER", 3, StepQC),
	}

	return Catalog{
		models.MethodSilkscreen:  silkscreen,
		models.MethodSublimation: sublimation,
		models.MethodDTF:         dtf,
		models.MethodEmbroidery:  embroidery,
	}
}

// Default builds a registry over DefaultCatalog.
func Default() *Registry {
	r, err := NewRegistry(DefaultCatalog())
	if err != nil {
		panic(err)
	}
	return r
}

func withMaterials(t models.PipelineStepTemplate, materials ...string) models.PipelineStepTemplate {
	t.RequiredMaterials = materials
	return t
}

func withChecks(t models.PipelineStepTemplate, checks ...string) models.PipelineStepTemplate {
	t.QualityCheckpoints = checks
	return t
}

func outsourceable(t models.PipelineStepTemplate) models.PipelineStepTemplate {
	t.Outsourceable = true
	return t
}

func parallel(t models.PipelineStepTemplate) models.PipelineStepTemplate {
	t.ParallelAllowed = true
	return t
}
