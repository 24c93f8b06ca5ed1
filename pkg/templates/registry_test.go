package templates_test

import (
	"strings"
	"testing"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/templates"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tpl(name string, preds ...string) models.PipelineStepTemplate {
	return models.PipelineStepTemplate{Name: name, Workcenter: "WC", StandardHours: decimal.NewFromInt(1), Predecessors: preds}
}

func TestRegistry(t *testing.T) {
	t.Run("DefaultSilkscreen", func(t *testing.T) {
		r := templates.Default()
		steps, err := r.Get(models.MethodSilkscreen)
		require.NoError(t, err)
		names := make([]string, len(steps))
		for i, s := range steps {
			names[i] = s.Name
		}
		assert.Equal(t, []string{
			templates.StepDesignPrep, templates.StepFrameSetup, templates.StepPrinting,
			templates.StepSewing, templates.StepQC, templates.StepFinishing,
		}, names)
		assert.Empty(t, steps[0].Predecessors)
		assert.Equal(t, []string{templates.StepDesignPrep}, steps[1].Predecessors)
		assert.Equal(t, []string{templates.StepFrameSetup}, steps[2].Predecessors)
		assert.Equal(t, models.JoinAll, steps[3].Join)
	})

	t.Run("Methods", func(t *testing.T) {
		assert.Equal(t, []models.ProductionMethod{
			models.MethodDTF, models.MethodEmbroidery, models.MethodSilkscreen, models.MethodSublimation,
		}, templates.Default().Methods())
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		_, err := templates.Default().Get("SCREENLESS")
		assert.True(t, errors.Is(err, models.ErrUnknownMethod))
		assert.Contains(t, err.Error(), "SCREENLESS")
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		r := templates.Default()
		steps, err := r.Get(models.MethodDTF)
		require.NoError(t, err)
		steps[0].Name = "mutated"
		again, err := r.Get(models.MethodDTF)
		require.NoError(t, err)
		assert.Equal(t, templates.StepDesignPrep, again[0].Name)
	})

	t.Run("CycleRejected", func(t *testing.T) {
		_, err := templates.NewRegistry(templates.Catalog{
			"LOOP": {tpl("a", "c"), tpl("b", "a"), tpl("c", "b"), tpl("d")},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrCyclicDependency))
		var cyc *models.CyclicDependencyError
		require.True(t, errors.As(err, &cyc))
		assert.Equal(t, models.ProductionMethod("LOOP"), cyc.Method)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, cyc.Steps)
	})

	t.Run("SelfReferenceIsCycle", func(t *testing.T) {
		_, err := templates.NewRegistry(templates.Catalog{"SELF": {tpl("a"), tpl("b", "a", "b")}})
		var cyc *models.CyclicDependencyError
		require.True(t, errors.As(err, &cyc))
		assert.Equal(t, models.ProductionMethod("SELF"), cyc.Method)
		assert.Equal(t, []string{"b"}, cyc.Steps)
		assert.False(t, errors.Is(err, models.ErrInvalidInput))
	})

	t.Run("AuthoringErrors", func(t *testing.T) {
		cases := map[string][]models.PipelineStepTemplate{
			"duplicate step":      {tpl("a"), tpl("a")},
			"unknown predecessor": {tpl("a", "ghost")},
			"declared after it":   {tpl("a", "b"), tpl("b")},
		}
		for want, steps := range cases {
			_, err := templates.NewRegistry(templates.Catalog{"X": steps})
			require.Error(t, err, want)
			assert.True(t, errors.Is(err, models.ErrInvalidInput), want)
			assert.Contains(t, err.Error(), want)
		}
	})

	t.Run("DefaultJoin", func(t *testing.T) {
		r, err := templates.NewRegistry(templates.Catalog{"X": {tpl("a"), tpl("b", "a")}})
		require.NoError(t, err)
		steps, _ := r.Get("X")
		assert.Equal(t, models.JoinAll, steps[1].Join)
		assert.Equal(t, models.ProductionMethod("X"), steps[1].Method)
	})
}

func TestReadCSV(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		data := `method,step,workcenter,standard_hours,predecessors,join,outsourceable,parallel,materials,checkpoints
puff,Design Prep,GRAPHIC_ARTIST,2.5,,,false,false,artwork,
puff,Screen,SCREEN_MAKER,3,Design Prep,,true,false,mesh|emulsion,
puff,Blank Pull,WAREHOUSE,1,,,,true,,
puff,Printing,PRINTER,6,Screen|Blank Pull,any,false,false,puff ink,color|height
`
		catalog, err := templates.ReadCSV(strings.NewReader(data))
		require.NoError(t, err)
		steps := catalog["PUFF"]
		require.Len(t, steps, 4)
		assert.True(t, decimal.NewFromFloat(2.5).Equal(steps[0].StandardHours))
		assert.Equal(t, []string{"mesh", "emulsion"}, steps[1].RequiredMaterials)
		assert.True(t, steps[1].Outsourceable)
		assert.True(t, steps[2].ParallelAllowed)
		assert.Equal(t, models.JoinAny, steps[3].Join)
		assert.Equal(t, []string{"Screen", "Blank Pull"}, steps[3].Predecessors)
		assert.Equal(t, []string{"color", "height"}, steps[3].QualityCheckpoints)

		r, err := templates.NewRegistry(templates.Merge(templates.DefaultCatalog(), catalog))
		require.NoError(t, err)
		assert.Len(t, r.Methods(), 5)
	})

	t.Run("HeaderMismatch", func(t *testing.T) {
		_, err := templates.ReadCSV(strings.NewReader("method,step\nX,a\n"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "header mismatch")
	})

	t.Run("BadHours", func(t *testing.T) {
		data := "method,step,workcenter,standard_hours,predecessors,join,outsourceable,parallel,materials,checkpoints\nX,a,WC,lots,,,,,,\n"
		_, err := templates.ReadCSV(strings.NewReader(data))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "row 2")
	})
}
