package templates

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/shopspring/decimal"
)

var csvHeader = []string{"method", "step", "workcenter", "standard_hours", "predecessors", "join", "outsourceable", "parallel", "materials", "checkpoints"}

// LoadCSV reads templates from a CSV file. Rows of a method keep file order.
func LoadCSV(filename string) (Catalog, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open templates file %s: %w", filename, err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV parses templates from r; see LoadCSV.
func ReadCSV(r io.Reader) (Catalog, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read templates CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("templates CSV must have header and at least one data row")
	}
	if !validateHeader(records[0], csvHeader) {
		return nil, fmt.Errorf("templates CSV header mismatch. Expected: %v, Got: %v", csvHeader, records[0])
	}

	catalog := make(Catalog)
	for i, record := range records[1:] {
		if len(record) != len(csvHeader) {
			return nil, fmt.Errorf("templates CSV row %d: expected %d columns, got %d", i+2, len(csvHeader), len(record))
		}
		t, err := parseTemplate(record)
		if err != nil {
			return nil, fmt.Errorf("templates CSV row %d: %w", i+2, err)
		}
		catalog[t.Method] = append(catalog[t.Method], t)
	}
	return catalog, nil
}

func parseTemplate(record []string) (models.PipelineStepTemplate, error) {
	method := models.ProductionMethod(strings.ToUpper(strings.TrimSpace(record[0])))
	if method == "" {
		return models.PipelineStepTemplate{}, fmt.Errorf("method cannot be empty")
	}
	hours, err := decimal.NewFromString(strings.TrimSpace(record[3]))
	if err != nil {
		return models.PipelineStepTemplate{}, fmt.Errorf("invalid standard_hours %q: %w", record[3], err)
	}
	join := models.JoinType(strings.ToUpper(strings.TrimSpace(record[5])))
	if join == "" {
		join = models.JoinAll
	}
	outsource, err := parseFlag(record[6])
	if err != nil {
		return models.PipelineStepTemplate{}, fmt.Errorf("invalid outsourceable: %w", err)
	}
	par, err := parseFlag(record[7])
	if err != nil {
		return models.PipelineStepTemplate{}, fmt.Errorf("invalid parallel: %w", err)
	}
	return models.PipelineStepTemplate{
		Method:             method,
		Name:               strings.TrimSpace(record[1]),
		Workcenter:         strings.TrimSpace(record[2]),
		StandardHours:      hours,
		Predecessors:       splitList(record[4]),
		Join:               join,
		Outsourceable:      outsource,
		ParallelAllowed:    par,
		RequiredMaterials:  splitList(record[8]),
		QualityCheckpoints: splitList(record[9]),
	}, nil
}

func parseFlag(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateHeader(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i, col := range expected {
		if strings.TrimSpace(actual[i]) != col {
			return false
		}
	}
	return true
}
