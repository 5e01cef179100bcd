// Package excel renders a run's posterior and budget recommendation as an
// Excel workbook for stakeholders who live in spreadsheets.
package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"gomix/domain/budget"
	"gomix/domain/model"
	"gomix/ports"
)

const (
	allocationSheet = "Allocation"
	posteriorSheet  = "Posterior"
)

// ReportWriterImpl implements ReportWriter using excelize
type ReportWriterImpl struct{}

// NewReportWriter creates a new Excel report writer
func NewReportWriter() ports.ReportWriter {
	return &ReportWriterImpl{}
}

// WriteReport writes one workbook: an Allocation sheet comparing current and
// proposed spend per channel, and a Posterior sheet with natural-scale
// parameter summaries.
func (w *ReportWriterImpl) WriteReport(path string, posterior *model.Posterior, result budget.OptimizationResult, current budget.Allocation) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), allocationSheet)
	if err := w.writeAllocation(f, result, current); err != nil {
		return err
	}
	if _, err := f.NewSheet(posteriorSheet); err != nil {
		return err
	}
	if err := w.writePosterior(f, posterior); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func (w *ReportWriterImpl) writeAllocation(f *excelize.File, result budget.OptimizationResult, current budget.Allocation) error {
	header := []interface{}{"Channel", "Current Spend", "Proposed Spend", "Change"}
	if err := f.SetSheetRow(allocationSheet, "A1", &header); err != nil {
		return err
	}

	row := 2
	for _, key := range current.Channels() {
		cur := current[key]
		proposed := result.Allocation[key]
		cells := []interface{}{string(key), cur, proposed, proposed - cur}
		if err := f.SetSheetRow(allocationSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		row++
	}

	row++
	summary := [][]interface{}{
		{"Baseline Revenue", result.BaselineRevenue},
		{"Optimized Revenue", result.OptimizedRevenue},
		{"Projected Lift", result.Lift()},
		{"Solver Status", string(result.Status)},
	}
	for _, cells := range summary {
		if err := f.SetSheetRow(allocationSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		row++
	}
	return nil
}

func (w *ReportWriterImpl) writePosterior(f *excelize.File, posterior *model.Posterior) error {
	header := []interface{}{"Parameter", "Mean", "Std"}
	if err := f.SetSheetRow(posteriorSheet, "A1", &header); err != nil {
		return err
	}

	row := 2
	for _, name := range posterior.Names() {
		d, _ := posterior.Param(name)
		cells := []interface{}{name, d.NaturalMean(), d.NaturalStd()}
		if err := f.SetSheetRow(posteriorSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		row++
	}
	return nil
}
