// Package report renders metric snapshots as spreadsheet workbooks.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/xuri/excelize/v2"
)

// Sheet names, in workbook order.
const (
	FactorySheet      = "Factory"
	WorkersSheet      = "Workers"
	WorkstationsSheet = "Workstations"
)

// WorkerHeader and WorkstationHeader reuse the wire field names.
var (
	WorkerHeader = []string{
		"worker_id", "name", "total_active_time_minutes", "total_idle_time_minutes",
		"utilization_percentage", "total_units_produced", "units_per_hour",
	}
	WorkstationHeader = []string{
		"station_id", "name", "occupancy_time_minutes", "utilization_percentage",
		"total_units_produced", "throughput_rate",
	}
)

// Snapshot is everything one export contains.
type Snapshot struct {
	Generated    time.Time
	Window       model.Window
	Factory      model.FactoryMetric
	Workers      []model.WorkerMetric
	Workstations []model.WorkstationMetric
}

// Workbook renders s as an xlsx document.
func Workbook(s Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close runs after it.

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", FactorySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	factoryRows := [][]any{
		{"generated_at", s.Generated.UTC().Format(time.RFC3339)},
		{"window_from", bound(s.Window.From)},
		{"window_to", bound(s.Window.To)},
		{"total_productive_time_minutes", s.Factory.TotalProductiveTimeMinutes},
		{"total_production_count", s.Factory.TotalProductionCount},
		{"average_production_rate", s.Factory.AverageProductionRate},
		{"average_utilization_percentage", s.Factory.AverageUtilizationPercentage},
		{"total_workers", s.Factory.TotalWorkers},
		{"total_workstations", s.Factory.TotalWorkstations},
	}
	if err := writeRows(f, FactorySheet, 1, factoryRows); err != nil {
		f.Close()
		return nil, err
	}

	workerRows := make([][]any, 0, len(s.Workers))
	for _, w := range s.Workers {
		workerRows = append(workerRows, []any{
			w.WorkerID, w.Name, w.TotalActiveTimeMinutes, w.TotalIdleTimeMinutes,
			w.UtilizationPercentage, w.TotalUnitsProduced, w.UnitsPerHour,
		})
	}
	if err := writeTable(f, WorkersSheet, header, WorkerHeader, workerRows); err != nil {
		f.Close()
		return nil, err
	}

	stationRows := make([][]any, 0, len(s.Workstations))
	for _, st := range s.Workstations {
		stationRows = append(stationRows, []any{
			st.StationID, st.Name, st.OccupancyTimeMinutes, st.UtilizationPercentage,
			st.TotalUnitsProduced, st.ThroughputRate,
		})
	}
	if err := writeTable(f, WorkstationsSheet, header, WorkstationHeader, stationRows); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func bound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeTable(f *excelize.File, sheet string, style int, header []string, rows [][]any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := writeRows(f, sheet, 1, [][]any{cells}); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	if err := writeRows(f, sheet, 2, rows); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze %s header: %w", sheet, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, firstRow int, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, firstRow+i)
		if err != nil {
			return fmt.Errorf("row %d: %w", firstRow+i, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, firstRow+i, err)
		}
	}
	return nil
}
