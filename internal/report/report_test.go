package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/internal/report"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"
)

func TestWorkbook(t *testing.T) {
	Convey("Given a metrics snapshot", t, func() {
		generated := time.Date(2026, 1, 29, 18, 0, 0, 0, time.UTC)
		s := report.Snapshot{
			Generated: generated,
			Window:    model.Window{From: generated.Add(-8 * time.Hour)},
			Factory:   model.FactoryMetric{TotalProductiveTimeMinutes: 60, TotalProductionCount: 5, TotalWorkers: 1, TotalWorkstations: 1},
			Workers: []model.WorkerMetric{
				{WorkerID: "W1", Name: "John Smith", TotalActiveTimeMinutes: 60, UtilizationPercentage: 66.67, TotalUnitsProduced: 5},
				{WorkerID: "W2", Name: "Sarah Johnson"},
			},
			Workstations: []model.WorkstationMetric{
				{StationID: "S1", Name: "Assembly Line A", OccupancyTimeMinutes: 90, ThroughputRate: 3.33},
			},
		}

		Convey("When rendered", func() {
			raw, err := report.Workbook(s)
			So(err, ShouldBeNil)

			f, err := excelize.OpenReader(bytes.NewReader(raw))
			So(err, ShouldBeNil)
			defer f.Close()

			Convey("Then every sheet should be present in order", func() {
				So(f.GetSheetList(), ShouldResemble, []string{report.FactorySheet, report.WorkersSheet, report.WorkstationsSheet})
			})

			Convey("And the worker table should carry the wire headers and rows", func() {
				rows, err := f.GetRows(report.WorkersSheet)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So(rows[0], ShouldResemble, report.WorkerHeader)
				So(rows[1][0], ShouldEqual, "W1")
				So(rows[1][4], ShouldEqual, "66.67")
				So(rows[2][1], ShouldEqual, "Sarah Johnson")
			})

			Convey("And the factory sheet should carry the summary", func() {
				v, err := f.GetCellValue(report.FactorySheet, "B1")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "2026-01-29T18:00:00Z")
				v, err = f.GetCellValue(report.FactorySheet, "B5")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "5")
				v, err = f.GetCellValue(report.FactorySheet, "B3")
				So(err, ShouldBeNil)
				So(v, ShouldBeEmpty)
			})

			Convey("And the station sheet should list stations", func() {
				rows, err := f.GetRows(report.WorkstationsSheet)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[1][2], ShouldEqual, "90")
			})
		})
	})
}
