package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metricboard/notifier/internal/engine"
	"github.com/metricboard/notifier/internal/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

var goalHeaders = []string{"metric_id", "metric", "department", "frequency", "target", "direction", "latest_value", "latest_date", "achieved"}

// goalRow is one exported line of the goal report.
type goalRow struct {
	MetricID    string   `json:"metric_id"`
	Metric      string   `json:"metric"`
	Department  string   `json:"department"`
	Frequency   string   `json:"frequency"`
	Target      float64  `json:"target"`
	Direction   string   `json:"direction"`
	LatestValue *float64 `json:"latest_value"`
	LatestDate  string   `json:"latest_date"`
	Achieved    bool     `json:"achieved"`
}

func (r goalRow) cells() []string {
	latest := ""
	if r.LatestValue != nil {
		latest = strconv.FormatFloat(*r.LatestValue, 'f', -1, 64)
	}
	return []string{
		r.MetricID, r.Metric, r.Department, r.Frequency,
		strconv.FormatFloat(r.Target, 'f', -1, 64), r.Direction,
		latest, r.LatestDate, strconv.FormatBool(r.Achieved),
	}
}

// ReportHandler exports goal standings.
type ReportHandler struct {
	DB *gorm.DB
}

func (h *ReportHandler) goalRows(c *gin.Context) ([]goalRow, error) {
	statuses, err := engine.GoalStatuses(c.Request.Context(), h.DB)
	if err != nil {
		return nil, err
	}
	var depts []models.Department
	if err := h.DB.WithContext(c.Request.Context()).Find(&depts).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(depts))
	for _, d := range depts {
		names[d.ID] = d.Name
	}
	rows := make([]goalRow, 0, len(statuses))
	for _, st := range statuses {
		d := st.Definition
		row := goalRow{
			MetricID:  d.ID,
			Metric:    d.Name,
			Frequency: string(d.Frequency),
			Target:    *d.Target,
			Direction: "higher_is_better",
			Achieved:  st.Achieved,
		}
		if d.LowerIsBetter {
			row.Direction = "lower_is_better"
		}
		if d.DepartmentID != nil {
			row.Department = names[*d.DepartmentID]
		}
		if st.Latest != nil {
			v := st.Latest.Value
			row.LatestValue = &v
			row.LatestDate = st.Latest.Date.Format(dateLayout)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func writeGoalsCSV(w http.ResponseWriter, rows []goalRow) error {
	enc := csv.NewWriter(w)
	if err := enc.Write(goalHeaders); err != nil {
		return err
	}
	for _, r := range rows {
		if err := enc.Write(r.cells()); err != nil {
			return err
		}
	}
	enc.Flush()
	return enc.Error()
}

func writeGoalsExcel(rows []goalRow) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "Metas"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	_ = f.DeleteSheet("Sheet1")
	for i, h := range goalHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	styleHeader, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#f0f0f0"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", "I1", styleHeader)
	for i, r := range rows {
		n := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", n), r.MetricID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", n), r.Metric)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", n), r.Department)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", n), r.Frequency)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", n), r.Target)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", n), r.Direction)
		if r.LatestValue != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", n), *r.LatestValue)
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", n), r.LatestDate)
		_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", n), r.Achieved)
	}
	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "C", 30)
	_ = f.SetColWidth(sheet, "D", "I", 16)
	f.SetActiveSheet(idx)
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

// Goals exports the latest value of every targeted metric as json, csv or xlsx.
func (h *ReportHandler) Goals(c *gin.Context) {
	rows, err := h.goalRows(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dateStr := time.Now().UTC().Format(dateLayout)
	switch c.DefaultQuery("format", "json") {
	case "csv":
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", "attachment; filename=goals-"+dateStr+".csv")
		if err := writeGoalsCSV(c.Writer, rows); err != nil {
			_ = c.Error(err)
		}
	case "xlsx", "excel":
		buf, err := writeGoalsExcel(rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=goals-"+dateStr+".xlsx")
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		c.JSON(http.StatusOK, gin.H{"data": rows})
	}
}
