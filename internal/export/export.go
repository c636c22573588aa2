package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pathpatrol/internal/model"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Complaints"

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", model.ErrValidation, s)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func (f Format) Filename(now time.Time) string {
	return fmt.Sprintf("complaints_%s.%s", now.Format("20060102_150405"), f)
}

// Table projects complaints onto the fixed export columns.
func Table(complaints []model.Complaint) model.ExportTable {
	return model.ExportTable{
		Columns: model.ExportColumns,
		Rows: lo.Map(complaints, func(c model.Complaint, _ int) []string {
			return []string{
				strconv.FormatInt(c.ID, 10),
				c.Location,
				formatFloat(c.Latitude),
				formatFloat(c.Longitude),
				strings.Join(c.Tags, ", "),
				c.Description,
				string(c.Status),
				c.CreatedAt.Format(time.RFC3339),
				formatTime(c.ResolvedAt),
				formatFloat(c.ResolutionTimeHours),
			}
		}),
	}
}

func Write(w io.Writer, f Format, table model.ExportTable) error {
	if f == FormatXLSX {
		return WriteXLSX(w, table)
	}
	return WriteCSV(w, table)
}

func WriteCSV(w io.Writer, table model.ExportTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func WriteXLSX(w io.Writer, table model.ExportTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}

	header := lo.Map(table.Columns, func(c string, _ int) interface{} { return c })
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := lo.Map(row, func(v string, _ int) interface{} { return v })
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
