package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"pathpatrol/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sample() []model.Complaint {
	lat, lon, hours := 12.5, 77.25, 3.5
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	resolved := created.Add(210 * time.Minute)
	return []model.Complaint{
		{
			ID: 1, Location: "Main St", Latitude: &lat, Longitude: &lon,
			Tags: []string{"Urgent", "Safety Hazard"}, Description: "Deep, wide pothole",
			Status: model.StatusResolved, CreatedAt: created, ResolvedAt: &resolved, ResolutionTimeHours: &hours,
		},
		{ID: 2, Location: "Elm St", Tags: []string{}, Status: model.StatusPending, CreatedAt: created},
	}
}

func TestTableProjection(t *testing.T) {
	table := Table(sample())

	assert.Equal(t, model.ExportColumns, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{
		"1", "Main St", "12.5", "77.25", "Urgent, Safety Hazard", "Deep, wide pothole",
		"resolved", "2024-03-01T09:00:00Z", "2024-03-01T12:30:00Z", "3.5",
	}, table.Rows[0])
	assert.Equal(t, "", table.Rows[1][2])
	assert.Equal(t, "", table.Rows[1][8])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Table(sample())))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, model.ExportColumns, records[0])
	assert.Equal(t, "Deep, wide pothole", records[1][5])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Table(sample())))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "location", rows[0][1])
	assert.Equal(t, "Elm St", rows[2][1])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("pdf")
	assert.True(t, errors.Is(err, model.ErrValidation))
}
