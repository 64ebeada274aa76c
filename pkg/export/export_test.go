package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Columns: []string{"Student", "Year"},
		Rows: [][]string{
			{"Ani Wijaya", "2026"},
			{"Budi Santoso", "2026"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	payload, err := NewCSVExporter().Render(sampleTable())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Year", lines[0])
	assert.Equal(t, "Ani Wijaya,2026", lines[1])
}

func TestCSVExporterRejectsEmptyTable(t *testing.T) {
	_, err := NewCSVExporter().Render(Table{})
	assert.Error(t, err)
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	table := sampleTable()
	table.Rows = append(table.Rows, []string{"only-one-cell"})
	_, err := NewCSVExporter().Render(table)
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	payload, err := NewPDFExporter().Render(sampleTable(), "Mathematics roster")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestPDFExporterRejectsEmptyTable(t *testing.T) {
	_, err := NewPDFExporter().Render(Table{}, "empty")
	assert.Error(t, err)
}
