package batch

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
)

func sampleResult() *Result {
	return &Result{
		Items: []Item{
			{File: "a.png", Result: &recognize.Result{
				SourceType: recognize.SourceBarcode, Value: "4006381333931", Format: "ean_13", Duration: 12 * time.Millisecond,
			}},
			{File: "b.png", Result: &recognize.Result{SourceType: recognize.SourceHandwriting, Value: "two\nlines, \"quoted\""}},
			{File: "c.png", Error: "no value recognized"},
		},
		Workers:  2,
		Duration: 1500 * time.Millisecond,
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResult()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"a.png", "BARCODE", "ean_13", "4006381333931", "12", ""}, rows[1])
	assert.Equal(t, "two\nlines, \"quoted\"", rows[2][3], "values survive quoting")
	assert.Equal(t, []string{"c.png", "", "", "", "", "no value recognized"}, rows[3])
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "a.png: BARCODE (ean_13): 4006381333931\n")
	assert.Contains(t, out, "b.png: HANDWRITING: two lines, \"quoted\"\n")
	assert.Contains(t, out, "c.png: error: no value recognized\n")
	assert.Contains(t, out, "Total images: 3")
	assert.Contains(t, out, "Recognized: 2")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Duration: 1.5s")
}
