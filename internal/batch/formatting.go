package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// csvHeader names the columns written by WriteCSV.
var csvHeader = []string{"file", "source_type", "format", "value", "duration_ms", "error"}

// WriteCSV writes one row per item, ready for a spreadsheet import.
func WriteCSV(w io.Writer, r *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, it := range r.Items {
		row := []string{it.File, "", "", "", "", it.Error}
		if it.Result != nil {
			row[1] = string(it.Result.SourceType)
			row[2] = it.Result.Format
			row[3] = it.Result.Value
			row[4] = strconv.FormatInt(it.Result.Duration.Milliseconds(), 10)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText writes a human-readable listing followed by statistics.
func WriteText(w io.Writer, r *Result) error {
	for _, it := range r.Items {
		var err error
		if it.Result != nil {
			kind := string(it.Result.SourceType)
			if it.Result.Format != "" {
				kind += " (" + it.Result.Format + ")"
			}
			_, err = fmt.Fprintf(w, "%s: %s: %s\n", it.File, kind, strings.Join(strings.Fields(it.Result.Value), " "))
		} else {
			_, err = fmt.Fprintf(w, "%s: error: %s\n", it.File, it.Error)
		}
		if err != nil {
			return err
		}
	}

	stats := r.Stats()
	_, err := fmt.Fprintf(w, "\nProcessing Statistics:\n  Total images: %d\n  Recognized: %d\n  Failed: %d\n  Workers: %d\n  Duration: %v\n",
		stats.Total, stats.Recognized, stats.Failed, r.Workers, r.Duration.Round(time.Millisecond))
	return err
}
