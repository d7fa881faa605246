// Package export serializes projections for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"investimento/internal/core"
)

// Header is the CSV header row. The first column is the month number.
var Header = []string{"month", "cumulative_value", "cumulative_interest", "real_interest"}

// Filename is the suggested download name.
const Filename = "interest_table.csv"

// ContentType is the MIME type of WriteCSV output.
const ContentType = "text/csv; charset=utf-8"

// WriteCSV writes p as comma-separated UTF-8 with a header row.
// Numbers use the shortest representation that round-trips.
func WriteCSV(w io.Writer, p core.Projection) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(Header))
	for _, r := range p.Records {
		row[0] = strconv.Itoa(r.Month)
		row[1] = formatFloat(r.CumulativeValue)
		row[2] = formatFloat(r.CumulativeInterest)
		row[3] = formatFloat(r.RealInterest)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", r.Month, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
