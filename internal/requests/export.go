package requests

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteSamplesCSV serialises samples to CSV.
func WriteSamplesCSV(w io.Writer, samples []Sample) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Observed At", "Response (ms)", "Status", "Error"}); err != nil {
		return err
	}
	for _, s := range samples {
		status := ""
		if s.StatusCode != 0 {
			status = strconv.Itoa(s.StatusCode)
		}
		if err := writer.Write([]string{
			s.ObservedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(s.ResponseMS, 'f', 2, 64),
			status,
			s.Error,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
