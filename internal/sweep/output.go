package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// csvHeader is the summary column layout, one row per cell, ranked
// best-first.
var csvHeader = []string{
	"combination",
	"burst_criterion",
	"window_criterion",
	"mean_retention",
	"std_retention",
	"min_retention",
	"max_retention",
	"mean_snr_db",
	"files_passing",
	"mean_kurtosis",
	"quality_score",
	"selection_score",
	"admissible",
}

// WriteCSV writes the ranked cell summary.
func WriteCSV(w io.Writer, cells []CellResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range cells {
		row := []string{
			c.Label(),
			fmt.Sprintf("%g", c.Burst),
			c.WindowLabel(),
			fmt.Sprintf("%.6f", c.MeanRetention),
			fmt.Sprintf("%.6f", c.StdRetention),
			fmt.Sprintf("%.6f", c.MinRetention),
			fmt.Sprintf("%.6f", c.MaxRetention),
			fmt.Sprintf("%.6f", c.MeanSNR),
			fmt.Sprintf("%d", c.FilesPassing),
			fmt.Sprintf("%.6f", c.MeanKurtosis),
			fmt.Sprintf("%.6f", c.QualityScore),
			fmt.Sprintf("%.6f", c.SelectionScore()),
			fmt.Sprintf("%t", c.Admissible),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the summary to path, creating or truncating it.
func WriteCSVFile(path string, cells []CellResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sweep csv: %w", err)
	}
	if err := WriteCSV(f, cells); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
