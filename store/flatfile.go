package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"hpi-forecast/models"
	"hpi-forecast/panel"
)

// WriteCSV writes t as the flat-file copy of the merged table. The file is
// replaced in one rename so readers never see a partial table.
func WriteCSV(path string, t panel.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create panel dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := encodeCSV(tmp, t); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeCSV(w io.Writer, t panel.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"ref_date"}, models.Columns...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(models.Columns)+1)
	for _, r := range t.Rows {
		row[0] = r.Month.String()
		for i, c := range models.Columns {
			if v, ok := r.Get(c); ok {
				row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			} else {
				row[i+1] = ""
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", r.Month, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a table written by WriteCSV. Unknown columns are ignored.
func ReadCSV(path string) (panel.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return panel.Table{}, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return panel.Table{}, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) == 0 || header[0] != "ref_date" {
		return panel.Table{}, fmt.Errorf("%s: first column must be ref_date", path)
	}

	var recs []models.MonthlyRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return panel.Table{}, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		mr := models.MonthlyRecord{RefDate: rec[0]}
		for i := 1; i < len(header) && i < len(rec); i++ {
			if rec[i] == "" {
				continue
			}
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return panel.Table{}, fmt.Errorf("%s line %d column %s: %w", path, line, header[i], err)
			}
			mr.Set(header[i], v)
		}
		recs = append(recs, mr)
	}
	return panel.FromRecords(recs)
}
