package training

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// PredictionRecord is one hold-out prediction as exported to parquet.
type PredictionRecord struct {
	RefDate       string  `parquet:"name=ref_date,type=BYTE_ARRAY,convertedtype=UTF8"`
	HorizonMonths int32   `parquet:"name=horizon_months,type=INT32"`
	ActualHPI     float64 `parquet:"name=actual_hpi,type=DOUBLE"`
	PredictedHPI  float64 `parquet:"name=predicted_hpi,type=DOUBLE"`
}

// WriteOutputs writes the evaluation files of a run into dir:
// predictions_h{h}.csv per horizon, all_predictions.csv and .parquet, and
// model_metrics.csv.
func WriteOutputs(dir string, report Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create outputs dir: %w", err)
	}

	trained := report.Trained()
	var all []PredictionRecord

	for _, res := range trained {
		h := strconv.Itoa(res.Horizon)
		rows := [][]string{{"ref_date", "actual_HPI", "predicted_HPI_h" + h, "horizon_months"}}
		for _, p := range res.Eval {
			rows = append(rows, []string{p.RefDate, formatFloat(p.Actual), formatFloat(p.Predicted), h})
			all = append(all, PredictionRecord{
				RefDate:       p.RefDate,
				HorizonMonths: int32(res.Horizon),
				ActualHPI:     p.Actual,
				PredictedHPI:  p.Predicted,
			})
		}
		if err := writeCSV(filepath.Join(dir, "predictions_h"+h+".csv"), rows); err != nil {
			return err
		}
	}

	combined := [][]string{{"ref_date", "horizon_months", "actual_HPI", "predicted_HPI"}}
	for _, p := range all {
		combined = append(combined, []string{
			p.RefDate, strconv.Itoa(int(p.HorizonMonths)), formatFloat(p.ActualHPI), formatFloat(p.PredictedHPI),
		})
	}
	if err := writeCSV(filepath.Join(dir, "all_predictions.csv"), combined); err != nil {
		return err
	}

	summary := [][]string{{"horizon_months", "mae", "rmse", "r2", "train_rows", "eval_rows", "run_id"}}
	for _, res := range trained {
		a := res.Artifact
		summary = append(summary, []string{
			strconv.Itoa(a.Horizon),
			formatFloat(a.Metrics.MAE),
			formatFloat(a.Metrics.RMSE),
			formatFloat(a.Metrics.R2),
			strconv.Itoa(a.TrainRows),
			strconv.Itoa(a.EvalRows),
			a.RunID,
		})
	}
	if err := writeCSV(filepath.Join(dir, "model_metrics.csv"), summary); err != nil {
		return err
	}

	return ExportParquet(filepath.Join(dir, "all_predictions.parquet"), all)
}

// ExportParquet writes records as a snappy-compressed parquet file.
func ExportParquet(path string, records []PredictionRecord) error {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(PredictionRecord), 1)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range records {
		if err := pw.Write(r); err != nil {
			return fmt.Errorf("write parquet record: %w", err)
		}
	}

	// WriteStop can panic on malformed schemas.
	var stopErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				stopErr = fmt.Errorf("parquet writer panicked: %v", r)
			}
		}()
		stopErr = pw.WriteStop()
	}()
	if stopErr != nil {
		return fmt.Errorf("finish parquet: %w", stopErr)
	}

	return writeFileAtomic(path, func(f *os.File) error {
		_, err := buf.WriteTo(f)
		return err
	})
}

func writeCSV(path string, rows [][]string) error {
	return writeFileAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.WriteAll(rows); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
		return nil
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
