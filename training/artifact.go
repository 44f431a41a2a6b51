package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"hpi-forecast/gbm"
	"hpi-forecast/panel"
)

// ErrArtifactNotFound is returned when no model file exists for a horizon.
var ErrArtifactNotFound = errors.New("model artifact not found")

// Artifact is the persisted model of one horizon. FeatureColumns fixes the
// order in which inputs must be presented to Model.
type Artifact struct {
	Horizon        int        `json:"horizon_months"`
	FeatureColumns []string   `json:"feature_columns"`
	Metrics        Metrics    `json:"metrics"`
	RunID          string     `json:"run_id"`
	TrainedAt      time.Time  `json:"trained_at"`
	DataFrom       string     `json:"data_from"`
	DataTo         string     `json:"data_to"`
	TrainRows      int        `json:"train_rows"`
	EvalRows       int        `json:"eval_rows"`
	Model          *gbm.Model `json:"model"`
}

// PredictRow runs the model on row, laid out in the training column order.
func (a *Artifact) PredictRow(row panel.Row) (float64, error) {
	if a.Model == nil {
		return 0, fmt.Errorf("artifact for horizon %d has no model", a.Horizon)
	}
	return a.Model.Predict(row.Features(a.FeatureColumns))
}

func ArtifactPath(dir string, horizon int) string {
	return filepath.Join(dir, fmt.Sprintf("hpi_h%d.json", horizon))
}

// SaveArtifact writes a to dir, replacing any previous model for the same
// horizon in a single rename.
func SaveArtifact(dir string, a *Artifact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	dst := ArtifactPath(dir, a.Horizon)
	if err := writeFileAtomic(dst, func(f *os.File) error {
		return json.NewEncoder(f).Encode(a)
	}); err != nil {
		return "", fmt.Errorf("save artifact h=%d: %w", a.Horizon, err)
	}
	return dst, nil
}

func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	var a Artifact
	if err := json.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if a.Model == nil || len(a.FeatureColumns) != a.Model.NumFeatures {
		return nil, fmt.Errorf("artifact %s: feature columns do not match model", path)
	}
	return &a, nil
}

// writeFileAtomic writes through a temporary file in the destination
// directory and renames it into place.
func writeFileAtomic(dst string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	// CreateTemp makes the file 0600; the API may run as another user.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
