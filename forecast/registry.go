package forecast

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"hpi-forecast/models"
	"hpi-forecast/training"
)

type cachedArtifact struct {
	artifact *training.Artifact
	modTime  time.Time
	size     int64
}

// Registry loads model artifacts from a directory and keeps them in memory
// until the file on disk changes.
type Registry struct {
	dir string

	mu    sync.RWMutex
	cache map[int]cachedArtifact
}

func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, cache: make(map[int]cachedArtifact)}
}

func (r *Registry) Load(horizon int) (*Handle, error) {
	a, err := r.Artifact(horizon)
	if err != nil {
		return nil, err
	}
	return &Handle{
		Horizon:        a.Horizon,
		FeatureColumns: a.FeatureColumns,
		Model:          a.Model,
		RunID:          a.RunID,
	}, nil
}

// Artifact returns the current artifact of horizon, reloading it when the
// trainer has replaced the file.
func (r *Registry) Artifact(horizon int) (*training.Artifact, error) {
	if !models.IsHorizon(horizon) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedHorizon, horizon)
	}
	path := training.ArtifactPath(r.dir, horizon)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no model for horizon %d", ErrModelNotFound, horizon)
		}
		return nil, err
	}

	r.mu.RLock()
	c, ok := r.cache[horizon]
	r.mu.RUnlock()
	if ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.artifact, nil
	}

	a, err := training.LoadArtifact(path)
	if err != nil {
		if errors.Is(err, training.ErrArtifactNotFound) {
			return nil, fmt.Errorf("%w: no model for horizon %d", ErrModelNotFound, horizon)
		}
		return nil, err
	}
	if a.Horizon != horizon {
		return nil, fmt.Errorf("artifact %s holds horizon %d", path, a.Horizon)
	}

	r.mu.Lock()
	r.cache[horizon] = cachedArtifact{artifact: a, modTime: info.ModTime(), size: info.Size()}
	r.mu.Unlock()
	return a, nil
}

// Available returns the artifacts that exist, in horizon order.
func (r *Registry) Available() ([]*training.Artifact, error) {
	var out []*training.Artifact
	for _, h := range models.Horizons {
		a, err := r.Artifact(h)
		if errors.Is(err, ErrModelNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
