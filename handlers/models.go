package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hpi-forecast/training"
)

type ArtifactLister interface {
	Available() ([]*training.Artifact, error)
}

type ModelSummary struct {
	HorizonMonths  int              `json:"horizon_months"`
	RunID          string           `json:"run_id"`
	TrainedAt      time.Time        `json:"trained_at"`
	DataFrom       string           `json:"data_from"`
	DataTo         string           `json:"data_to"`
	TrainRows      int              `json:"train_rows"`
	EvalRows       int              `json:"eval_rows"`
	FeatureColumns []string         `json:"feature_columns"`
	Metrics        training.Metrics `json:"metrics"`
}

type ModelHandler struct {
	artifacts ArtifactLister
	log       zerolog.Logger
}

func NewModelHandler(artifacts ArtifactLister, log zerolog.Logger) *ModelHandler {
	return &ModelHandler{artifacts: artifacts, log: log}
}

// GetModels lists the trained horizons with their hold-out metrics.
func (h *ModelHandler) GetModels(c *gin.Context) {
	list, err := h.artifacts.Available()
	if err != nil {
		h.log.Error().Err(err).Msg("list artifacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read model artifacts"})
		return
	}
	out := make([]ModelSummary, 0, len(list))
	for _, a := range list {
		out = append(out, ModelSummary{
			HorizonMonths:  a.Horizon,
			RunID:          a.RunID,
			TrainedAt:      a.TrainedAt,
			DataFrom:       a.DataFrom,
			DataTo:         a.DataTo,
			TrainRows:      a.TrainRows,
			EvalRows:       a.EvalRows,
			FeatureColumns: a.FeatureColumns,
			Metrics:        a.Metrics,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
