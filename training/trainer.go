package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hpi-forecast/config"
	"hpi-forecast/gbm"
	"hpi-forecast/metrics"
	"hpi-forecast/models"
	"hpi-forecast/panel"
)

// ErrInsufficientData marks a horizon skipped for lack of labelled rows.
var ErrInsufficientData = errors.New("insufficient training data")

type Options struct {
	Horizons []int
	Split    float64
	MinRows  int
	Workers  int
	Params   gbm.Params
	ModelDir string
}

func OptionsFrom(cfg config.TrainingConfig, modelDir string) Options {
	p := gbm.DefaultParams()
	p.NEstimators = cfg.NEstimators
	p.MaxDepth = cfg.MaxDepth
	p.LearningRate = cfg.LearningRate
	p.Subsample = cfg.Subsample
	p.ColSample = cfg.ColSample
	p.Seed = cfg.Seed
	return Options{
		Horizons: models.Horizons,
		Split:    cfg.TrainTestSplit,
		MinRows:  cfg.MinTrainingRows,
		Workers:  cfg.Workers,
		Params:   p,
		ModelDir: modelDir,
	}
}

// FeatureColumns are the model inputs: every panel column except the index
// being forecast.
func FeatureColumns() []string {
	cols := make([]string, 0, len(models.Columns)-1)
	for _, c := range models.Columns {
		if c != models.ColHPI {
			cols = append(cols, c)
		}
	}
	return cols
}

// EvalPoint is one hold-out prediction.
type EvalPoint struct {
	RefDate   string
	Actual    float64
	Predicted float64
}

type HorizonResult struct {
	Horizon  int
	Artifact *Artifact
	Path     string
	Eval     []EvalPoint
	Skipped  bool
	Reason   string
}

type Report struct {
	RunID   string
	Results []HorizonResult
}

// Trained returns the results that produced a model, in horizon order.
func (r Report) Trained() []HorizonResult {
	var out []HorizonResult
	for _, res := range r.Results {
		if !res.Skipped && res.Artifact != nil {
			out = append(out, res)
		}
	}
	return out
}

type Trainer struct {
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

func NewTrainer(opts Options, log zerolog.Logger) *Trainer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if len(opts.Horizons) == 0 {
		opts.Horizons = models.Horizons
	}
	return &Trainer{opts: opts, log: log, now: time.Now}
}

// Train fits one independent model per horizon and writes each artifact.
// Horizons without enough data are skipped with a warning; failures of
// individual horizons are collected and returned together after all
// horizons have run.
func (t *Trainer) Train(ctx context.Context, table panel.Table) (Report, error) {
	if err := table.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid table: %w", err)
	}

	runID := uuid.NewString()
	rows := panel.WithTargets(table, t.opts.Horizons)
	features := FeatureColumns()

	report := Report{RunID: runID, Results: make([]HorizonResult, len(t.opts.Horizons))}
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for i, h := range t.opts.Horizons {
		i, h := i, h
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := t.trainHorizon(runID, h, rows, features)
			report.Results[i] = res
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("horizon %d: %w", h, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	t.log.Info().
		Str("run_id", runID).
		Int("trained", len(report.Trained())).
		Int("horizons", len(t.opts.Horizons)).
		Msg("training run complete")
	return report, errs.ErrorOrNil()
}

func (t *Trainer) trainHorizon(runID string, h int, rows []panel.FeatureRow, features []string) (HorizonResult, error) {
	log := t.log.With().Int("horizon", h).Logger()
	res := HorizonResult{Horizon: h}

	set := panel.TrainingSet(rows, h)
	n := len(set)
	nTrain := int(math.Floor(float64(n) * t.opts.Split))
	nEval := n - nTrain
	if n < t.opts.MinRows || nTrain < 1 || nEval < 1 {
		res.Skipped = true
		res.Reason = fmt.Sprintf("%d labelled rows (train %d, eval %d), need %d", n, nTrain, nEval, t.opts.MinRows)
		metrics.HorizonsSkipped.Inc()
		log.Warn().Str("reason", res.Reason).Msg("skipping horizon")
		return res, nil
	}

	x := make([][]float64, n)
	y := make([]float64, n)
	for i, r := range set {
		x[i] = r.Features(features)
		y[i], _ = r.Target(h)
	}

	st := describe(y)
	log.Info().
		Int("rows", st.Count).
		Float64("min", st.Min).
		Float64("max", st.Max).
		Float64("mean", st.Mean).
		Float64("std", st.Std).
		Msg("target statistics")

	start := time.Now()
	model, err := gbm.Fit(x[:nTrain], y[:nTrain], t.opts.Params)
	if err != nil {
		return res, fmt.Errorf("fit: %w", err)
	}
	metrics.TrainDuration.WithLabelValues(metrics.Horizon(h)).Observe(time.Since(start).Seconds())

	predicted, err := model.PredictBatch(x[nTrain:])
	if err != nil {
		return res, fmt.Errorf("predict hold-out: %w", err)
	}
	score, err := Evaluate(y[nTrain:], predicted)
	if err != nil {
		return res, err
	}

	res.Eval = make([]EvalPoint, nEval)
	for i := range res.Eval {
		res.Eval[i] = EvalPoint{
			RefDate:   set[nTrain+i].Month.String(),
			Actual:    y[nTrain+i],
			Predicted: predicted[i],
		}
	}

	art := &Artifact{
		Horizon:        h,
		FeatureColumns: features,
		Metrics:        score,
		RunID:          runID,
		TrainedAt:      t.now().UTC(),
		DataFrom:       set[0].Month.String(),
		DataTo:         set[n-1].Month.String(),
		TrainRows:      nTrain,
		EvalRows:       nEval,
		Model:          model,
	}
	path, err := SaveArtifact(t.opts.ModelDir, art)
	if err != nil {
		return res, err
	}
	res.Artifact = art
	res.Path = path

	hl := metrics.Horizon(h)
	metrics.ModelMetric.WithLabelValues(hl, "mae").Set(score.MAE)
	metrics.ModelMetric.WithLabelValues(hl, "rmse").Set(score.RMSE)
	metrics.ModelMetric.WithLabelValues(hl, "r2").Set(score.R2)

	log.Info().
		Int("train_rows", nTrain).
		Int("eval_rows", nEval).
		Float64("mae", score.MAE).
		Float64("rmse", score.RMSE).
		Float64("r2", score.R2).
		Str("artifact", path).
		Msg("horizon trained")
	return res, nil
}
