// Package ml loads the pre-trained prediction models and serves inference
// for the ingestion pipeline. The registry is read-only after Load; a missing
// or broken artifact puts it in degraded mode where every call answers with
// the neutral default instead of failing the caller.
package ml

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"fleet-backend/internal/domain"
	"fleet-backend/internal/logging"
	"fleet-backend/internal/metrics"
)

// Model artifact file names inside the model directory.
const (
	classifierModel  = "classifier.onnx"
	probabilityModel = "probability.onnx"
	anomalyModel     = "anomaly.onnx"
)

const featureCount = 6

// Inference is the combined raw output of the three models for one feature
// vector.
type Inference struct {
	ClassLabel  int
	Probability float64
	Anomaly     bool
	IsoScore    float64
}

// Neutral is returned whenever the registry is degraded or a model call
// fails or times out. Ingestion availability outranks prediction accuracy.
var Neutral = Inference{}

// Inferencer is the consumer-side contract the fusion engine depends on.
type Inferencer interface {
	Infer(ctx context.Context, f domain.Features) Inference
}

type Config struct {
	ModelDir    string
	LibraryPath string
	Timeout     time.Duration
}

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// Registry holds the three loaded model sessions. Safe for concurrent Infer
// calls; nothing is mutated after Load returns.
type Registry struct {
	classifier  *session
	probability *session
	anomaly     *session
	timeout     time.Duration
	ready       bool
	log         *slog.Logger
}

// Load opens all three model artifacts. It never returns an error: any load
// failure leaves the registry degraded, which is logged and reflected by
// Ready, and Infer answers with Neutral from then on.
func Load(log *slog.Logger, cfg Config) *Registry {
	r := &Registry{timeout: cfg.Timeout, log: log}

	libPath := cfg.LibraryPath
	if libPath == "" {
		// The runtime shared library ships alongside the model files.
		libPath = filepath.Join(cfg.ModelDir, "libonnxruntime.so")
	}

	load := func(name string, outLen int64) *session {
		path := filepath.Join(cfg.ModelDir, name)
		if _, err := os.Stat(path); err != nil {
			log.Warn("model artifact not found", slog.String("path", path))
			return nil
		}
		s, err := newSession(path, libPath, outLen)
		if err != nil {
			log.Warn("model load failed", slog.String("path", path), logging.Err(err))
			return nil
		}
		log.Info("model loaded", slog.String("path", path))
		return s
	}

	r.classifier = load(classifierModel, 1)
	r.probability = load(probabilityModel, 2)
	r.anomaly = load(anomalyModel, 1)

	r.ready = r.classifier != nil && r.probability != nil && r.anomaly != nil
	if !r.ready {
		log.Warn("model registry degraded: inference will return neutral defaults")
	}
	return r
}

// Ready reports whether all three models loaded.
func (r *Registry) Ready() bool {
	return r.ready
}

// Close releases the model sessions.
func (r *Registry) Close() {
	for _, s := range []*session{r.classifier, r.probability, r.anomaly} {
		if s != nil {
			s.close()
		}
	}
}

// Infer runs the feature vector through all three models, bounded by the
// configured timeout. Any failure degrades to Neutral; the caller is never
// blocked on a broken model.
func (r *Registry) Infer(ctx context.Context, f domain.Features) Inference {
	if !r.ready {
		metrics.DegradedInferences.Inc()
		return Neutral
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		inf Inference
		err error
	}
	ch := make(chan result, 1)
	go func() {
		inf, err := r.runAll(f)
		ch <- result{inf: inf, err: err}
	}()

	select {
	case <-ctx.Done():
		r.log.Warn("inference timed out", logging.Err(ctx.Err()))
		metrics.DegradedInferences.Inc()
		return Neutral
	case res := <-ch:
		if res.err != nil {
			r.log.Warn("inference failed", logging.Err(res.err))
			metrics.DegradedInferences.Inc()
			return Neutral
		}
		return res.inf
	}
}

func (r *Registry) runAll(f domain.Features) (Inference, error) {
	vec := f.Vector()

	cls, err := r.classifier.run(vec)
	if err != nil {
		return Neutral, fmt.Errorf("classifier: %w", err)
	}
	label := 0
	if cls[0] >= 0.5 {
		label = 1
	}

	prob, err := r.probability.run(vec)
	if err != nil {
		return Neutral, fmt.Errorf("probability: %w", err)
	}
	// Two-class probability output: confidence is the probability of the
	// predicted class.
	confidence := float64(prob[0])
	if len(prob) == 2 {
		if label == 1 {
			confidence = float64(prob[1])
		} else {
			confidence = float64(prob[0])
		}
	}

	iso, err := r.anomaly.run(vec)
	if err != nil {
		return Neutral, fmt.Errorf("anomaly: %w", err)
	}
	score := float64(iso[0])

	return Inference{
		ClassLabel:  label,
		Probability: confidence,
		// Isolation forest convention: negative decision score = anomaly.
		Anomaly:  score < 0,
		IsoScore: score,
	}, nil
}
