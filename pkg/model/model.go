// Package model fits and applies the regression model.
//
// The model is a bagging ensemble: each estimator is a ridge regression
// fitted on a bootstrap sample of the training set, and predictions are
// averaged over estimators. Linear algebra is done by gonum.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ArtifactName is the file name of a saved model in the model directory.
const ArtifactName = "model.json"

var (
	// ErrShape is returned when features and targets do not fit each other or the model.
	ErrShape = errors.New("shape mismatch")

	// ErrNotFitted is returned when the model has no estimators.
	ErrNotFitted = errors.New("model is not fitted")
)

const (
	HyperparameterEstimators = "nestimators"
	HyperparameterAlpha      = "alpha"
	HyperparameterSeed       = "seed"
)

type Params struct {
	// Estimators is the number of estimators in the ensemble.
	Estimators int

	// Alpha is the L2 regularization strength of each estimator.
	Alpha float64

	// Seed of bootstrap sampling.
	Seed uint64
}

func DefaultParams() Params {
	return Params{Estimators: 100, Alpha: 1e-3, Seed: 0}
}

// ParamsFrom reads Params from hyperparameters.
//
// Missing keys take values from DefaultParams. Unknown keys are ignored.
func ParamsFrom(hyperparameters map[string]string) (Params, error) {
	p := DefaultParams()

	if v, ok := hyperparameters[HyperparameterEstimators]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("hyperparameter %s: %w", HyperparameterEstimators, err)
		}
		p.Estimators = n
	}
	if v, ok := hyperparameters[HyperparameterAlpha]; ok {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("hyperparameter %s: %w", HyperparameterAlpha, err)
		}
		p.Alpha = a
	}
	if v, ok := hyperparameters[HyperparameterSeed]; ok {
		s, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return p, fmt.Errorf("hyperparameter %s: %w", HyperparameterSeed, err)
		}
		p.Seed = s
	}

	if p.Estimators < 1 {
		return p, fmt.Errorf("hyperparameter %s should be positive: %d", HyperparameterEstimators, p.Estimators)
	}
	if p.Alpha <= 0 {
		return p, fmt.Errorf("hyperparameter %s should be positive: %g", HyperparameterAlpha, p.Alpha)
	}
	return p, nil
}

// Linear is a fitted linear model: y = Intercept + Coefficients . x
type Linear struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (l Linear) predict(x []float64) float64 {
	y := l.Intercept
	for i, c := range l.Coefficients {
		y += c * x[i]
	}
	return y
}

// Ensemble is a fitted model.
type Ensemble struct {
	Features   int      `json:"features"`
	Estimators []Linear `json:"estimators"`
}

// Fit fits an ensemble.
//
// # Args
//
// - x: rows of features. All rows should have the same length.
//
// - y: targets. len(y) should equal len(x).
//
// - params: Params.
func Fit(x [][]float64, y []float64, params Params) (*Ensemble, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrShape)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d samples, %d targets", ErrShape, len(x), len(y))
	}
	features := len(x[0])
	for i, row := range x {
		if len(row) != features {
			return nil, fmt.Errorf("%w: row #%d has %d features, expected %d", ErrShape, i, len(row), features)
		}
	}
	if params.Estimators < 1 {
		return nil, fmt.Errorf("estimators should be positive: %d", params.Estimators)
	}

	rng := rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15))
	n := len(x)
	ens := &Ensemble{Features: features, Estimators: make([]Linear, 0, params.Estimators)}
	for range params.Estimators {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		est, err := fitRidge(x, y, sample, params.Alpha)
		if err != nil {
			return nil, err
		}
		ens.Estimators = append(ens.Estimators, est)
	}
	return ens, nil
}

// fitRidge fits a ridge regression on the rows of x selected by sample.
//
// Features and targets are centered so that the intercept is not penalized.
func fitRidge(x [][]float64, y []float64, sample []int, alpha float64) (Linear, error) {
	n, p := len(sample), len(x[0])

	xs := mat.NewDense(n, p, nil)
	ys := make([]float64, n)
	for i, s := range sample {
		xs.SetRow(i, x[s])
		ys[i] = y[s]
	}

	means := make([]float64, p)
	for j := range p {
		means[j] = stat.Mean(mat.Col(nil, j, xs), nil)
	}
	ymean := stat.Mean(ys, nil)

	xs.Apply(func(_, j int, v float64) float64 { return v - means[j] }, xs)
	yc := mat.NewVecDense(n, nil)
	for i, v := range ys {
		yc.SetVec(i, v-ymean)
	}

	// (X'X + alpha I) beta = X'y
	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, xs.T())
	for j := range p {
		gram.SetSym(j, j, gram.At(j, j)+alpha)
	}
	xty := mat.NewVecDense(p, nil)
	xty.MulVec(xs.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return Linear{}, errors.New("ridge system is not positive definite")
	}
	beta := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(beta, xty); err != nil {
		return Linear{}, fmt.Errorf("failed to solve ridge system: %w", err)
	}

	coef := make([]float64, p)
	intercept := ymean
	for j := range p {
		coef[j] = beta.AtVec(j)
		intercept -= coef[j] * means[j]
	}
	return Linear{Intercept: intercept, Coefficients: coef}, nil
}

// Predict returns predictions for each row of x.
func (e *Ensemble) Predict(x [][]float64) ([]float64, error) {
	if len(e.Estimators) == 0 {
		return nil, ErrNotFitted
	}
	pred := make([]float64, len(x))
	for i, row := range x {
		if len(row) != e.Features {
			return nil, fmt.Errorf("%w: row #%d has %d features, model expects %d", ErrShape, i, len(row), e.Features)
		}
		sum := 0.0
		for _, est := range e.Estimators {
			sum += est.predict(row)
		}
		pred[i] = sum / float64(len(e.Estimators))
	}
	return pred, nil
}

// MeanSquaredError returns mean((predicted - truth)^2).
func MeanSquaredError(predicted, truth []float64) (float64, error) {
	if len(predicted) != len(truth) {
		return 0, fmt.Errorf("%w: %d predictions, %d truths", ErrShape, len(predicted), len(truth))
	}
	if len(truth) == 0 {
		return 0, fmt.Errorf("%w: no samples", ErrShape)
	}
	sq := make([]float64, len(truth))
	for i := range truth {
		d := predicted[i] - truth[i]
		sq[i] = d * d
	}
	return stat.Mean(sq, nil), nil
}

// Save writes the model into dir as ArtifactName.
func (e *Ensemble) Save(dir string) (string, error) {
	dest := filepath.Join(dir, ArtifactName)
	content, err := json.Marshal(e)
	if err != nil {
		return "", err
	}

	// write and rename, so that watchers never see a half-written model.
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Load reads a model saved by Save from dir.
func Load(dir string) (*Ensemble, error) {
	content, err := os.ReadFile(filepath.Join(dir, ArtifactName))
	if err != nil {
		return nil, err
	}
	e := new(Ensemble)
	if err := json.Unmarshal(content, e); err != nil {
		return nil, fmt.Errorf("broken model file: %w", err)
	}
	if len(e.Estimators) == 0 {
		return nil, ErrNotFitted
	}
	for i, est := range e.Estimators {
		if len(est.Coefficients) != e.Features {
			return nil, fmt.Errorf("%w: estimator #%d has %d coefficients, model has %d features", ErrShape, i, len(est.Coefficients), e.Features)
		}
	}
	return e, nil
}
