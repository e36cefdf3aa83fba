// Package echostate is the public client for training, evaluating and
// persisting echo state network estimators.
package echostate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"echostate/internal/dataset"
	"echostate/internal/estimator"
	"echostate/internal/metrics"
	"echostate/internal/model"
	"echostate/internal/search"
	"echostate/internal/storage"
)

const (
	defaultDBPath     = "echostate.db"
	defaultExportsDir = "exports"

	MetricMSE      = "mse"
	MetricAccuracy = "accuracy"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
	Logger     *logrus.Logger
}

type Client struct {
	store      storage.Store
	log        *logrus.Logger
	exportsDir string

	initOnce sync.Once
	initErr  error
}

type TrainRequest struct {
	Kind         string // regressor | classifier
	Dataset      string
	Steps        int
	SeqLen       int  // chop the signal into windows of this length
	AsList       bool // train on the window list instead of one signal
	PerClass     int  // classifier sequences per class
	TestFraction float64
	Seed         int64
	ModelID      string
	Params       estimator.Params
}

type TrainSummary struct {
	RunID        string
	ModelID      string
	Kind         string
	Dataset      string
	Metric       string
	TrainScore   float64
	TestScore    float64
	TrainSeconds float64
	SizeBytes    int64
	SizeHuman    string
}

type EvaluateRequest struct {
	ModelID string
	Dataset string
	Steps   int
	SeqLen  int
	AsList  bool
	Seed    int64
}

type EvaluateSummary struct {
	ModelID string
	Dataset string
	Metric  string
	Score   float64
}

type PredictRequest struct {
	ModelID string
	Inputs  []*mat.Dense
}

type PredictResult struct {
	ModelID string
	Kind    string
	Outputs []*mat.Dense // regressor: one output sequence per input
	Labels  []int        // classifier: one label per input
}

type SearchRequest struct {
	Kind         string
	Dataset      string
	Steps        int
	SeqLen       int
	PerClass     int
	TestFraction float64
	Seed         int64
	Budget       int
	Rounds       int     // search rounds; each starts from the best so far
	Policy       string  // budget policy: fixed | linear_decay
	PolicyParam  float64 // policy parameter (linear_decay: minimum round budget)
	Space        search.Space
	Base         estimator.Params
}

type SearchSummary struct {
	Best        estimator.Params
	Score       float64
	Metric      string
	Evaluations int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	model.RunRecord
	SizeHuman string
}

type ExportRequest struct {
	ModelID string
	OutDir  string
}

type ExportSummary struct {
	ModelID string
	Path    string
	Bytes   int64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		log:        log,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Train fits an estimator on a named synthetic dataset, persists the
// model and registers the run.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if err := c.Init(ctx); err != nil {
		return TrainSummary{}, err
	}
	applyTrainDefaults(&req)

	modelID := req.ModelID
	if modelID == "" {
		modelID = uuid.NewString()
	}
	runID := uuid.NewString()

	started := time.Now()
	var (
		rec        model.EstimatorRecord
		metric     string
		trainScore float64
		testScore  float64
		sizeBytes  int64
	)

	switch req.Kind {
	case model.EstimatorRegressor:
		trainIn, trainOut, testIn, testOut, err := regressionSplits(req)
		if err != nil {
			return TrainSummary{}, err
		}
		reg, err := estimator.NewRegressor(req.Params)
		if err != nil {
			return TrainSummary{}, err
		}
		if err := reg.Fit(ctx, trainIn, trainOut); err != nil {
			return TrainSummary{}, fmt.Errorf("fit %s: %w", req.Dataset, err)
		}
		metric = MetricMSE
		if trainScore, err = regressorScore(ctx, reg, trainIn, trainOut); err != nil {
			return TrainSummary{}, err
		}
		if testScore, err = regressorScore(ctx, reg, testIn, testOut); err != nil {
			return TrainSummary{}, err
		}
		sizeBytes = reg.SizeBytes()
		if rec, err = reg.Record(modelID); err != nil {
			return TrainSummary{}, err
		}

	case model.EstimatorClassifier:
		trainIn, trainLabels, testIn, testLabels, err := classificationSplits(req)
		if err != nil {
			return TrainSummary{}, err
		}
		clf, err := estimator.NewClassifier(req.Params)
		if err != nil {
			return TrainSummary{}, err
		}
		if err := clf.Fit(ctx, trainIn, trainLabels); err != nil {
			return TrainSummary{}, fmt.Errorf("fit %s: %w", req.Dataset, err)
		}
		metric = MetricAccuracy
		if trainScore, err = classifierScore(ctx, clf, trainIn, trainLabels); err != nil {
			return TrainSummary{}, err
		}
		if testScore, err = classifierScore(ctx, clf, testIn, testLabels); err != nil {
			return TrainSummary{}, err
		}
		sizeBytes = clf.SizeBytes()
		if rec, err = clf.Record(modelID); err != nil {
			return TrainSummary{}, err
		}

	default:
		return TrainSummary{}, fmt.Errorf("%w: unknown estimator kind %q", model.ErrConfig, req.Kind)
	}

	trainSeconds := time.Since(started).Seconds()

	storage.Stamp(&rec.VersionedRecord)
	if err := c.store.SaveModel(ctx, rec); err != nil {
		return TrainSummary{}, fmt.Errorf("save model %s: %w", modelID, err)
	}

	run := model.RunRecord{
		RunID:        runID,
		ModelID:      modelID,
		Kind:         req.Kind,
		Dataset:      req.Dataset,
		Seed:         req.Seed,
		Metric:       metric,
		TrainScore:   trainScore,
		TestScore:    testScore,
		TrainSeconds: trainSeconds,
		SizeBytes:    sizeBytes,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	storage.Stamp(&run.VersionedRecord)
	if err := c.store.SaveRun(ctx, run); err != nil {
		return TrainSummary{}, fmt.Errorf("save run %s: %w", runID, err)
	}

	c.log.WithFields(logrus.Fields{
		"run_id":      runID,
		"model_id":    modelID,
		"kind":        req.Kind,
		"dataset":     req.Dataset,
		"metric":      metric,
		"train_score": trainScore,
		"test_score":  testScore,
		"size":        humanize.Bytes(uint64(sizeBytes)),
	}).Info("trained model")

	return TrainSummary{
		RunID:        runID,
		ModelID:      modelID,
		Kind:         req.Kind,
		Dataset:      req.Dataset,
		Metric:       metric,
		TrainScore:   trainScore,
		TestScore:    testScore,
		TrainSeconds: trainSeconds,
		SizeBytes:    sizeBytes,
		SizeHuman:    humanize.Bytes(uint64(sizeBytes)),
	}, nil
}

// Evaluate scores a stored model on a freshly generated dataset.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	if err := c.Init(ctx); err != nil {
		return EvaluateSummary{}, err
	}
	rec, ok, err := c.store.GetModel(ctx, req.ModelID)
	if err != nil {
		return EvaluateSummary{}, err
	}
	if !ok {
		return EvaluateSummary{}, fmt.Errorf("model %s not found", req.ModelID)
	}
	if req.Steps <= 0 {
		req.Steps = 1000
	}

	switch rec.Kind {
	case model.EstimatorRegressor:
		if req.Dataset == "" {
			req.Dataset = dataset.NameSine
		}
		reg, err := estimator.RegressorFromRecord(rec)
		if err != nil {
			return EvaluateSummary{}, err
		}
		data, err := dataset.GenerateRegression(req.Dataset, req.Seed, req.Steps)
		if err != nil {
			return EvaluateSummary{}, err
		}
		ins, outs, err := dataset.SplitSignal(data.Inputs[0], data.Targets[0], req.SeqLen, req.AsList)
		if err != nil {
			return EvaluateSummary{}, err
		}
		score, err := regressorScore(ctx, reg, ins, outs)
		if err != nil {
			return EvaluateSummary{}, err
		}
		return EvaluateSummary{ModelID: req.ModelID, Dataset: req.Dataset, Metric: MetricMSE, Score: score}, nil

	case model.EstimatorClassifier:
		if req.Dataset == "" {
			req.Dataset = dataset.NameFrequencyBands
		}
		clf, err := estimator.ClassifierFromRecord(rec)
		if err != nil {
			return EvaluateSummary{}, err
		}
		data, err := dataset.GenerateClassification(req.Dataset, req.Seed, 10, req.Steps/10)
		if err != nil {
			return EvaluateSummary{}, err
		}
		score, err := classifierScore(ctx, clf, data.Inputs, data.Labels)
		if err != nil {
			return EvaluateSummary{}, err
		}
		return EvaluateSummary{ModelID: req.ModelID, Dataset: req.Dataset, Metric: MetricAccuracy, Score: score}, nil

	default:
		return EvaluateSummary{}, fmt.Errorf("%w: stored model has unknown kind %q", model.ErrConfig, rec.Kind)
	}
}

// Predict runs caller-supplied input sequences through a stored model.
func (c *Client) Predict(ctx context.Context, req PredictRequest) (PredictResult, error) {
	if err := c.Init(ctx); err != nil {
		return PredictResult{}, err
	}
	rec, ok, err := c.store.GetModel(ctx, req.ModelID)
	if err != nil {
		return PredictResult{}, err
	}
	if !ok {
		return PredictResult{}, fmt.Errorf("model %s not found", req.ModelID)
	}

	switch rec.Kind {
	case model.EstimatorRegressor:
		reg, err := estimator.RegressorFromRecord(rec)
		if err != nil {
			return PredictResult{}, err
		}
		outputs, err := reg.Predict(ctx, req.Inputs)
		if err != nil {
			return PredictResult{}, err
		}
		return PredictResult{ModelID: req.ModelID, Kind: rec.Kind, Outputs: outputs}, nil

	case model.EstimatorClassifier:
		clf, err := estimator.ClassifierFromRecord(rec)
		if err != nil {
			return PredictResult{}, err
		}
		labels, err := clf.Predict(ctx, req.Inputs)
		if err != nil {
			return PredictResult{}, err
		}
		return PredictResult{ModelID: req.ModelID, Kind: rec.Kind, Labels: labels}, nil

	default:
		return PredictResult{}, fmt.Errorf("%w: stored model has unknown kind %q", model.ErrConfig, rec.Kind)
	}
}

// Search runs a seeded random hyperparameter search, scoring each
// candidate by held-out performance on the requested dataset.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchSummary, error) {
	if err := c.Init(ctx); err != nil {
		return SearchSummary{}, err
	}
	train := TrainRequest{
		Kind:         req.Kind,
		Dataset:      req.Dataset,
		Steps:        req.Steps,
		SeqLen:       req.SeqLen,
		AsList:       req.SeqLen > 0,
		PerClass:     req.PerClass,
		TestFraction: req.TestFraction,
		Seed:         req.Seed,
		Params:       req.Base,
	}
	applyTrainDefaults(&train)
	if req.Budget <= 0 {
		req.Budget = 20
	}

	var scorer search.Scorer
	var metric string
	switch train.Kind {
	case model.EstimatorRegressor:
		trainIn, trainOut, testIn, testOut, err := regressionSplits(train)
		if err != nil {
			return SearchSummary{}, err
		}
		metric = MetricMSE
		scorer = func(ctx context.Context, p estimator.Params) (float64, error) {
			reg, err := estimator.NewRegressor(p)
			if err != nil {
				return 0, err
			}
			if err := reg.Fit(ctx, trainIn, trainOut); err != nil {
				return 0, err
			}
			mse, err := regressorScore(ctx, reg, testIn, testOut)
			if err != nil {
				return 0, err
			}
			return -mse, nil
		}

	case model.EstimatorClassifier:
		trainIn, trainLabels, testIn, testLabels, err := classificationSplits(train)
		if err != nil {
			return SearchSummary{}, err
		}
		metric = MetricAccuracy
		scorer = func(ctx context.Context, p estimator.Params) (float64, error) {
			clf, err := estimator.NewClassifier(p)
			if err != nil {
				return 0, err
			}
			if err := clf.Fit(ctx, trainIn, trainLabels); err != nil {
				return 0, err
			}
			return classifierScore(ctx, clf, testIn, testLabels)
		}

	default:
		return SearchSummary{}, fmt.Errorf("%w: unknown estimator kind %q", model.ErrConfig, train.Kind)
	}

	policy, err := search.BudgetPolicyFromConfig(req.Policy, req.PolicyParam)
	if err != nil {
		return SearchSummary{}, fmt.Errorf("%w: %v", model.ErrConfig, err)
	}
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = 1
	}

	searcher := &search.RandomSearch{
		Rand:  rand.New(rand.NewSource(req.Seed)),
		Space: req.Space,
	}

	// Later rounds restart from the best parameters found so far, with
	// each round's budget sized by the policy.
	base := train.Params
	var best search.Result
	evaluations := 0
	for round := 1; round <= rounds; round++ {
		budget := policy.Budget(req.Budget, round, rounds)
		if budget <= 0 {
			continue
		}
		result, err := searcher.Search(ctx, base, budget, scorer)
		if err != nil {
			return SearchSummary{}, err
		}
		if evaluations == 0 || result.Score > best.Score {
			best = result
		}
		evaluations += result.Evaluations
		base = best.Params
	}
	if evaluations == 0 {
		return SearchSummary{}, fmt.Errorf("%w: budget policy %s produced no rounds", model.ErrConfig, policy.Name())
	}

	c.log.WithFields(logrus.Fields{
		"kind":        train.Kind,
		"dataset":     train.Dataset,
		"metric":      metric,
		"policy":      policy.Name(),
		"rounds":      rounds,
		"score":       best.Score,
		"evaluations": evaluations,
	}).Info("search finished")

	return SearchSummary{
		Best:        best.Params,
		Score:       best.Score,
		Metric:      metric,
		Evaluations: evaluations,
	}, nil
}

// Runs lists registered training runs, most recent last.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(runs) > req.Limit {
		runs = runs[len(runs)-req.Limit:]
	}
	items := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, RunItem{
			RunRecord: run,
			SizeHuman: humanize.Bytes(uint64(run.SizeBytes)),
		})
	}
	return items, nil
}

// Export writes a stored model record to a JSON file.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ExportSummary{}, err
	}
	if req.ModelID == "" {
		return ExportSummary{}, errors.New("model id is required")
	}
	rec, ok, err := c.store.GetModel(ctx, req.ModelID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("model %s not found", req.ModelID)
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ExportSummary{}, err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return ExportSummary{}, err
	}
	path := filepath.Join(outDir, req.ModelID+".model.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ExportSummary{}, err
	}

	c.log.WithFields(logrus.Fields{
		"model_id": req.ModelID,
		"path":     path,
		"size":     humanize.Bytes(uint64(len(data))),
	}).Info("exported model")

	return ExportSummary{ModelID: req.ModelID, Path: path, Bytes: int64(len(data))}, nil
}

func applyTrainDefaults(req *TrainRequest) {
	if req.Kind == "" {
		req.Kind = model.EstimatorRegressor
	}
	if req.Dataset == "" {
		if req.Kind == model.EstimatorClassifier {
			req.Dataset = dataset.NameFrequencyBands
		} else {
			req.Dataset = dataset.NameSine
		}
	}
	if req.Steps <= 0 {
		req.Steps = 1000
	}
	if req.PerClass <= 0 {
		req.PerClass = 10
	}
	if req.TestFraction <= 0 || req.TestFraction >= 1 {
		req.TestFraction = 0.2
	}
	// Alpha defaults only alongside a defaulted reservoir. A caller who
	// supplies parameters keeps alpha as given, zero included: an
	// unregularized fit is valid and falls back to the minimum-norm
	// solution when the system is singular.
	if req.Params.Reservoir.HiddenSize == 0 {
		req.Params.Reservoir = model.ReservoirConfig{
			HiddenSize:        50,
			InputScaling:      0.5,
			BiasScaling:       0.1,
			SpectralRadius:    0.9,
			Leakage:           1.0,
			SparsityRecurrent: 0.5,
			Activation:        "tanh",
			Seed:              req.Seed,
		}
		if req.Params.Alpha == 0 {
			req.Params.Alpha = 1e-6
		}
	}
	if req.SeqLen > 0 {
		req.AsList = true
	}
}

// regressionSplits generates the dataset and partitions it. Without
// windowing the whole signal is split in time instead, so both halves
// stay non-empty.
func regressionSplits(req TrainRequest) (trainIn, trainOut, testIn, testOut []*mat.Dense, err error) {
	data, err := dataset.GenerateRegression(req.Dataset, req.Seed, req.Steps)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	signal, targets := data.Inputs[0], data.Targets[0]

	if !req.AsList {
		steps, ic := signal.Dims()
		_, tc := targets.Dims()
		cut := steps - int(float64(steps)*req.TestFraction)
		if cut < 1 || cut >= steps {
			return nil, nil, nil, nil, fmt.Errorf("%w: test fraction %v leaves no usable split over %d steps", model.ErrConfig, req.TestFraction, steps)
		}
		trainIn = []*mat.Dense{signal.Slice(0, cut, 0, ic).(*mat.Dense)}
		trainOut = []*mat.Dense{targets.Slice(0, cut, 0, tc).(*mat.Dense)}
		testIn = []*mat.Dense{signal.Slice(cut, steps, 0, ic).(*mat.Dense)}
		testOut = []*mat.Dense{targets.Slice(cut, steps, 0, tc).(*mat.Dense)}
		return trainIn, trainOut, testIn, testOut, nil
	}

	ins, outs, err := dataset.SplitSignal(signal, targets, req.SeqLen, true)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return dataset.TrainTestSplit(ins, outs, req.TestFraction, req.Seed)
}

func classificationSplits(req TrainRequest) (trainIn []*mat.Dense, trainLabels [][]int, testIn []*mat.Dense, testLabels [][]int, err error) {
	steps := req.Steps / req.PerClass
	if steps < 2 {
		steps = 2
	}
	data, err := dataset.GenerateClassification(req.Dataset, req.Seed, req.PerClass, steps)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	perm := rand.New(rand.NewSource(req.Seed)).Perm(len(data.Inputs))
	testCount := int(float64(len(data.Inputs)) * req.TestFraction)
	if testCount < 1 {
		testCount = 1
	}
	if testCount >= len(data.Inputs) {
		testCount = len(data.Inputs) - 1
	}
	for i, idx := range perm {
		if i < testCount {
			testIn = append(testIn, data.Inputs[idx])
			testLabels = append(testLabels, data.Labels[idx])
		} else {
			trainIn = append(trainIn, data.Inputs[idx])
			trainLabels = append(trainLabels, data.Labels[idx])
		}
	}
	return trainIn, trainLabels, testIn, testLabels, nil
}

func regressorScore(ctx context.Context, reg *estimator.Regressor, inputs, targets []*mat.Dense) (float64, error) {
	preds, err := reg.Predict(ctx, inputs)
	if err != nil {
		return 0, err
	}
	total, count := 0.0, 0
	for i := range preds {
		mse, err := metrics.MSE(preds[i], targets[i])
		if err != nil {
			return 0, err
		}
		rows, _ := preds[i].Dims()
		total += mse * float64(rows)
		count += rows
	}
	return total / float64(count), nil
}

func classifierScore(ctx context.Context, clf *estimator.Classifier, inputs []*mat.Dense, labels [][]int) (float64, error) {
	preds, err := clf.Predict(ctx, inputs)
	if err != nil {
		return 0, err
	}
	want := make([]int, len(labels))
	for i := range labels {
		// Sequence-level truth: broadcast label, or the final step's.
		want[i] = labels[i][len(labels[i])-1]
	}
	return metrics.Accuracy(preds, want)
}
