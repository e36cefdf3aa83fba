package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"echostate/internal/dataset"
	"echostate/internal/model"
	"echostate/internal/search"
	"echostate/internal/storage"
	esapi "echostate/pkg/echostate"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "eval":
		return runEval(ctx, args[1:])
	case "predict":
		return runPredict(ctx, args[1:])
	case "search":
		return runSearch(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "datasets":
		return runDatasets(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: echostatectl <init|train|eval|predict|search|runs|export|datasets> [flags]", msg)
}

func newClient(storeKind, dbPath string, verbose bool) (*esapi.Client, error) {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	return esapi.New(esapi.Options{StoreKind: storeKind, DBPath: dbPath, Logger: log})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "echostate.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "echostate.db", "sqlite database path")
	configPath := fs.String("config", "", "JSON config file for the train request")
	kind := fs.String("kind", model.EstimatorRegressor, "estimator kind: regressor|classifier")
	datasetName := fs.String("dataset", "", "dataset name (see the datasets command)")
	steps := fs.Int("steps", 1000, "total signal steps")
	seqLen := fs.Int("seq-len", 0, "window length; 0 trains on the whole signal")
	perClass := fs.Int("per-class", 10, "classifier sequences per class")
	seed := fs.Int64("seed", 0, "random seed")
	modelID := fs.String("model", "", "model id; generated when empty")
	hidden := fs.Int("hidden", 50, "reservoir size")
	radius := fs.Float64("radius", 0.9, "spectral radius")
	leakage := fs.Float64("leakage", 1.0, "leakage in (0,1]")
	alpha := fs.Float64("alpha", 1e-6, "ridge regularization")
	bidirectional := fs.Bool("bidirectional", false, "run forward and reverse passes")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var req esapi.TrainRequest
	if *configPath != "" {
		loaded, err := loadTrainRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
	} else {
		req = esapi.TrainRequest{
			Kind:     *kind,
			Dataset:  *datasetName,
			Steps:    *steps,
			SeqLen:   *seqLen,
			PerClass: *perClass,
			Seed:     *seed,
			ModelID:  *modelID,
		}
		req.Params.Reservoir = model.ReservoirConfig{
			HiddenSize:        *hidden,
			InputScaling:      0.5,
			BiasScaling:       0.1,
			SpectralRadius:    *radius,
			Leakage:           *leakage,
			SparsityRecurrent: 0.5,
			Bidirectional:     *bidirectional,
			Activation:        "tanh",
			Seed:              *seed,
		}
		req.Params.Alpha = *alpha
	}

	client, err := newClient(*storeKind, *dbPath, *verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run=%s model=%s kind=%s dataset=%s\n", summary.RunID, summary.ModelID, summary.Kind, summary.Dataset)
	fmt.Printf("%s train=%.6g test=%.6g in %.2fs, model size %s\n",
		summary.Metric, summary.TrainScore, summary.TestScore, summary.TrainSeconds, summary.SizeHuman)
	return nil
}

func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "echostate.db", "sqlite database path")
	modelID := fs.String("model", "", "model id to evaluate")
	datasetName := fs.String("dataset", "", "dataset name; defaults per model kind")
	steps := fs.Int("steps", 1000, "total signal steps")
	seed := fs.Int64("seed", 1, "dataset seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelID == "" {
		return usageError("eval requires -model")
	}

	client, err := newClient(*storeKind, *dbPath, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Evaluate(ctx, esapi.EvaluateRequest{
		ModelID: *modelID,
		Dataset: *datasetName,
		Steps:   *steps,
		Seed:    *seed,
	})
	if err != nil {
		return err
	}
	fmt.Printf("model=%s dataset=%s %s=%.6g\n", summary.ModelID, summary.Dataset, summary.Metric, summary.Score)
	return nil
}

func runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "echostate.db", "sqlite database path")
	modelID := fs.String("model", "", "model id to predict with")
	datasetName := fs.String("dataset", dataset.NameSine, "dataset to generate inputs from")
	steps := fs.Int("steps", 200, "input steps")
	seed := fs.Int64("seed", 1, "dataset seed")
	outPath := fs.String("out", "", "write predictions to this JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelID == "" {
		return usageError("predict requires -model")
	}

	client, err := newClient(*storeKind, *dbPath, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	data, err := dataset.GenerateRegression(*datasetName, *seed, *steps)
	if err != nil {
		return err
	}
	result, err := client.Predict(ctx, esapi.PredictRequest{ModelID: *modelID, Inputs: data.Inputs})
	if err != nil {
		return err
	}

	switch result.Kind {
	case model.EstimatorRegressor:
		rows, _ := result.Outputs[0].Dims()
		preview := rows
		if preview > 5 {
			preview = 5
		}
		fmt.Printf("model=%s predicted %d steps\n", result.ModelID, rows)
		for i := 0; i < preview; i++ {
			fmt.Printf("  step %d: %.6g\n", i, result.Outputs[0].At(i, 0))
		}
		if *outPath != "" {
			values := make([]float64, rows)
			for i := 0; i < rows; i++ {
				values[i] = result.Outputs[0].At(i, 0)
			}
			payload, err := json.MarshalIndent(values, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(*outPath, payload, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", *outPath)
		}
	case model.EstimatorClassifier:
		fmt.Printf("model=%s labels=%v\n", result.ModelID, result.Labels)
	}
	return nil
}

func runSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "echostate.db", "sqlite database path")
	configPath := fs.String("config", "", "JSON config file for the search request")
	kind := fs.String("kind", model.EstimatorRegressor, "estimator kind: regressor|classifier")
	datasetName := fs.String("dataset", "", "dataset name; defaults per kind")
	steps := fs.Int("steps", 1000, "total signal steps")
	seed := fs.Int64("seed", 0, "search and dataset seed")
	budget := fs.Int("budget", 20, "candidate evaluations per round")
	rounds := fs.Int("rounds", 1, "search rounds; later rounds restart from the best so far")
	policy := fs.String("policy", "fixed", "round budget policy: fixed|linear_decay")
	radiusRange := fs.String("radius", "0.5:1.2", "spectral radius low:high")
	leakRange := fs.String("leak", "", "leakage low:high; empty keeps the base value")
	alphas := fs.String("alphas", "1e-6,1e-4,1e-2", "comma-separated ridge alphas")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var req esapi.SearchRequest
	if *configPath != "" {
		loaded, err := loadSearchRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
	} else {
		space, err := parseSpace(*radiusRange, *leakRange, *alphas)
		if err != nil {
			return err
		}
		req = esapi.SearchRequest{
			Kind:    *kind,
			Dataset: *datasetName,
			Steps:   *steps,
			Seed:    *seed,
			Budget:  *budget,
			Rounds:  *rounds,
			Policy:  *policy,
			Space:   space,
		}
	}

	client, err := newClient(*storeKind, *dbPath, *verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Search(ctx, req)
	if err != nil {
		return err
	}
	score := summary.Score
	if summary.Metric == esapi.MetricMSE {
		// regressor search maximizes negated error
		score = -score
	}
	fmt.Printf("best %s=%.6g after %d evaluations\n", summary.Metric, score, summary.Evaluations)
	fmt.Printf("  hidden=%d radius=%.4g leakage=%.4g alpha=%.4g seed=%d\n",
		summary.Best.Reservoir.HiddenSize,
		summary.Best.Reservoir.SpectralRadius,
		summary.Best.Reservoir.Leakage,
		summary.Best.Alpha,
		summary.Best.Reservoir.Seed)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "echostate.db", "sqlite database path")
	limit := fs.Int("limit", 0, "show at most this many runs; 0 shows all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, esapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  model=%s kind=%s dataset=%s seed=%d %s train=%.6g test=%.6g size=%s\n",
			run.CreatedAtUTC, run.RunID, run.ModelID, run.Kind, run.Dataset, run.Seed,
			run.Metric, run.TrainScore, run.TestScore, run.SizeHuman)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "echostate.db", "sqlite database path")
	modelID := fs.String("model", "", "model id to export")
	outDir := fs.String("out-dir", "exports", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelID == "" {
		return usageError("export requires -model")
	}

	client, err := newClient(*storeKind, *dbPath, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, esapi.ExportRequest{ModelID: *modelID, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported model=%s to %s (%s)\n", summary.ModelID, summary.Path, humanize.Bytes(uint64(summary.Bytes)))
	return nil
}

func runDatasets(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("datasets", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("available datasets:")
	for _, name := range dataset.Names() {
		kind := "regression"
		if name == dataset.NameFrequencyBands {
			kind = "classification"
		}
		fmt.Printf("  %-14s %s\n", name, kind)
	}
	return nil
}

// parseSpace builds a search space from the CLI's low:high and
// comma-separated flag forms.
func parseSpace(radiusRange, leakRange, alphaList string) (space search.Space, err error) {
	if radiusRange != "" {
		if space.SpectralRadius, err = parseRange(radiusRange); err != nil {
			return space, fmt.Errorf("radius: %w", err)
		}
	}
	if leakRange != "" {
		if space.Leakage, err = parseRange(leakRange); err != nil {
			return space, fmt.Errorf("leak: %w", err)
		}
	}
	if alphaList != "" {
		for _, part := range strings.Split(alphaList, ",") {
			var v float64
			if _, err := fmt.Sscanf(strings.TrimSpace(part), "%g", &v); err != nil {
				return space, fmt.Errorf("alphas: bad value %q", part)
			}
			space.Alphas = append(space.Alphas, v)
		}
	}
	return space, nil
}

func parseRange(s string) ([2]float64, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return [2]float64{}, fmt.Errorf("want low:high, got %q", s)
	}
	var lo, hi float64
	if _, err := fmt.Sscanf(parts[0], "%g", &lo); err != nil {
		return [2]float64{}, fmt.Errorf("bad low bound %q", parts[0])
	}
	if _, err := fmt.Sscanf(parts[1], "%g", &hi); err != nil {
		return [2]float64{}, fmt.Errorf("bad high bound %q", parts[1])
	}
	if hi <= lo {
		return [2]float64{}, fmt.Errorf("empty range %q", s)
	}
	return [2]float64{lo, hi}, nil
}
