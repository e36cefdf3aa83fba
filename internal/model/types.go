package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ReservoirConfig holds every hyperparameter needed to reconstruct a
// reservoir deterministically.
type ReservoirConfig struct {
	HiddenSize        int     `json:"hidden_size"`
	InputScaling      float64 `json:"input_scaling"`
	InputShift        float64 `json:"input_shift"`
	BiasScaling       float64 `json:"bias_scaling"`
	BiasShift         float64 `json:"bias_shift"`
	SpectralRadius    float64 `json:"spectral_radius"`
	Leakage           float64 `json:"leakage"`
	SparsityInput     float64 `json:"sparsity_input"`
	SparsityRecurrent float64 `json:"sparsity_recurrent"`
	Bidirectional     bool    `json:"bidirectional"`
	Activation        string  `json:"activation"`
	Seed              int64   `json:"seed"`
}

// Matrix is a row-major dense matrix in serializable form.
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// NumElements returns the element count implied by the dimensions.
func (m Matrix) NumElements() int {
	return m.Rows * m.Cols
}

// WeightRecord is the persistent form of a reservoir weight set.
type WeightRecord struct {
	Input     Matrix    `json:"input"`
	Recurrent Matrix    `json:"recurrent"`
	Bias      []float64 `json:"bias"`
}

// ReadoutRecord is the persistent form of a fitted linear readout.
// Weights are stored feature-major: Rows equals the reservoir feature
// width, Cols equals the output width.
type ReadoutRecord struct {
	Weights   Matrix    `json:"weights"`
	Intercept []float64 `json:"intercept,omitempty"`
	Alpha     float64   `json:"alpha"`
}

const (
	EstimatorRegressor  = "regressor"
	EstimatorClassifier = "classifier"
)

// EstimatorRecord bundles config, weights and readout: everything
// required to rebuild a fitted estimator bit-for-bit.
type EstimatorRecord struct {
	VersionedRecord
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Config       ReservoirConfig `json:"config"`
	InputDim     int             `json:"input_dim"`
	OutputDim    int             `json:"output_dim"`
	FitIntercept bool            `json:"fit_intercept"`
	Decision     string          `json:"decision,omitempty"`
	Classes      []int           `json:"classes,omitempty"`
	Weights      WeightRecord    `json:"weights"`
	Readout      ReadoutRecord   `json:"readout"`
	CreatedAtUTC string          `json:"created_at_utc"`
}

// RunRecord summarizes one training run for the run registry.
type RunRecord struct {
	VersionedRecord
	RunID        string  `json:"run_id"`
	ModelID      string  `json:"model_id"`
	Kind         string  `json:"kind"`
	Dataset      string  `json:"dataset"`
	Seed         int64   `json:"seed"`
	Metric       string  `json:"metric"`
	TrainScore   float64 `json:"train_score"`
	TestScore    float64 `json:"test_score"`
	TrainSeconds float64 `json:"train_seconds"`
	SizeBytes    int64   `json:"size_bytes"`
	CreatedAtUTC string  `json:"created_at_utc"`
}
