// Package preprocess turns an engineered feature frame into the scaled
// numeric matrix an estimator consumes. The fitted state (encoder tables,
// scaler statistics, feature-name list) is created once at training time and
// reused verbatim for every later transform; only an explicit refit replaces
// it.
package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wareflow/kpiengine/internal/dataset"
)

// ErrNotFitted is returned when Transform is called before FitTransform.
var ErrNotFitted = errors.New("preprocess: transform called before fit")

// UnseenCategoryError reports a categorical value absent from the fitted
// encoder table. Unseen categories fail fast; silently coercing them would
// feed the model an undefined code.
type UnseenCategoryError struct {
	Column string
	Value  string
}

func (e *UnseenCategoryError) Error() string {
	return fmt.Sprintf("preprocess: unseen category %q in column %q", e.Value, e.Column)
}

// ColumnContractError reports a transform-time frame whose column set differs
// from the one captured at fit time.
type ColumnContractError struct {
	Missing []string
	Extra   []string
}

func (e *ColumnContractError) Error() string {
	return fmt.Sprintf("preprocess: feature columns differ from fitted contract (missing %v, extra %v)", e.Missing, e.Extra)
}

// Columns dropped before modeling: identifiers and the raw date carry no
// predictive signal once the temporal features are derived.
var dropColumns = []string{
	dataset.ColItemID,
	dataset.ColLastRestockDate,
	dataset.ColStorageLocationID,
}

// Categorical columns encoded to integer codes.
var categoricalColumns = []string{dataset.ColCategory, dataset.ColZone}

// State is the serializable fitted state of a Preprocessor.
type State struct {
	Encoders     map[string]map[string]int `json:"encoders"`
	FeatureNames []string                  `json:"feature_names"`
	Means        []float64                 `json:"means"`
	Scales       []float64                 `json:"scales"`
}

// Preprocessor drops identifiers, encodes categoricals, scales numerics and
// enforces the feature-column contract between training and inference.
type Preprocessor struct {
	fitted bool
	state  State
}

// New returns an unfitted preprocessor.
func New() *Preprocessor {
	return &Preprocessor{}
}

// FromState restores a preprocessor from persisted fitted state.
func FromState(state State) (*Preprocessor, error) {
	if len(state.FeatureNames) == 0 {
		return nil, errors.New("preprocess: state has no feature names")
	}
	if len(state.Means) != len(state.FeatureNames) || len(state.Scales) != len(state.FeatureNames) {
		return nil, errors.New("preprocess: scaler statistics do not match feature names")
	}
	return &Preprocessor{fitted: true, state: state}, nil
}

// State returns a copy of the fitted state for persistence.
func (p *Preprocessor) State() (State, error) {
	if !p.fitted {
		return State{}, ErrNotFitted
	}
	out := State{
		Encoders:     make(map[string]map[string]int, len(p.state.Encoders)),
		FeatureNames: append([]string(nil), p.state.FeatureNames...),
		Means:        append([]float64(nil), p.state.Means...),
		Scales:       append([]float64(nil), p.state.Scales...),
	}
	for col, table := range p.state.Encoders {
		copied := make(map[string]int, len(table))
		for k, v := range table {
			copied[k] = v
		}
		out.Encoders[col] = copied
	}
	return out, nil
}

// MarshalState serializes fitted state to JSON.
func (p *Preprocessor) MarshalState() ([]byte, error) {
	state, err := p.State()
	if err != nil {
		return nil, err
	}
	return json.Marshal(state)
}

// UnmarshalState restores a preprocessor from a JSON state blob.
func UnmarshalState(data []byte) (*Preprocessor, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("preprocess: corrupt state blob: %w", err)
	}
	return FromState(state)
}

// FeatureNames returns the ordered feature list captured at fit time.
func (p *Preprocessor) FeatureNames() ([]string, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}
	return append([]string(nil), p.state.FeatureNames...), nil
}

// FitTransform fits encoder tables, the feature-name contract and scaler
// statistics on frame, then returns the scaled matrix and the target column
// (nil when the frame has no target).
func (p *Preprocessor) FitTransform(frame *dataset.Frame) (*mat.Dense, []float64, error) {
	work, target := split(frame)

	encoders := make(map[string]map[string]int, len(categoricalColumns))
	for _, col := range categoricalColumns {
		values, err := work.String(col)
		if err != nil {
			continue // categorical column absent is tolerated, mirroring fit on partial schemas
		}
		encoders[col] = fitEncoder(values)
	}

	names := featureOrder(work, encoders)
	raw, err := assemble(work, names, encoders)
	if err != nil {
		return nil, nil, err
	}

	rows := work.Rows()
	means := make([]float64, len(names))
	scales := make([]float64, len(names))
	for j := range names {
		col := mat.Col(nil, j, raw)
		means[j] = stat.Mean(col, nil)
		scales[j] = populationStd(col, means[j])
	}

	p.state = State{Encoders: encoders, FeatureNames: names, Means: means, Scales: scales}
	p.fitted = true

	scale(raw, rows, means, scales)
	return raw, target, nil
}

// Transform applies the fitted state to frame without mutating it. The frame
// must carry exactly the fitted feature columns.
func (p *Preprocessor) Transform(frame *dataset.Frame) (*mat.Dense, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}

	work, _ := split(frame)

	if err := p.checkContract(work); err != nil {
		return nil, err
	}

	raw, err := assemble(work, p.state.FeatureNames, p.state.Encoders)
	if err != nil {
		return nil, err
	}
	scale(raw, work.Rows(), p.state.Means, p.state.Scales)
	return raw, nil
}

// split drops identifier columns and separates the target. The input frame is
// never mutated.
func split(frame *dataset.Frame) (*dataset.Frame, []float64) {
	work := frame.Clone()
	for _, col := range dropColumns {
		work.Drop(col)
	}
	var target []float64
	if work.Has(dataset.ColTarget) {
		if col, err := work.Numeric(dataset.ColTarget); err == nil {
			target = append([]float64(nil), col...)
		}
		work.Drop(dataset.ColTarget)
	}
	return work, target
}

// featureOrder is encoded categoricals first, numeric columns after, each in
// frame insertion order. The list is frozen at fit time.
func featureOrder(work *dataset.Frame, encoders map[string]map[string]int) []string {
	var names []string
	for _, col := range work.StringNames() {
		if _, ok := encoders[col]; ok {
			names = append(names, col)
		}
	}
	names = append(names, work.NumericNames()...)
	return names
}

func (p *Preprocessor) checkContract(work *dataset.Frame) error {
	want := make(map[string]bool, len(p.state.FeatureNames))
	for _, name := range p.state.FeatureNames {
		want[name] = true
	}
	have := make(map[string]bool)
	for _, name := range work.StringNames() {
		if _, ok := p.state.Encoders[name]; ok {
			have[name] = true
		}
	}
	for _, name := range work.NumericNames() {
		have[name] = true
	}

	var missing, extra []string
	for name := range want {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	for name := range have {
		if !want[name] {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return &ColumnContractError{Missing: missing, Extra: extra}
	}
	return nil
}

// assemble builds the unscaled matrix in contract order.
func assemble(work *dataset.Frame, names []string, encoders map[string]map[string]int) (*mat.Dense, error) {
	rows := work.Rows()
	out := mat.NewDense(rows, len(names), nil)
	for j, name := range names {
		if table, ok := encoders[name]; ok {
			values, err := work.String(name)
			if err != nil {
				return nil, err
			}
			for i, v := range values {
				code, seen := table[v]
				if !seen {
					return nil, &UnseenCategoryError{Column: name, Value: v}
				}
				out.Set(i, j, float64(code))
			}
			continue
		}
		col, err := work.Numeric(name)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// fitEncoder assigns integer codes by sorted category order, so the mapping
// is deterministic for a given training set.
func fitEncoder(values []string) map[string]int {
	seen := make(map[string]bool, len(values))
	var classes []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)
	table := make(map[string]int, len(classes))
	for i, c := range classes {
		table[c] = i
	}
	return table
}

// populationStd is the scaler's denominator. A constant column scales by 1 so
// it maps to zero instead of NaN.
func populationStd(col []float64, mean float64) float64 {
	if len(col) == 0 {
		return 1
	}
	var sum float64
	for _, v := range col {
		d := v - mean
		sum += d * d
	}
	std := sum / float64(len(col))
	if std == 0 {
		return 1
	}
	return math.Sqrt(std)
}

func scale(m *mat.Dense, rows int, means, scales []float64) {
	for j := range means {
		for i := 0; i < rows; i++ {
			m.Set(i, j, (m.At(i, j)-means[j])/scales[j])
		}
	}
}
