package classifier

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-segment/tensor"
)

// Hidden layer widths of the pixel classifier.
const (
	hidden1 = 128
	hidden2 = 32
)

// PixelClassifier maps a D-dimensional per-pixel feature vector to logits
// over the class set:
//
//	Dense(D, 128) -> ReLU -> BatchNorm -> Dense(128, 32) -> ReLU ->
//	BatchNorm -> Dense(32, numClasses)
//
// It is stateless across invocations except for learned parameters and
// batch-norm running statistics.
type PixelClassifier struct {
	inputDim   int
	numClasses int

	fc1   *Dense
	relu1 *ReLULayer
	bn1   *BatchNorm
	fc2   *Dense
	relu2 *ReLULayer
	bn2   *BatchNorm
	fc3   *Dense
}

// NamedTensor is one entry of a model's serializable state.
type NamedTensor struct {
	Name  string
	Value *tensor.Tensor
}

// New creates a pixel classifier for the given input contract. Weights
// start zeroed; call InitWeights before training.
func New(inputDim, numClasses int) (*PixelClassifier, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("input dim must be positive, got %d", inputDim)
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}

	fc1, err := NewDense("fc1", inputDim, hidden1)
	if err != nil {
		return nil, err
	}
	bn1, err := NewBatchNorm("bn1", hidden1)
	if err != nil {
		return nil, err
	}
	fc2, err := NewDense("fc2", hidden1, hidden2)
	if err != nil {
		return nil, err
	}
	bn2, err := NewBatchNorm("bn2", hidden2)
	if err != nil {
		return nil, err
	}
	fc3, err := NewDense("fc3", hidden2, numClasses)
	if err != nil {
		return nil, err
	}

	return &PixelClassifier{
		inputDim:   inputDim,
		numClasses: numClasses,
		fc1:        fc1,
		relu1:      &ReLULayer{},
		bn1:        bn1,
		fc2:        fc2,
		relu2:      &ReLULayer{},
		bn2:        bn2,
		fc3:        fc3,
	}, nil
}

// InputDim returns the expected feature vector length.
func (m *PixelClassifier) InputDim() int {
	return m.inputDim
}

// NumClasses returns the size of the output distribution.
func (m *PixelClassifier) NumClasses() int {
	return m.numClasses
}

// InitWeights randomizes the dense layers from the supplied source so
// ensemble members get independent initializations.
func (m *PixelClassifier) InitWeights(rng *rand.Rand) {
	initDense(m.fc1, 0.02, rng)
	initDense(m.fc2, 0.02, rng)
	initDense(m.fc3, 0.02, rng)
}

// Forward computes logits for a (B, D) batch. training selects batch
// statistics vs running statistics in the normalization layers.
func (m *PixelClassifier) Forward(in *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	x, err := m.fc1.Forward(in)
	if err != nil {
		return nil, err
	}
	if x, err = m.relu1.Forward(x); err != nil {
		return nil, err
	}
	if x, err = m.bn1.Forward(x, training); err != nil {
		return nil, err
	}
	if x, err = m.fc2.Forward(x); err != nil {
		return nil, err
	}
	if x, err = m.relu2.Forward(x); err != nil {
		return nil, err
	}
	if x, err = m.bn2.Forward(x, training); err != nil {
		return nil, err
	}
	return m.fc3.Forward(x)
}

// Backward propagates the logit gradient through the network, filling
// every parameter's Grad. Must follow a training-mode Forward.
func (m *PixelClassifier) Backward(gradLogits *tensor.Tensor) error {
	g, err := m.fc3.Backward(gradLogits)
	if err != nil {
		return err
	}
	if g, err = m.bn2.Backward(g); err != nil {
		return err
	}
	if g, err = m.relu2.Backward(g); err != nil {
		return err
	}
	if g, err = m.fc2.Backward(g); err != nil {
		return err
	}
	if g, err = m.bn1.Backward(g); err != nil {
		return err
	}
	if g, err = m.relu1.Backward(g); err != nil {
		return err
	}
	_, err = m.fc1.Backward(g)
	return err
}

// Parameters returns every learnable parameter in a stable order.
func (m *PixelClassifier) Parameters() []*Parameter {
	var params []*Parameter
	params = append(params, m.fc1.Parameters()...)
	params = append(params, m.bn1.Parameters()...)
	params = append(params, m.fc2.Parameters()...)
	params = append(params, m.bn2.Parameters()...)
	params = append(params, m.fc3.Parameters()...)
	return params
}

// Probabilities runs an eval-mode forward pass and applies a row-wise
// softmax, returning a (B, numClasses) distribution per row.
func (m *PixelClassifier) Probabilities(in *tensor.Tensor) (*tensor.Tensor, error) {
	logits, err := m.Forward(in, false)
	if err != nil {
		return nil, err
	}
	return Softmax(logits)
}

// Softmax applies a numerically stable row-wise softmax to a 2D tensor.
func Softmax(logits *tensor.Tensor) (*tensor.Tensor, error) {
	if logits.DType != tensor.Float32 || len(logits.Shape) != 2 {
		return nil, fmt.Errorf("softmax requires a 2D Float32 tensor, got %s", logits)
	}

	rows, cols := logits.Shape[0], logits.Shape[1]
	data := logits.Data.([]float32)
	out := make([]float32, len(data))

	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		maxVal := row[0]
		for j := 1; j < cols; j++ {
			if row[j] > maxVal {
				maxVal = row[j]
			}
		}

		var sum float32
		outRow := out[i*cols : (i+1)*cols]
		for j := 0; j < cols; j++ {
			e := float32(math.Exp(float64(row[j] - maxVal)))
			outRow[j] = e
			sum += e
		}
		for j := 0; j < cols; j++ {
			outRow[j] /= sum
		}
	}

	return tensor.NewTensor(logits.Shape, tensor.Float32, out)
}

// State returns every tensor needed to reconstruct the model: learnable
// parameters plus batch-norm running statistics.
func (m *PixelClassifier) State() []NamedTensor {
	var state []NamedTensor
	for _, p := range m.Parameters() {
		state = append(state, NamedTensor{Name: p.Name, Value: p.Value})
	}
	state = append(state, m.runningStats()...)
	return state
}

func (m *PixelClassifier) runningStats() []NamedTensor {
	wrap := func(name string, data []float32) NamedTensor {
		t, _ := tensor.NewTensor([]int{len(data)}, tensor.Float32, data)
		return NamedTensor{Name: name, Value: t}
	}
	return []NamedTensor{
		wrap("bn1.running_mean", m.bn1.runningMean),
		wrap("bn1.running_var", m.bn1.runningVar),
		wrap("bn2.running_mean", m.bn2.runningMean),
		wrap("bn2.running_var", m.bn2.runningVar),
	}
}

// LoadState restores a model from its serialized state. Every expected
// tensor must be present with a matching shape.
func (m *PixelClassifier) LoadState(state []NamedTensor) error {
	byName := make(map[string]*tensor.Tensor, len(state))
	for _, nt := range state {
		byName[nt.Name] = nt.Value
	}

	restore := func(name string, dst []float32) error {
		src, ok := byName[name]
		if !ok {
			return fmt.Errorf("model state missing tensor %s", name)
		}
		data, err := src.Float32Data()
		if err != nil {
			return fmt.Errorf("model state tensor %s: %w", name, err)
		}
		if len(data) != len(dst) {
			return fmt.Errorf("model state tensor %s has %d elements, want %d", name, len(data), len(dst))
		}
		copy(dst, data)
		return nil
	}

	for _, p := range m.Parameters() {
		if err := restore(p.Name, p.Value.Data.([]float32)); err != nil {
			return err
		}
	}
	if err := restore("bn1.running_mean", m.bn1.runningMean); err != nil {
		return err
	}
	if err := restore("bn1.running_var", m.bn1.runningVar); err != nil {
		return err
	}
	if err := restore("bn2.running_mean", m.bn2.runningMean); err != nil {
		return err
	}
	return restore("bn2.running_var", m.bn2.runningVar)
}
