// Package classifier implements the per-pixel classification network: a
// small MLP mapping a D-dimensional feature vector to class logits, with
// explicit forward and backward passes over batches of rows.
package classifier

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-segment/tensor"
)

// Parameter is one learnable tensor together with the gradient the last
// backward pass produced for it.
type Parameter struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// ZeroGrad clears the gradient storage.
func (p *Parameter) ZeroGrad() {
	data := p.Grad.Data.([]float32)
	for i := range data {
		data[i] = 0
	}
}

func newParameter(name string, shape []int) (*Parameter, error) {
	value, err := tensor.Zeros(shape, tensor.Float32)
	if err != nil {
		return nil, err
	}
	grad, err := tensor.Zeros(shape, tensor.Float32)
	if err != nil {
		return nil, err
	}
	return &Parameter{Name: name, Value: value, Grad: grad}, nil
}

// Dense is a fully connected layer: out = in*W + b.
type Dense struct {
	name    string
	inSize  int
	outSize int
	weight  *Parameter // (in, out)
	bias    *Parameter // (out)
	lastIn  *tensor.Tensor
}

// NewDense creates a dense layer with zeroed parameters; call initWeights
// on the model to randomize them.
func NewDense(name string, inSize, outSize int) (*Dense, error) {
	if inSize <= 0 || outSize <= 0 {
		return nil, fmt.Errorf("dense layer %s: sizes must be positive, got %d and %d", name, inSize, outSize)
	}

	weight, err := newParameter(name+".weight", []int{inSize, outSize})
	if err != nil {
		return nil, err
	}
	bias, err := newParameter(name+".bias", []int{outSize})
	if err != nil {
		return nil, err
	}

	return &Dense{name: name, inSize: inSize, outSize: outSize, weight: weight, bias: bias}, nil
}

// Forward computes (B, in) -> (B, out), caching the input for Backward.
func (l *Dense) Forward(in *tensor.Tensor) (*tensor.Tensor, error) {
	if len(in.Shape) != 2 || in.Shape[1] != l.inSize {
		return nil, fmt.Errorf("dense layer %s: expected (B, %d) input, got %v", l.name, l.inSize, in.Shape)
	}
	l.lastIn = in

	out, err := tensor.MatMul(in, l.weight.Value)
	if err != nil {
		return nil, fmt.Errorf("dense layer %s forward failed: %w", l.name, err)
	}

	outData := out.Data.([]float32)
	biasData := l.bias.Value.Data.([]float32)
	batch := in.Shape[0]
	for i := 0; i < batch; i++ {
		row := outData[i*l.outSize : (i+1)*l.outSize]
		for j := range row {
			row[j] += biasData[j]
		}
	}
	return out, nil
}

// Backward computes parameter gradients from the output gradient and
// returns the gradient with respect to the input.
func (l *Dense) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.lastIn == nil {
		return nil, fmt.Errorf("dense layer %s: backward before forward", l.name)
	}

	// gradW = in^T * gradOut
	inT, err := tensor.Transpose(l.lastIn)
	if err != nil {
		return nil, err
	}
	gradW, err := tensor.MatMul(inT, gradOut)
	if err != nil {
		return nil, fmt.Errorf("dense layer %s weight gradient failed: %w", l.name, err)
	}
	copy(l.weight.Grad.Data.([]float32), gradW.Data.([]float32))

	// gradB = column sums of gradOut
	gradOutData := gradOut.Data.([]float32)
	gradB := l.bias.Grad.Data.([]float32)
	for j := range gradB {
		gradB[j] = 0
	}
	batch := gradOut.Shape[0]
	for i := 0; i < batch; i++ {
		row := gradOutData[i*l.outSize : (i+1)*l.outSize]
		for j, v := range row {
			gradB[j] += v
		}
	}

	// gradIn = gradOut * W^T
	wT, err := tensor.Transpose(l.weight.Value)
	if err != nil {
		return nil, err
	}
	gradIn, err := tensor.MatMul(gradOut, wT)
	if err != nil {
		return nil, fmt.Errorf("dense layer %s input gradient failed: %w", l.name, err)
	}
	return gradIn, nil
}

// Parameters returns the layer's learnable parameters.
func (l *Dense) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// ReLULayer applies max(0, x), caching the activation mask.
type ReLULayer struct {
	lastIn *tensor.Tensor
}

// Forward applies the activation.
func (l *ReLULayer) Forward(in *tensor.Tensor) (*tensor.Tensor, error) {
	l.lastIn = in
	return tensor.ReLU(in)
}

// Backward zeroes the gradient wherever the forward input was non-positive.
func (l *ReLULayer) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.lastIn == nil {
		return nil, fmt.Errorf("relu: backward before forward")
	}

	grad, err := gradOut.Clone()
	if err != nil {
		return nil, err
	}
	inData := l.lastIn.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		if inData[i] <= 0 {
			gradData[i] = 0
		}
	}
	return grad, nil
}

// BatchNorm normalizes each feature over the batch, with learnable scale
// and shift and running statistics for eval mode.
type BatchNorm struct {
	name     string
	size     int
	eps      float32
	momentum float32

	gamma *Parameter
	beta  *Parameter

	// Running statistics, updated in training mode, used in eval mode.
	runningMean []float32
	runningVar  []float32

	// Cached values from the last training-mode forward.
	lastIn   *tensor.Tensor
	lastXHat []float32
	lastMean []float32
	lastVar  []float32
}

// NewBatchNorm creates a batch-normalization layer over size features.
func NewBatchNorm(name string, size int) (*BatchNorm, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batchnorm %s: size must be positive, got %d", name, size)
	}

	gamma, err := newParameter(name+".weight", []int{size})
	if err != nil {
		return nil, err
	}
	beta, err := newParameter(name+".bias", []int{size})
	if err != nil {
		return nil, err
	}

	// Identity transform until trained.
	gammaData := gamma.Value.Data.([]float32)
	for i := range gammaData {
		gammaData[i] = 1
	}

	bn := &BatchNorm{
		name:        name,
		size:        size,
		eps:         1e-5,
		momentum:    0.1,
		gamma:       gamma,
		beta:        beta,
		runningMean: make([]float32, size),
		runningVar:  make([]float32, size),
	}
	for i := range bn.runningVar {
		bn.runningVar[i] = 1
	}
	return bn, nil
}

// Forward normalizes (B, size). In training mode batch statistics are
// used and folded into the running estimates; in eval mode the running
// estimates are used.
func (l *BatchNorm) Forward(in *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(in.Shape) != 2 || in.Shape[1] != l.size {
		return nil, fmt.Errorf("batchnorm %s: expected (B, %d) input, got %v", l.name, l.size, in.Shape)
	}

	batch := in.Shape[0]
	inData := in.Data.([]float32)
	gammaData := l.gamma.Value.Data.([]float32)
	betaData := l.beta.Value.Data.([]float32)

	mean := make([]float32, l.size)
	variance := make([]float32, l.size)

	if training {
		for j := 0; j < l.size; j++ {
			var sum float32
			for i := 0; i < batch; i++ {
				sum += inData[i*l.size+j]
			}
			mean[j] = sum / float32(batch)
		}
		for j := 0; j < l.size; j++ {
			var sum float32
			for i := 0; i < batch; i++ {
				d := inData[i*l.size+j] - mean[j]
				sum += d * d
			}
			variance[j] = sum / float32(batch)
		}
		for j := 0; j < l.size; j++ {
			l.runningMean[j] = (1-l.momentum)*l.runningMean[j] + l.momentum*mean[j]
			l.runningVar[j] = (1-l.momentum)*l.runningVar[j] + l.momentum*variance[j]
		}
	} else {
		copy(mean, l.runningMean)
		copy(variance, l.runningVar)
	}

	out := make([]float32, batch*l.size)
	xhat := make([]float32, batch*l.size)
	for j := 0; j < l.size; j++ {
		invStd := 1 / float32(math.Sqrt(float64(variance[j]+l.eps)))
		for i := 0; i < batch; i++ {
			idx := i*l.size + j
			xhat[idx] = (inData[idx] - mean[j]) * invStd
			out[idx] = gammaData[j]*xhat[idx] + betaData[j]
		}
	}

	if training {
		l.lastIn = in
		l.lastXHat = xhat
		l.lastMean = mean
		l.lastVar = variance
	}

	return tensor.NewTensor(in.Shape, tensor.Float32, out)
}

// Backward computes gradients for gamma, beta and the input from the
// cached training-mode statistics.
func (l *BatchNorm) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.lastIn == nil {
		return nil, fmt.Errorf("batchnorm %s: backward before training-mode forward", l.name)
	}

	batch := gradOut.Shape[0]
	n := float32(batch)
	gradOutData := gradOut.Data.([]float32)
	gammaData := l.gamma.Value.Data.([]float32)

	gradGamma := l.gamma.Grad.Data.([]float32)
	gradBeta := l.beta.Grad.Data.([]float32)
	gradIn := make([]float32, batch*l.size)

	for j := 0; j < l.size; j++ {
		invStd := 1 / float32(math.Sqrt(float64(l.lastVar[j]+l.eps)))

		var sumDy, sumDyXHat float32
		for i := 0; i < batch; i++ {
			idx := i*l.size + j
			sumDy += gradOutData[idx]
			sumDyXHat += gradOutData[idx] * l.lastXHat[idx]
		}
		gradGamma[j] = sumDyXHat
		gradBeta[j] = sumDy

		// dx = (gamma*invStd/N) * (N*dy - sum(dy) - xhat*sum(dy*xhat))
		scale := gammaData[j] * invStd / n
		for i := 0; i < batch; i++ {
			idx := i*l.size + j
			gradIn[idx] = scale * (n*gradOutData[idx] - sumDy - l.lastXHat[idx]*sumDyXHat)
		}
	}

	return tensor.NewTensor(gradOut.Shape, tensor.Float32, gradIn)
}

// Parameters returns gamma and beta.
func (l *BatchNorm) Parameters() []*Parameter {
	return []*Parameter{l.gamma, l.beta}
}

// initDense randomizes a dense layer's weights from N(0, std) and zeroes
// its bias.
func initDense(l *Dense, std float32, rng *rand.Rand) {
	weightData := l.weight.Value.Data.([]float32)
	for i := range weightData {
		weightData[i] = float32(rng.NormFloat64()) * std
	}
	biasData := l.bias.Value.Data.([]float32)
	for i := range biasData {
		biasData[i] = 0
	}
}
