package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-segment/classifier"
	"github.com/tsawler/go-segment/tensor"
)

// Adam implements the Adam optimizer over a fixed parameter list, keeping
// per-parameter first and second moment tensors with bias correction.
type Adam struct {
	params []*classifier.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32

	m    map[string]*tensor.Tensor
	v    map[string]*tensor.Tensor
	step int
}

// NewAdam creates an Adam optimizer. The conventional hyperparameters are
// lr 0.001, beta1 0.9, beta2 0.999, eps 1e-8.
func NewAdam(params []*classifier.Parameter, lr, beta1, beta2, eps float32) (*Adam, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("adam requires at least one parameter")
	}
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", lr)
	}

	m := make(map[string]*tensor.Tensor, len(params))
	v := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		mt, err := tensor.Zeros(p.Value.Shape, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("adam moment for %s: %w", p.Name, err)
		}
		vt, err := tensor.Zeros(p.Value.Shape, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("adam moment for %s: %w", p.Name, err)
		}
		m[p.Name] = mt
		v[p.Name] = vt
	}

	return &Adam{
		params: params,
		lr:     lr,
		beta1:  beta1,
		beta2:  beta2,
		eps:    eps,
		m:      m,
		v:      v,
	}, nil
}

// Step applies one bias-corrected update from the current gradients.
func (a *Adam) Step() error {
	a.step++
	bc1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.step)))
	bc2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.step)))

	for _, p := range a.params {
		if err := a.updateParameter(p, bc1, bc2); err != nil {
			return fmt.Errorf("adam update for %s: %w", p.Name, err)
		}
	}
	return nil
}

func (a *Adam) updateParameter(p *classifier.Parameter, bc1, bc2 float32) error {
	// m = beta1*m + (1-beta1)*g
	mScaled, err := tensor.Scale(a.m[p.Name], a.beta1)
	if err != nil {
		return err
	}
	gScaled, err := tensor.Scale(p.Grad, 1-a.beta1)
	if err != nil {
		return err
	}
	m, err := tensor.Add(mScaled, gScaled)
	if err != nil {
		return err
	}
	a.m[p.Name] = m

	// v = beta2*v + (1-beta2)*g^2
	gSquared, err := tensor.Mul(p.Grad, p.Grad)
	if err != nil {
		return err
	}
	vScaled, err := tensor.Scale(a.v[p.Name], a.beta2)
	if err != nil {
		return err
	}
	sqScaled, err := tensor.Scale(gSquared, 1-a.beta2)
	if err != nil {
		return err
	}
	v, err := tensor.Add(vScaled, sqScaled)
	if err != nil {
		return err
	}
	a.v[p.Name] = v

	// value -= lr * mHat / (sqrt(vHat) + eps)
	mHat, err := tensor.Scale(m, 1/bc1)
	if err != nil {
		return err
	}
	vHat, err := tensor.Scale(v, 1/bc2)
	if err != nil {
		return err
	}
	denom, err := tensor.Sqrt(vHat)
	if err != nil {
		return err
	}

	value := p.Value.Data.([]float32)
	mHatData := mHat.Data.([]float32)
	denomData := denom.Data.([]float32)
	for i := range value {
		value[i] -= a.lr * mHatData[i] / (denomData[i] + a.eps)
	}
	return nil
}

// ZeroGrad clears every parameter gradient.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}
