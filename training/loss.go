package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-segment/classifier"
	"github.com/tsawler/go-segment/tensor"
)

// CrossEntropyLoss is softmax cross-entropy with mean reduction over the
// batch. The gradient with respect to the logits is (softmax - onehot)/B,
// so Backward needs no separate softmax backward pass.
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates the loss.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// Forward computes the mean negative log-likelihood of targets under the
// softmax of logits. logits is (B, C) Float32, targets is (B) Int32.
func (c *CrossEntropyLoss) Forward(logits, targets *tensor.Tensor) (float32, error) {
	probs, batch, classes, targetData, err := c.prepare(logits, targets)
	if err != nil {
		return 0, err
	}

	probData := probs.Data.([]float32)
	var total float64
	for i := 0; i < batch; i++ {
		p := probData[i*classes+int(targetData[i])]
		// Clamp avoids log(0) from a fully confident wrong prediction.
		if p < 1e-10 {
			p = 1e-10
		}
		total -= math.Log(float64(p))
	}
	return float32(total / float64(batch)), nil
}

// Backward returns the (B, C) gradient of the mean loss with respect to
// the logits: (softmax - onehot) / B.
func (c *CrossEntropyLoss) Backward(logits, targets *tensor.Tensor) (*tensor.Tensor, error) {
	probs, batch, classes, targetData, err := c.prepare(logits, targets)
	if err != nil {
		return nil, err
	}

	onehotData := make([]float32, batch*classes)
	for i, target := range targetData {
		onehotData[i*classes+int(target)] = 1
	}
	onehot, err := tensor.NewTensor(probs.Shape, tensor.Float32, onehotData)
	if err != nil {
		return nil, err
	}

	diff, err := tensor.Sub(probs, onehot)
	if err != nil {
		return nil, err
	}
	return tensor.Scale(diff, 1/float32(batch))
}

func (c *CrossEntropyLoss) prepare(logits, targets *tensor.Tensor) (*tensor.Tensor, int, int, []int32, error) {
	if len(logits.Shape) != 2 {
		return nil, 0, 0, nil, fmt.Errorf("cross entropy requires (B, C) logits, got %v", logits.Shape)
	}
	batch, classes := logits.Shape[0], logits.Shape[1]

	targetData, err := targets.Int32Data()
	if err != nil {
		return nil, 0, 0, nil, fmt.Errorf("cross entropy targets: %w", err)
	}
	if len(targetData) != batch {
		return nil, 0, 0, nil, fmt.Errorf("cross entropy: %d logit rows but %d targets", batch, len(targetData))
	}
	for i, t := range targetData {
		if t < 0 || int(t) >= classes {
			return nil, 0, 0, nil, fmt.Errorf("cross entropy: target %d at row %d outside [0, %d)", t, i, classes)
		}
	}

	probs, err := classifier.Softmax(logits)
	if err != nil {
		return nil, 0, 0, nil, err
	}
	return probs, batch, classes, targetData, nil
}
