// Package checkpoints persists trained pixel classifiers as JSON files
// keyed by ensemble index. A file's existence marks its member as fully
// trained, so saves are written atomically via a temp-file rename.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsawler/go-segment/classifier"
	"github.com/tsawler/go-segment/tensor"
)

// Architecture records what is needed to reconstruct the network before
// loading its weights.
type Architecture struct {
	InputDim   int `json:"input_dim"`
	NumClasses int `json:"num_classes"`
}

// TrainingState summarizes the run that produced the checkpoint.
type TrainingState struct {
	Epochs       int     `json:"epochs"`
	Steps        int     `json:"steps"`
	BestLoss     float32 `json:"best_loss"`
	StoppedEarly bool    `json:"stopped_early"`
}

// WeightTensor is one named tensor of the model state.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"`
}

// Checkpoint is the on-disk representation of one trained member.
type Checkpoint struct {
	Architecture Architecture   `json:"architecture"`
	Training     TrainingState  `json:"training"`
	Weights      []WeightTensor `json:"weights"`
}

// ModelPath returns the checkpoint path for member index under dir.
func ModelPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("model_%d.json", index))
}

// Exists reports whether member index has a checkpoint under dir.
func Exists(dir string, index int) bool {
	_, err := os.Stat(ModelPath(dir, index))
	return err == nil
}

// Save writes model and its training summary to the checkpoint for member
// index. The write is atomic: a partially written file never occupies the
// final path.
func Save(dir string, index int, model *classifier.PixelClassifier, state TrainingState) error {
	cp := Checkpoint{
		Architecture: Architecture{
			InputDim:   model.InputDim(),
			NumClasses: model.NumClasses(),
		},
		Training: state,
	}

	for _, nt := range model.State() {
		data, err := nt.Value.Float32Data()
		if err != nil {
			return fmt.Errorf("checkpoint tensor %s: %w", nt.Name, err)
		}
		stored := make([]float32, len(data))
		copy(stored, data)

		layer, kind := splitName(nt.Name)
		cp.Weights = append(cp.Weights, WeightTensor{
			Name:  nt.Name,
			Shape: append([]int(nil), nt.Value.Shape...),
			Data:  stored,
			Layer: layer,
			Type:  kind,
		})
	}

	encoded, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	path := ModelPath(dir, index)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize checkpoint %s: %w", path, err)
	}
	return nil
}

// Load reads the checkpoint for member index and reconstructs its model.
func Load(dir string, index int) (*classifier.PixelClassifier, error) {
	path := ModelPath(dir, index)
	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(encoded, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}

	model, err := classifier.New(cp.Architecture.InputDim, cp.Architecture.NumClasses)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s declares invalid architecture: %w", path, err)
	}

	state := make([]classifier.NamedTensor, 0, len(cp.Weights))
	for _, w := range cp.Weights {
		t, err := tensor.NewTensor(w.Shape, tensor.Float32, w.Data)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s tensor %s: %w", path, w.Name, err)
		}
		state = append(state, classifier.NamedTensor{Name: w.Name, Value: t})
	}

	if err := model.LoadState(state); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return model, nil
}

// splitName splits a state tensor name like "fc1.weight" into its layer
// and tensor kind.
func splitName(name string) (layer, kind string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}
