// Command interpreter trains an ensemble of per-pixel classifiers over
// extracted image features and evaluates the ensemble consensus on a
// held-out test set.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsawler/go-segment/compute"
	"github.com/tsawler/go-segment/config"
	"github.com/tsawler/go-segment/ensemble"
	"github.com/tsawler/go-segment/evaluation"
	"github.com/tsawler/go-segment/features"
	"github.com/tsawler/go-segment/training"
	"github.com/tsawler/go-segment/vision/dataset"
)

func main() {
	configPath := flag.String("config", "", "path to the JSON run configuration")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: interpreter -config <path>")
		os.Exit(1)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := compute.Default()
	if cfg.Workers > 0 {
		ctx = compute.Context{Workers: cfg.Workers}
	}
	if err := ctx.Validate(); err != nil {
		return err
	}

	if err := bootstrapExpDir(cfg.ExpDir, configPath); err != nil {
		return err
	}

	fmt.Println("==================================================")
	fmt.Printf("Experiment: %s\n", cfg.ExpDir)
	fmt.Printf("Classes: %d (ignore %d), feature dim: %d, resolution: %d\n",
		cfg.NumberClass, cfg.IgnoreLabel, cfg.FeatureDim(), cfg.ImageSize())
	fmt.Printf("Ensemble: %d members\n", cfg.ModelNum)
	fmt.Println("==================================================")

	extractor, err := features.NewPyramidExtractor(cfg.FeatureDim(), cfg.Seed)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	if err := trainMissing(ctx, cfg, extractor); err != nil {
		return err
	}

	return evaluate(ctx, cfg, extractor)
}

// bootstrapExpDir creates the experiment directory and copies the run
// configuration into it so the experiment records what produced it.
func bootstrapExpDir(expDir, configPath string) error {
	if err := os.MkdirAll(expDir, 0755); err != nil {
		return fmt.Errorf("failed to create experiment dir %s: %w", expDir, err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to re-read config %s: %w", configPath, err)
	}
	dst := filepath.Join(expDir, "config.json")
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("failed to copy config to %s: %w", dst, err)
	}
	return nil
}

// trainMissing materializes the training feature table and trains every
// ensemble member that has no checkpoint yet. When the ensemble is already
// complete, materialization is skipped entirely.
func trainMissing(ctx compute.Context, cfg *config.RunConfig, extractor features.Extractor) error {
	trained := ensemble.CountTrained(cfg.ExpDir, cfg.ModelNum)
	if trained == cfg.ModelNum {
		fmt.Printf("All %d members already trained, skipping training\n", cfg.ModelNum)
		return nil
	}

	trainSet, err := dataset.NewImageLabelDataset(cfg.TrainingPath, cfg.ImageSize(), cfg.TrainingNumber)
	if err != nil {
		return fmt.Errorf("failed to open training set: %w", err)
	}

	table, err := features.Materialize(ctx, trainSet, extractor, cfg)
	if err != nil {
		return fmt.Errorf("failed to materialize training features: %w", err)
	}

	trainerCfg := training.DefaultTrainerConfig()
	trainerCfg.BatchSize = cfg.BatchSize
	trainerCfg.MaxEpochs = cfg.MaxEpochs
	trainerCfg.LogEvery = cfg.LogEvery

	return ensemble.TrainAll(cfg.ExpDir, cfg.ModelNum, table, trainerCfg,
		cfg.FeatureDim(), cfg.NumberClass, cfg.Seed)
}

// evaluate loads the complete ensemble and scores it over the test set.
func evaluate(ctx compute.Context, cfg *config.RunConfig, extractor features.Extractor) error {
	models, err := ensemble.Load(cfg.ExpDir, cfg.ModelNum)
	if err != nil {
		return err
	}

	testSet, err := dataset.NewImageLabelDataset(cfg.TestingPath, cfg.ImageSize(), cfg.TestingNumber)
	if err != nil {
		return fmt.Errorf("failed to open test set: %w", err)
	}

	saveDir := ""
	if cfg.SavePredictions {
		saveDir = filepath.Join(cfg.ExpDir, "predictions")
		if err := os.MkdirAll(saveDir, 0755); err != nil {
			return fmt.Errorf("failed to create predictions dir: %w", err)
		}
	}

	evaluator, err := evaluation.NewEvaluator(ctx, models, extractor, cfg, saveDir)
	if err != nil {
		return err
	}
	report, err := evaluator.Evaluate(testSet)
	if err != nil {
		return err
	}

	fmt.Println("==================================================")
	for c, iou := range report.PerClassIoU {
		if report.ClassPresent[c] {
			fmt.Printf("Class %d IoU: %.4f\n", c, iou)
		}
	}
	fmt.Printf("Mean IoU: %.4f\n", report.MeanIoU)
	fmt.Printf("Uncertainty: %.4f ± %.4f\n", report.MeanUncertainty, report.StdUncertainty)
	fmt.Println("==================================================")
	return nil
}
