package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmon/config"
	"github.com/RyanBlaney/micmon/dataset"
	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/logging"
	"github.com/RyanBlaney/micmon/model"
	"github.com/RyanBlaney/micmon/model/nn"
	"github.com/RyanBlaney/micmon/storage"
)

var trainSeed uint64

var trainCmd = &cobra.Command{
	Use:   "train <dataset_dir> <model_dir>",
	Short: "Train a classifier on generated datasets",
	Long: `Train a neural network on every .npz dataset in dataset_dir and save the
model, its label names and its frequency cutoffs to model_dir.

The network has an input layer with one unit per frequency bin, two hidden
ReLU layers of 2*bins and bins units, and a softmax output with one unit per
label. Each epoch fits every dataset once and reports the validation loss and
accuracy.`,
	Args: cobra.ExactArgs(2),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	f := trainCmd.Flags()
	f.IntP("epochs", "e", 0, "training epochs over all datasets (default 2)")
	f.Float64("validation-split", 0, "share of each dataset held out for validation (default 0.3)")
	f.StringSlice("labels", nil, "label names in class index order, e.g. negative,positive")
	f.String("optimizer", "", "optimizer: adam or sgd (default adam)")
	f.Float64("learning-rate", 0, "optimizer learning rate (default 0.001 for adam, 0.01 for sgd)")
	f.Int("batch-size", 0, "mini-batch size (default 32)")
	f.Uint64Var(&trainSeed, "seed", 0, "weight initialization seed (0 picks one at random)")

	bindFlags(f, map[string]string{
		"epochs":           "training.epochs",
		"validation-split": "training.validation_split",
		"labels":           "training.labels",
		"optimizer":        "training.optimizer",
		"learning-rate":    "training.learning_rate",
		"batch-size":       "training.batch_size",
	})
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	in, err := storage.Open(ctx, args[0])
	if err != nil {
		return err
	}
	sets, err := dataset.Scan(ctx, in, dataset.Options{ValidationSplit: appConfig.Training.ValidationSplit})
	if err != nil {
		return err
	}

	clf, err := buildClassifier(sets, appConfig.Training, trainSeed)
	if err != nil {
		return err
	}
	if err := train(ctx, clf, sets, appConfig.Training.Epochs, cmd.OutOrStdout()); err != nil {
		return err
	}

	out, err := storage.Open(ctx, args[1])
	if err != nil {
		return err
	}
	if err := clf.Save(ctx, out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Model saved to %s\n", args[1])
	return nil
}

// buildClassifier sizes a network for the datasets. Every dataset must share
// the bin count and cutoffs of the first non-empty one.
func buildClassifier(sets []*dataset.Dataset, tc config.TrainingConfig, seed uint64) (*model.Classifier, error) {
	sets = slices.DeleteFunc(slices.Clone(sets), func(d *dataset.Dataset) bool { return d.Len() == 0 })
	if len(sets) == 0 {
		return nil, errdefs.Resource("train", "no non-empty datasets found", nil)
	}

	first := sets[0]
	bins := first.Bins()
	low, high := first.Cutoff()

	classes := 0
	for i, d := range sets {
		if d.Bins() != bins {
			return nil, errdefs.DataIntegrity("train",
				fmt.Sprintf("dataset %d has %d bins, expected %d", i, d.Bins(), bins), nil)
		}
		if l, h := d.Cutoff(); l != low || h != high {
			return nil, errdefs.DataIntegrity("train",
				fmt.Sprintf("dataset %d uses cutoffs [%d, %d), expected [%d, %d)", i, l, h, low, high), nil)
		}
		if labels := d.Labels(); len(labels) > 0 {
			classes = max(classes, labels[len(labels)-1]+1)
		}
	}
	if len(tc.Labels) > 0 {
		if classes > len(tc.Labels) {
			return nil, errdefs.Configuration("train",
				fmt.Sprintf("datasets use %d classes but only %d label names were given", classes, len(tc.Labels)), nil)
		}
		classes = len(tc.Labels)
	}

	return model.New(model.Options{
		Layers: []nn.LayerSpec{
			nn.InputLayer(bins),
			nn.DenseLayer(2*bins, nn.ReLU),
			nn.DenseLayer(bins, nn.ReLU),
			nn.DenseLayer(classes, nn.Softmax),
		},
		Optimizer: nn.OptimizerSpec{Name: tc.Optimizer, LearningRate: tc.LearningRate},
		Metrics:   []string{"accuracy"},
		BatchSize: tc.BatchSize,
		Seed:      seed,
		Labels:    tc.Labels,
		Cutoff:    [2]int{low, high},
	})
}

// train fits every dataset once per epoch and reports the validation scores.
func train(ctx context.Context, clf *model.Classifier, sets []*dataset.Dataset, epochs int, w io.Writer) error {
	logger := logging.WithFields(logging.Fields{
		"component": "train",
	})

	for epoch := range epochs {
		for i, d := range sets {
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.Len() == 0 {
				logger.Warn("Skipping empty dataset", logging.Fields{"index": i})
				continue
			}

			fmt.Fprintf(w, "[epoch %d/%d] [audio sample %d/%d]\n", epoch+1, epochs, i+1, len(sets))
			if _, err := clf.Fit(d); err != nil {
				return err
			}
			eval, err := clf.Evaluate(d)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Validation set loss and accuracy: %s\n", eval)
		}
	}
	return nil
}
