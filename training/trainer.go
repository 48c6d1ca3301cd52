package training

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"carvision/optimizer"
	"carvision/tensor"
)

// Trainable is the model surface the trainer needs: a differentiable
// forward pass plus weight snapshots for best-epoch restoration.
type Trainable interface {
	Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error)
	Backward(grad *tensor.Tensor) error
	Snapshot() map[string]*tensor.Tensor
	Restore(snap map[string]*tensor.Tensor) error
}

// BatchSource is a restartable batched stream of (images, one-hot labels).
// It wraps around indefinitely; Steps batches make one full pass.
type BatchSource interface {
	Next() (*tensor.Tensor, *tensor.Tensor, error)
	Steps() int
	Reset()
}

// Config holds trainer configuration.
type Config struct {
	Epochs        int         // Upper bound on epochs (default 30)
	EarlyStopping bool        // Stop when validation loss plateaus
	Patience      int         // Epochs without improvement tolerated (default 10)
	Scheduler     LRScheduler // nil means constant learning rate
	Log           logrus.FieldLogger
}

// EpochStats records one epoch of training history.
type EpochStats struct {
	Epoch        int
	TrainLoss    float64
	TrainAcc     float64
	ValLoss      float64
	ValAcc       float64
	LearningRate float64
}

// History is the per-epoch record of a fit run.
type History struct {
	Epochs      []EpochStats
	BestEpoch   int
	BestValLoss float64
	Stopped     bool // true when early stopping ended the run
}

// Trainer drives the fit loop: batched gradient descent with per-epoch
// validation, optional learning rate scheduling, and early stopping that
// restores the best weights seen.
type Trainer struct {
	model     Trainable
	optimizer optimizer.Optimizer
	loss      CategoricalCrossEntropy
	config    Config
}

// NewTrainer creates a trainer. Zero config fields get defaults.
func NewTrainer(m Trainable, opt optimizer.Optimizer, config Config) (*Trainer, error) {
	if m == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if opt == nil {
		return nil, fmt.Errorf("optimizer cannot be nil")
	}
	if config.Epochs <= 0 {
		config.Epochs = 30
	}
	if config.Patience <= 0 {
		config.Patience = 10
	}
	if config.Scheduler == nil {
		config.Scheduler = ConstantLR{}
	}
	if config.Log == nil {
		config.Log = logrus.StandardLogger()
	}
	return &Trainer{model: m, optimizer: opt, config: config}, nil
}

// Fit trains on train and validates on val after every epoch. The returned
// history covers every epoch that ran. When early stopping is enabled the
// model ends up holding the weights of its best validation epoch, whether
// the run stopped early or exhausted the epoch budget.
func (t *Trainer) Fit(train, val BatchSource) (*History, error) {
	baseLR := t.optimizer.GetLR()
	history := &History{BestEpoch: -1}

	var bestSnapshot map[string]*tensor.Tensor
	wait := 0

	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		lr := t.config.Scheduler.GetLR(epoch, baseLR)
		t.optimizer.SetLR(lr)

		trainLoss, trainAcc, err := t.trainEpoch(train)
		if err != nil {
			return history, fmt.Errorf("epoch %d failed: %w", epoch+1, err)
		}

		valLoss, valAcc, err := t.validate(val)
		if err != nil {
			return history, fmt.Errorf("validation after epoch %d failed: %w", epoch+1, err)
		}

		history.Epochs = append(history.Epochs, EpochStats{
			Epoch:        epoch + 1,
			TrainLoss:    trainLoss,
			TrainAcc:     trainAcc,
			ValLoss:      valLoss,
			ValAcc:       valAcc,
			LearningRate: lr,
		})

		t.config.Log.WithFields(logrus.Fields{
			"epoch":      epoch + 1,
			"train_loss": fmt.Sprintf("%.4f", trainLoss),
			"train_acc":  fmt.Sprintf("%.4f", trainAcc),
			"val_loss":   fmt.Sprintf("%.4f", valLoss),
			"val_acc":    fmt.Sprintf("%.4f", valAcc),
			"lr":         lr,
		}).Info("epoch complete")

		// Strict improvement only: ties count against patience.
		if history.BestEpoch < 0 || valLoss < history.BestValLoss {
			history.BestValLoss = valLoss
			history.BestEpoch = epoch + 1
			wait = 0
			if t.config.EarlyStopping {
				bestSnapshot = t.model.Snapshot()
			}
		} else if t.config.EarlyStopping {
			wait++
			if wait >= t.config.Patience {
				history.Stopped = true
				t.config.Log.WithFields(logrus.Fields{
					"epoch":      epoch + 1,
					"best_epoch": history.BestEpoch,
				}).Info("early stopping triggered")
				break
			}
		}
	}

	if t.config.EarlyStopping && bestSnapshot != nil {
		if err := t.model.Restore(bestSnapshot); err != nil {
			return history, fmt.Errorf("failed to restore best weights: %w", err)
		}
	}
	return history, nil
}

func (t *Trainer) trainEpoch(train BatchSource) (float64, float64, error) {
	var totalLoss float64
	correct, seen := 0, 0

	steps := train.Steps()
	for step := 0; step < steps; step++ {
		images, labels, err := train.Next()
		if err != nil {
			return 0, 0, err
		}

		t.optimizer.ZeroGrad()
		logits, err := t.model.Forward(images, true)
		if err != nil {
			return 0, 0, err
		}
		loss, grad, err := t.loss.Loss(logits, labels)
		if err != nil {
			return 0, 0, err
		}
		if err := t.model.Backward(grad); err != nil {
			return 0, 0, err
		}
		if err := t.optimizer.Step(); err != nil {
			return 0, 0, err
		}

		totalLoss += loss
		c, n, err := countCorrect(logits, labels)
		if err != nil {
			return 0, 0, err
		}
		correct += c
		seen += n
	}

	if steps == 0 || seen == 0 {
		return 0, 0, fmt.Errorf("training source produced no batches")
	}
	return totalLoss / float64(steps), float64(correct) / float64(seen), nil
}

func (t *Trainer) validate(val BatchSource) (float64, float64, error) {
	val.Reset()
	var totalLoss float64
	correct, seen := 0, 0

	steps := val.Steps()
	for step := 0; step < steps; step++ {
		images, labels, err := val.Next()
		if err != nil {
			return 0, 0, err
		}
		logits, err := t.model.Forward(images, false)
		if err != nil {
			return 0, 0, err
		}
		loss, _, err := t.loss.Loss(logits, labels)
		if err != nil {
			return 0, 0, err
		}
		totalLoss += loss
		c, n, err := countCorrect(logits, labels)
		if err != nil {
			return 0, 0, err
		}
		correct += c
		seen += n
	}

	if steps == 0 || seen == 0 {
		return 0, 0, fmt.Errorf("validation source produced no batches")
	}
	return totalLoss / float64(steps), float64(correct) / float64(seen), nil
}

func countCorrect(logits, labels *tensor.Tensor) (int, int, error) {
	n := logits.Shape[0]
	correct := 0
	for i := 0; i < n; i++ {
		pred, err := logits.Argmax(i)
		if err != nil {
			return 0, 0, err
		}
		actual, err := labels.Argmax(i)
		if err != nil {
			return 0, 0, err
		}
		if pred == actual {
			correct++
		}
	}
	return correct, n, nil
}
