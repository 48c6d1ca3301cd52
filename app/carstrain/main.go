// Command carstrain runs the full classification pipeline: parse the
// bounding box annotations, split the labeled set, crop the images, train
// the transfer-learning classifier, and report evaluation metrics.
package main

import (
	"flag"

	"github.com/sirupsen/logrus"

	"carvision/annotations"
	"carvision/checkpoints"
	"carvision/config"
	"carvision/dataset"
	"carvision/feeder"
	"carvision/model"
	"carvision/optimizer"
	"carvision/preprocess"
	"carvision/training"
)

func main() {
	var configPath string
	var writeConfig bool
	flag.StringVar(&configPath, "config", "", "path to JSON config (defaults apply when empty)")
	flag.BoolVar(&writeConfig, "write-config", false, "write the default config to the given path and exit")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if writeConfig {
		if configPath == "" {
			log.Fatal("-write-config requires -config")
		}
		if err := config.Default().SaveToFile(configPath); err != nil {
			log.Fatalf("failed to write config: %v", err)
		}
		log.WithField("path", configPath).Info("wrote default config")
		return
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := run(cfg, log); err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	model.SetRandomSeed(cfg.Data.Seed)

	records, err := annotations.Load(cfg.Data.AnnotationsPath)
	if err != nil {
		return err
	}
	log.WithField("records", len(records)).Info("loaded annotations")

	trainRecords, valRecords, err := dataset.Partition(records, cfg.Data.TrainFraction, cfg.Data.Seed)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"train": len(trainRecords),
		"val":   len(valRecords),
	}).Info("partitioned labeled set")

	cropRoot := cfg.Output.WorkDir
	processor := preprocess.NewProcessor(preprocess.Config{
		SourceRoot: cfg.Data.ImagesDir,
		DestRoot:   cropRoot,
		Quality:    cfg.Data.CropQuality,
		Workers:    cfg.Data.Workers,
	}, log)

	trainSplit, err := processor.Run(dataset.Training, trainRecords)
	if err != nil {
		return err
	}
	valSplit, err := processor.Run(dataset.Validation, valRecords)
	if err != nil {
		return err
	}

	var testSplit *dataset.Split
	if cfg.Data.TestAnnotations != "" {
		testRecords, err := annotations.Load(cfg.Data.TestAnnotations)
		if err != nil {
			return err
		}
		testProcessor := preprocess.NewProcessor(preprocess.Config{
			SourceRoot: cfg.Data.TestImagesDir,
			DestRoot:   cropRoot,
			Quality:    cfg.Data.CropQuality,
			Workers:    cfg.Data.Workers,
		}, log)
		testSplit, err = testProcessor.Run(dataset.Testing, testRecords)
		if err != nil {
			return err
		}
	}

	splits := []*dataset.Split{trainSplit, valSplit}
	if testSplit != nil {
		splits = append(splits, testSplit)
	}
	index := feeder.NewClassIndex(splits...)
	log.WithField("classes", index.NumClasses()).Info("built class index")

	trainFeeder, err := feeder.New(trainSplit, index, feeder.Config{
		Root:      cropRoot,
		BatchSize: cfg.Training.BatchSize,
		ImageSize: cfg.Training.ImageSize,
		Shuffle:   true,
		Augment:   augmentFromConfig(cfg.Augment),
		Seed:      cfg.Data.Seed,
		CacheSize: cfg.Training.CacheSize,
	})
	if err != nil {
		return err
	}
	valFeeder, err := feeder.New(valSplit, index, feeder.Config{
		Root:      cropRoot,
		BatchSize: cfg.Training.BatchSize,
		ImageSize: cfg.Training.ImageSize,
		Augment:   feeder.RescaleOnly(),
		CacheSize: cfg.Training.CacheSize,
	})
	if err != nil {
		return err
	}

	var extractor model.FeatureExtractor
	if cfg.Training.BackboneOnnxPath != "" {
		onnx, err := model.NewOnnxExtractor(model.OnnxConfig{
			ModelPath:    cfg.Training.BackboneOnnxPath,
			InputName:    cfg.Training.BackboneInputName,
			OutputName:   cfg.Training.BackboneOutputName,
			InputSize:    cfg.Training.ImageSize,
			FeatureShape: cfg.Training.BackboneFeatureShape,
		})
		if err != nil {
			return err
		}
		defer onnx.Close()
		log.WithField("path", cfg.Training.BackboneOnnxPath).Info("serving backbone from ONNX")
		extractor = onnx
	} else {
		backbone := model.NewConvBackbone()
		if err := backbone.Freeze(model.DefaultKeepTrainable); err != nil {
			return err
		}
		extractor = backbone
	}
	classifier, err := model.Assemble(extractor, index.NumClasses(), cfg.Training.ImageSize)
	if err != nil {
		return err
	}
	log.Info(classifier.Summary())

	if cfg.Training.PretrainedPath != "" {
		pretrained, err := checkpoints.NewSaver(checkpoints.FormatJSON).Load(cfg.Training.PretrainedPath)
		if err != nil {
			return err
		}
		if err := pretrained.Apply(classifier); err != nil {
			return err
		}
		log.WithField("path", cfg.Training.PretrainedPath).Info("applied pretrained weights")
	}

	adamConfig := optimizer.DefaultAdamConfig()
	adamConfig.LearningRate = cfg.Training.LearningRate
	adam, err := optimizer.NewAdam(adamConfig, classifier.Params())
	if err != nil {
		return err
	}

	trainer, err := training.NewTrainer(classifier, adam, training.Config{
		Epochs:        cfg.Training.Epochs,
		EarlyStopping: cfg.Training.EarlyStopping,
		Patience:      cfg.Training.Patience,
		Log:           log,
	})
	if err != nil {
		return err
	}

	history, err := trainer.Fit(trainFeeder, valFeeder)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"epochs":        len(history.Epochs),
		"best_epoch":    history.BestEpoch,
		"best_val_loss": history.BestValLoss,
		"stopped_early": history.Stopped,
	}).Info("training complete")
	log.Info(trainFeeder.CacheStats().String())

	evaluator, err := training.NewEvaluator(classifier, index.NumClasses())
	if err != nil {
		return err
	}
	evalSplits := []*dataset.Split{valSplit}
	if testSplit != nil {
		evalSplits = append(evalSplits, testSplit)
	}
	for _, split := range evalSplits {
		evalFeeder, err := feeder.New(split, index, feeder.Config{
			Root:      cropRoot,
			BatchSize: cfg.Training.BatchSize,
			ImageSize: cfg.Training.ImageSize,
			Augment:   feeder.RescaleOnly(),
		})
		if err != nil {
			return err
		}
		metrics, err := evaluator.Evaluate(evalFeeder)
		if err != nil {
			return err
		}
		log.WithField("split", split.Name).Info(metrics.String())
	}

	state := checkpoints.TrainingState{
		Epoch:        len(history.Epochs),
		BestValLoss:  history.BestValLoss,
		LearningRate: adam.GetLR(),
	}
	checkpoint := checkpoints.FromModel(classifier, state, index.Labels())
	if err := checkpoints.NewSaver(checkpoints.FormatJSON).Save(checkpoint, cfg.Output.CheckpointPath); err != nil {
		return err
	}
	log.WithField("path", cfg.Output.CheckpointPath).Info("saved checkpoint")

	if cfg.Output.OnnxPath != "" {
		if err := checkpoints.NewSaver(checkpoints.FormatONNX).Save(checkpoint, cfg.Output.OnnxPath); err != nil {
			return err
		}
		log.WithField("path", cfg.Output.OnnxPath).Info("exported classifier head")
	}
	return nil
}

func augmentFromConfig(a config.AugmentConfig) feeder.AugmentationConfig {
	out := feeder.AugmentationConfig{
		Rescale:          feeder.DefaultRescale,
		RotationRange:    a.RotationRange,
		WidthShiftRange:  a.WidthShiftRange,
		HeightShiftRange: a.HeightShiftRange,
		ShearRange:       a.ShearRange,
		ZoomRange:        a.ZoomRange,
		HorizontalFlip:   a.HorizontalFlip,
		FillMode:         feeder.FillMode(a.FillMode),
	}
	if a.FillMode == "" {
		out.FillMode = feeder.FillNearest
	}
	return out
}
