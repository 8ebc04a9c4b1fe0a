package train

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/opst/mlci/cmd/mlci/subcommands/common"
	"github.com/opst/mlci/pkg/configs/pipeline"
	"github.com/opst/mlci/pkg/container"
	"github.com/opst/mlci/pkg/dataset"
	"github.com/opst/mlci/pkg/model"
	"github.com/opst/mlci/pkg/objectstorage"
	"github.com/opst/mlci/pkg/report"
	"github.com/opst/mlci/pkg/report/store"
	"github.com/youta-t/flarc"
)

const (
	MetricTrainMSE      = "Train_MSE"
	MetricValidationMSE = "Validation_MSE"
)

type Flags struct {
	Root    string `flag:"root" metavar:"DIR" help:"root directory of the container layout"`
	Commit  string `flag:"commit" metavar:"SHA" help:"commit hash being trained (env: GITHUB_SHA)"`
	JobName string `flag:"job-name" metavar:"NAME" help:"name of the running training job (env: TRAINING_JOB_NAME)"`
}

type Option struct {
	getenv     func(string) string
	newStorage common.StorageConnector
	now        func() time.Time
}

func WithEnv(getenv func(string) string) func(*Option) *Option {
	return func(o *Option) *Option {
		o.getenv = getenv
		return o
	}
}

func WithStorage(connect common.StorageConnector) func(*Option) *Option {
	return func(o *Option) *Option {
		o.newStorage = connect
		return o
	}
}

func WithClock(now func() time.Time) func(*Option) *Option {
	return func(o *Option) *Option {
		o.now = now
		return o
	}
}

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{
		getenv:     os.Getenv,
		newStorage: common.NewStorage,
		now:        time.Now,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Train the model in the training container, and record metrics to the report file.",
		Flags{Root: container.DefaultRoot},
		flarc.Args{},
		common.NewTask(Task(option.getenv, option.newStorage, option.now)),
		flarc.WithDescription(`
Entrypoint of the training container.

It reads hyperparameters and datasets from the container layout,
fits the model and saves it into the model directory.
Then, it appends a row with Train_MSE and Validation_MSE to the report file.

When it fails, the reason is written to output/failure in the container layout.
`),
	)
}

func Task(
	getenv func(string) string,
	newStorage common.StorageConnector,
	now func() time.Time,
) common.Task[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag common.CommonFlags,
		config pipeline.Config,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		flags := cl.Flags()
		layout := container.New(flags.Root)

		err := run(ctx, logger, layout, commonFlag, config, flags, getenv, newStorage, now)
		if err != nil {
			if ferr := layout.WriteFailure(err.Error()); ferr != nil {
				logger.Printf("failed to write the failure reason: %s", ferr)
			}
			return err
		}
		return nil
	}
}

func run(
	ctx context.Context,
	logger *log.Logger,
	layout container.Layout,
	commonFlag common.CommonFlags,
	config pipeline.Config,
	flags Flags,
	getenv func(string) string,
	newStorage common.StorageConnector,
	now func() time.Time,
) error {
	settings := pipeline.Train{
		Storage:         commonFlag.Storage(),
		Region:          commonFlag.Region,
		CommitHash:      flags.Commit,
		TrainingJobName: flags.JobName,
	}
	if err := common.Resolve(getenv, &settings); err != nil {
		return err
	}

	hyperparameters, err := layout.Hyperparameters()
	if err != nil {
		return fmt.Errorf("failed to read hyperparameters: %w", err)
	}
	logger.Printf("hyperparameters: %v", hyperparameters)
	params, err := model.ParamsFrom(hyperparameters)
	if err != nil {
		return err
	}

	if channels, err := layout.InputDataConfig(); err == nil {
		logger.Printf("input data config: %+v", channels)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read input data config: %w", err)
	}
	if res, err := layout.ResourceConfig(); err == nil {
		logger.Printf("resource config: %+v", res)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read resource config: %w", err)
	}

	training, err := loadChannel(layout, container.ChannelTraining)
	if err != nil {
		return err
	}
	validation, err := loadChannel(layout, container.ChannelValidation)
	if err != nil {
		return err
	}
	logger.Printf(
		"datasets: training %d rows, validation %d rows, %d features",
		training.Len(), validation.Len(), len(training.Features),
	)

	ensemble, err := model.Fit(training.X, training.Y, params)
	if err != nil {
		return fmt.Errorf("failed to fit: %w", err)
	}

	trainMSE, err := evaluate(ensemble, training)
	if err != nil {
		return fmt.Errorf("training dataset: %w", err)
	}
	validationMSE, err := evaluate(ensemble, validation)
	if err != nil {
		return fmt.Errorf("validation dataset: %w", err)
	}
	logger.Printf("%s = %g, %s = %g", MetricTrainMSE, trainMSE, MetricValidationMSE, validationMSE)

	if err := os.MkdirAll(layout.ModelDir(), 0o755); err != nil {
		return err
	}
	saved, err := ensemble.Save(layout.ModelDir())
	if err != nil {
		return fmt.Errorf("failed to save the model: %w", err)
	}
	logger.Printf("model is saved as %s", saved)

	storage, err := newStorage(settings.Storage, settings.Region)
	if err != nil {
		return err
	}
	reports := store.New(storage, settings.Bucket, objectstorage.Key(settings.Prefix, config.Report.ObjectName))
	if _, err := reports.Update(
		ctx,
		report.Entry{
			DateTime:        now(),
			Hyperparameters: hyperparameters,
			CommitHash:      settings.CommitHash,
			TrainingJobName: settings.TrainingJobName,
			Metrics: []report.Metric{
				{Name: MetricTrainMSE, Value: trainMSE},
				{Name: MetricValidationMSE, Value: validationMSE},
			},
		},
		config.Report.Metrics,
	); err != nil {
		return fmt.Errorf("failed to update the report file %s: %w", reports.URI(), err)
	}
	logger.Printf("the report file %s is updated", reports.URI())
	return nil
}

func loadChannel(layout container.Layout, channel string) (dataset.Dataset, error) {
	file, err := layout.ChannelFile(channel)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("%s dataset is not found: %w", channel, err)
	}
	ds, err := dataset.Load(file)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("%s dataset: %w", channel, err)
	}
	return ds, nil
}

func evaluate(ensemble *model.Ensemble, ds dataset.Dataset) (float64, error) {
	pred, err := ensemble.Predict(ds.X)
	if err != nil {
		return 0, err
	}
	return model.MeanSquaredError(pred, ds.Y)
}
