package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/opst/mlci/cmd/mlci/subcommands/common"
	"github.com/opst/mlci/pkg/configs/pipeline"
	"github.com/opst/mlci/pkg/objectstorage"
	"github.com/opst/mlci/pkg/report/store"
	"github.com/opst/mlci/pkg/sagemaker"
	"github.com/youta-t/flarc"
)

// ErrReportNotFound is returned when there are no report files to pick a training job from.
var ErrReportNotFound = errors.New("report not found")

type Flags struct {
	EndpointName string        `flag:"endpoint-name" metavar:"NAME" help:"name of the endpoint. Default is the name of the training job"`
	Wait         bool          `flag:"wait" help:"wait until the endpoint is in service"`
	WaitInterval time.Duration `flag:"wait-interval" metavar:"DURATION" help:"interval of checking the endpoint status with --wait"`
}

type Option struct {
	getenv      func(string) string
	newStorage  common.StorageConnector
	newPlatform common.PlatformConnector
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

func WithPlatform(connect common.PlatformConnector) func(*Option) *Option {
	return func(o *Option) *Option {
		o.newPlatform = connect
		return o
	}
}

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{
		getenv:      os.Getenv,
		newStorage:  common.NewStorage,
		newPlatform: common.NewPlatform,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Deploy the latest model in the report as an endpoint.",
		Flags{WaitInterval: 30 * time.Second},
		flarc.Args{},
		common.NewTask(Task(option.getenv, option.newStorage, option.newPlatform)),
		flarc.WithDescription(`
Deploy the model trained by the newest training job in the report file.

It creates a model, an endpoint config and an endpoint, all named after the training job
(or --endpoint-name), and prints the endpoint name.

By default, it does not wait for the endpoint to be in service. Use --wait for that.
`),
	)
}

func Task(
	getenv func(string) string,
	newStorage common.StorageConnector,
	newPlatform common.PlatformConnector,
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
		if flags.Wait && flags.WaitInterval <= 0 {
			return fmt.Errorf("%w: --wait-interval should be positive: %s", flarc.ErrUsage, flags.WaitInterval)
		}

		settings := pipeline.DeploySettings{
			Storage: commonFlag.Storage(),
			Region:  commonFlag.Region,
		}
		if err := common.Resolve(getenv, &settings); err != nil {
			return err
		}

		storage, err := newStorage(settings.Storage, settings.Region)
		if err != nil {
			return err
		}
		reports := store.New(storage, settings.Bucket, objectstorage.Key(settings.Prefix, config.Report.ObjectName))
		table, err := reports.Load(ctx)
		if err != nil {
			if errors.Is(err, objectstorage.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrReportNotFound, reports.URI())
			}
			return err
		}
		latest, err := table.Latest()
		if err != nil {
			return fmt.Errorf("%s: %w", reports.URI(), err)
		}
		logger.Printf(
			"the latest training job is %s (commit: %s)",
			latest.TrainingJobName(), latest.CommitHash(),
		)

		platform, err := newPlatform(ctx, settings.Region)
		if err != nil {
			return err
		}
		job, err := platform.Attach(ctx, latest.TrainingJobName())
		if err != nil {
			return err
		}

		tags := make([]sagemaker.Tag, 0, len(config.Deploy.Tags))
		for _, t := range config.Deploy.Tags {
			tags = append(tags, sagemaker.Tag{Key: t.Key, Value: t.Value})
		}
		endpoint, err := platform.Deploy(ctx, job, sagemaker.DeploySpec{
			EndpointName:         flags.EndpointName,
			InstanceType:         config.Deploy.InstanceType,
			InitialInstanceCount: config.Deploy.InitialInstanceCount,
			Tags:                 tags,
		})
		if err != nil {
			return err
		}
		logger.Printf("endpoint %s is being created", endpoint)

		if flags.Wait {
			ep, err := platform.WaitEndpoint(ctx, endpoint, flags.WaitInterval)
			if err != nil {
				return err
			}
			logger.Printf("endpoint %s is %s", ep.Name, ep.Status)
		}

		_, err = fmt.Fprintln(cl.Stdout(), endpoint)
		return err
	}
}
