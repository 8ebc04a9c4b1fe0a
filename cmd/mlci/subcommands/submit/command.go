package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/opst/mlci/cmd/mlci/subcommands/common"
	"github.com/opst/mlci/pkg/configs/pipeline"
	"github.com/opst/mlci/pkg/objectstorage"
	"github.com/opst/mlci/pkg/report"
	"github.com/opst/mlci/pkg/report/store"
	"github.com/opst/mlci/pkg/sagemaker"
	"github.com/opst/mlci/pkg/utils/retry"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Role   string `flag:"role" metavar:"NAME" help:"IAM role name or ARN which the training job runs as (env: IAM_ROLE_NAME)"`
	Commit string `flag:"commit" metavar:"SHA" help:"commit hash being trained (env: GITHUB_SHA)"`
	Output string `flag:"output" alias:"o" metavar:"FILE" help:"file where the submission report is written. Empty means stdout only"`
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
		"Submit a training job, and report its result.",
		Flags{Output: "details.txt"},
		flarc.Args{},
		common.NewTask(Task(option.getenv, option.newStorage, option.newPlatform)),
		flarc.WithDescription(`
Submit a training job for the commit, and wait until the job appends its metrics to the report file.

After that, it prints "Training Job Submission Report" in markdown,
which tells the job name, where the model artifacts go,
where to see logs and the endpoint URL after deploying.
The same message is written to the file specified by --output, to be posted as a pull request comment.

It gives up waiting when the training job fails or report.poll_timeout in the config passes.
`),
	)
}

// JobSpec builds a training job request from the config and settings.
func JobSpec(training pipeline.Training, settings pipeline.Submit) sagemaker.TrainingJobSpec {
	tags := make([]sagemaker.Tag, 0, len(training.Tags))
	for _, t := range training.Tags {
		tags = append(tags, sagemaker.Tag{Key: t.Key, Value: t.Value})
	}
	return sagemaker.TrainingJobSpec{
		BaseJobName:     training.BaseJobName,
		Image:           training.Image,
		Role:            settings.RoleName,
		InstanceType:    training.InstanceType,
		InstanceCount:   training.InstanceCount,
		VolumeSizeGB:    training.VolumeSizeGB,
		MaxRuntime:      training.MaxRuntime,
		Hyperparameters: training.Hyperparameters,
		Tags:            tags,
		Bucket:          settings.Bucket,
		Prefix:          settings.Prefix,
		TrainingData:    training.Datasets.Training,
		ValidationData:  training.Datasets.Validation,
		CommitHash:      settings.CommitHash,
	}
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
		settings := pipeline.Submit{
			Storage:    commonFlag.Storage(),
			Region:     commonFlag.Region,
			RoleName:   flags.Role,
			CommitHash: flags.Commit,
		}
		if err := common.Resolve(getenv, &settings); err != nil {
			return err
		}

		storage, err := newStorage(settings.Storage, settings.Region)
		if err != nil {
			return err
		}
		platform, err := newPlatform(ctx, settings.Region)
		if err != nil {
			return err
		}

		job, err := platform.Submit(ctx, JobSpec(config.Training, settings))
		if err != nil {
			return err
		}
		logger.Printf("training job %s is submitted (image: %s)", job.Name, job.Image)

		reports := store.New(
			storage, settings.Bucket,
			objectstorage.Key(settings.Prefix, config.Report.ObjectName),
		)
		logger.Printf("waiting for the report of commit %s in %s", settings.CommitHash, reports.URI())

		wctx, cancel := context.WithTimeout(ctx, config.Report.PollTimeout)
		defer cancel()
		rows, err := reports.WaitForCommit(
			wctx, settings.CommitHash, job.Name,
			retry.StaticBackoff(config.Report.PollInterval),
			func(ctx context.Context) error { return platform.CheckJob(ctx, job.Name) },
		)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf(
					"training job %s has not reported in %s: %w",
					job.Name, config.Report.PollTimeout, err,
				)
			}
			return fmt.Errorf("failed to wait for training job %s: %w", job.Name, err)
		}

		links := sagemaker.LinksFor(settings.Region, settings.Bucket, settings.Prefix, job.Name)
		message, err := Message(job, links, rows, config.Report.Metrics)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprint(cl.Stdout(), message); err != nil {
			return err
		}
		if flags.Output != "" {
			if err := os.WriteFile(flags.Output, []byte(message), 0o644); err != nil {
				return fmt.Errorf("failed to write the submission report: %w", err)
			}
			logger.Printf("the submission report is written to %s", flags.Output)
		}
		return nil
	}
}

// Message renders the submission report in markdown.
func Message(job sagemaker.SubmittedJob, links sagemaker.Links, rows []report.Row, metrics []string) (string, error) {
	hp := job.Hyperparameters
	if hp == nil {
		hp = map[string]string{}
	}
	hyperparameters, err := json.Marshal(hp)
	if err != nil {
		return "", err
	}

	b := new(strings.Builder)
	fmt.Fprint(b, "## Training Job Submission Report\n\n")
	fmt.Fprintf(b, "Training Job name: '%s'\n\n", job.Name)
	fmt.Fprint(b, "Model Artifacts Location:\n\n")
	fmt.Fprintf(b, "'%s'\n\n", links.ModelArtifacts)
	fmt.Fprintf(b, "Model hyperparameters: %s\n\n", hyperparameters)
	fmt.Fprintf(b, "See the Logs in a few minute at: [CloudWatch](%s)\n\n", links.Logs)
	fmt.Fprint(b, "If you merge this pull request the resulting endpoint will be available this URL:\n\n")
	fmt.Fprintf(b, "'%s'\n\n", links.Invocation)
	fmt.Fprint(b, "## Training Job Performance Report\n\n")
	fmt.Fprintf(b, "%s\n\n", report.Markdown(rows, metrics...))
	return b.String(), nil
}
