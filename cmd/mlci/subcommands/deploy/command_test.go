package deploy_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sm "github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/opst/mlci/cmd/mlci/subcommands/common"
	"github.com/opst/mlci/cmd/mlci/subcommands/deploy"
	"github.com/opst/mlci/cmd/mlci/subcommands/internal/commandline"
	"github.com/opst/mlci/cmd/mlci/subcommands/logger"
	"github.com/opst/mlci/pkg/configs/pipeline"
	"github.com/opst/mlci/pkg/objectstorage"
	osmock "github.com/opst/mlci/pkg/objectstorage/mock"
	"github.com/opst/mlci/pkg/report"
	"github.com/opst/mlci/pkg/sagemaker"
	smmock "github.com/opst/mlci/pkg/sagemaker/mock"
	"github.com/youta-t/flarc"
)

const (
	bucket    = "cicd-bucket"
	prefix    = "housing"
	region    = "eu-west-1"
	latestJob = "boston-housing-model-2024-01-03-00-00-00-000"
)

var env = map[string]string{
	"BUCKET_NAME":        bucket,
	"PREFIX":             prefix,
	"AWS_DEFAULT_REGION": region,
}

const reports = `date_time,hyperparameters,commit_hash,training_job_name,Train_MSE,Validation_MSE
2024-01-02 00:00:00,{},aaaa,boston-housing-model-2024-01-02-00-00-00-000,1,2
2024-01-03 00:00:00,{},bbbb,boston-housing-model-2024-01-03-00-00-00-000,1,2
2024-01-01 00:00:00,{},cccc,boston-housing-model-2024-01-01-00-00-00-000,1,2
`

func TestDeploy(t *testing.T) {
	type when struct {
		env       map[string]string
		flags     deploy.Flags
		report    []byte
		jobStatus types.TrainingJobStatus
		endpoint  []types.EndpointStatus
	}
	type then struct {
		err      error
		deployed string
		stdout   string
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			storage := osmock.New()
			if when.report != nil {
				storage.With(bucket, objectstorage.Key(prefix, "reports.csv"), when.report)
			}

			api := smmock.New(t)
			api.Impl.DescribeTrainingJob = func(ctx context.Context, in *sm.DescribeTrainingJobInput) (*sm.DescribeTrainingJobOutput, error) {
				return &sm.DescribeTrainingJobOutput{
					TrainingJobName:   in.TrainingJobName,
					TrainingJobStatus: when.jobStatus,
					RoleArn:           aws.String("arn:aws:iam::123456789012:role/sagemaker-role"),
					AlgorithmSpecification: &types.AlgorithmSpecification{
						TrainingImage: aws.String("123456789012.dkr.ecr.eu-west-1.amazonaws.com/my-app:latest"),
					},
					ModelArtifacts: &types.ModelArtifacts{
						S3ModelArtifacts: aws.String("s3://cicd-bucket/housing/output/" + aws.ToString(in.TrainingJobName) + "/output/model.tar.gz"),
					},
				}, nil
			}
			api.Impl.CreateModel = func(ctx context.Context, in *sm.CreateModelInput) (*sm.CreateModelOutput, error) {
				return &sm.CreateModelOutput{}, nil
			}
			api.Impl.CreateEndpointConfig = func(ctx context.Context, in *sm.CreateEndpointConfigInput) (*sm.CreateEndpointConfigOutput, error) {
				return &sm.CreateEndpointConfigOutput{}, nil
			}
			api.Impl.CreateEndpoint = func(ctx context.Context, in *sm.CreateEndpointInput) (*sm.CreateEndpointOutput, error) {
				return &sm.CreateEndpointOutput{}, nil
			}
			statuses := when.endpoint
			api.Impl.DescribeEndpoint = func(ctx context.Context, in *sm.DescribeEndpointInput) (*sm.DescribeEndpointOutput, error) {
				if len(statuses) == 0 {
					t.Fatal("DescribeEndpoint is called too many times")
				}
				s := statuses[0]
				statuses = statuses[1:]
				return &sm.DescribeEndpointOutput{
					EndpointName:   in.EndpointName,
					EndpointStatus: s,
					FailureReason:  aws.String("image not found"),
				}, nil
			}

			testee := deploy.Task(
				common.Getenv(when.env),
				func(pipeline.Storage, string) (objectstorage.Storage, error) { return storage, nil },
				func(ctx context.Context, r string) (*sagemaker.Platform, error) {
					return sagemaker.New(api, &smmock.Identity{Account: "123456789012"}, r), nil
				},
			)

			stdout := new(bytes.Buffer)
			err := testee(
				context.Background(), logger.Null(), common.CommonFlags{}, pipeline.Default(),
				commandline.MockCommandline[deploy.Flags]{
					Fullname_: "mlci deploy",
					Stdout_:   stdout,
					Stderr_:   new(bytes.Buffer),
					Flags_:    when.flags,
				},
				[]any{},
			)

			if then.err != nil {
				if !errors.Is(err, then.err) {
					t.Errorf("error: actual = %v, expected = %v", err, then.err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if then.deployed == "" {
				if len(api.Calls.CreateEndpoint) != 0 {
					t.Errorf("endpoint is created: %+v", api.Calls.CreateEndpoint)
				}
				return
			}

			if len(api.Calls.DescribeTrainingJob) != 1 {
				t.Fatalf("DescribeTrainingJob is called %d times", len(api.Calls.DescribeTrainingJob))
			}
			if got := aws.ToString(api.Calls.DescribeTrainingJob[0].TrainingJobName); got != latestJob {
				t.Errorf("attached job: actual = %s, expected = %s", got, latestJob)
			}
			if len(api.Calls.CreateModel) != 1 || aws.ToString(api.Calls.CreateModel[0].ModelName) != then.deployed {
				t.Errorf("CreateModel: %+v", api.Calls.CreateModel)
			}
			if len(api.Calls.CreateEndpointConfig) != 1 {
				t.Fatalf("CreateEndpointConfig is called %d times", len(api.Calls.CreateEndpointConfig))
			}
			variant := api.Calls.CreateEndpointConfig[0].ProductionVariants[0]
			if variant.InstanceType != types.ProductionVariantInstanceTypeMlM5Large || aws.ToInt32(variant.InitialInstanceCount) != 1 {
				t.Errorf("variant: %+v", variant)
			}
			if len(api.Calls.CreateEndpoint) != 1 || aws.ToString(api.Calls.CreateEndpoint[0].EndpointName) != then.deployed {
				t.Errorf("CreateEndpoint: %+v", api.Calls.CreateEndpoint)
			}
			if then.err == nil && stdout.String() != then.stdout {
				t.Errorf("stdout: actual = %q, expected = %q", stdout.String(), then.stdout)
			}
			if len(statuses) != 0 {
				t.Errorf("endpoint status is not checked enough: %v left", statuses)
			}
		}
	}

	t.Run("it deploys the latest training job and prints the endpoint name", theory(
		when{
			env:       env,
			report:    []byte(reports),
			jobStatus: types.TrainingJobStatusCompleted,
		},
		then{deployed: latestJob, stdout: latestJob + "\n"},
	))

	t.Run("it deploys as the endpoint name given by flag", theory(
		when{
			env:       env,
			flags:     deploy.Flags{EndpointName: "housing-prod"},
			report:    []byte(reports),
			jobStatus: types.TrainingJobStatusCompleted,
		},
		then{deployed: "housing-prod", stdout: "housing-prod\n"},
	))

	t.Run("with --wait, it waits until the endpoint is in service", theory(
		when{
			env:       env,
			flags:     deploy.Flags{Wait: true, WaitInterval: time.Millisecond},
			report:    []byte(reports),
			jobStatus: types.TrainingJobStatusCompleted,
			endpoint: []types.EndpointStatus{
				types.EndpointStatusCreating, types.EndpointStatusCreating, types.EndpointStatusInService,
			},
		},
		then{deployed: latestJob, stdout: latestJob + "\n"},
	))

	t.Run("with --wait, it returns error when the endpoint fails", theory(
		when{
			env:       env,
			flags:     deploy.Flags{Wait: true, WaitInterval: time.Millisecond},
			report:    []byte(reports),
			jobStatus: types.TrainingJobStatusCompleted,
			endpoint:  []types.EndpointStatus{types.EndpointStatusCreating, types.EndpointStatusFailed},
		},
		then{err: sagemaker.ErrEndpointFailed, deployed: latestJob},
	))

	t.Run("when the report file is missing, it is ErrReportNotFound", theory(
		when{env: env, report: nil},
		then{err: deploy.ErrReportNotFound},
	))

	t.Run("when the report file has no rows, it is ErrNoEntry", theory(
		when{
			env:    env,
			report: []byte("date_time,hyperparameters,commit_hash,training_job_name,Train_MSE,Validation_MSE\n"),
		},
		then{err: report.ErrNoEntry},
	))

	t.Run("when the latest training job is not completed, it does not deploy", theory(
		when{
			env:       env,
			report:    []byte(reports),
			jobStatus: types.TrainingJobStatusInProgress,
		},
		then{err: sagemaker.ErrJobNotCompleted},
	))

	t.Run("when settings are missing, it is usage error", theory(
		when{env: map[string]string{"BUCKET_NAME": bucket}, report: []byte(reports)},
		then{err: flarc.ErrUsage},
	))

	t.Run("--wait with non-positive interval is usage error", theory(
		when{env: env, flags: deploy.Flags{Wait: true}, report: []byte(reports)},
		then{err: flarc.ErrUsage},
	))
}
