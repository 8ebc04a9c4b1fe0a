package sagemaker

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sm "github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/opst/mlci/pkg/objectstorage"
)

const (
	ChannelTraining   = "training"
	ChannelValidation = "validation"

	// maxJobNameLength is the limit of training job names on SageMaker.
	maxJobNameLength = 63
)

// Environment variables passed to training containers.
const (
	EnvBucketName      = "BUCKET_NAME"
	EnvPrefix          = "PREFIX"
	EnvCommitHash      = "GITHUB_SHA"
	EnvRegion          = "REGION"
	EnvTrainingJobName = "TRAINING_JOB_NAME"
)

type Tag struct {
	Key   string
	Value string
}

func toTags(tags []Tag) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	ret := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		ret = append(ret, types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return ret
}

type TrainingJobSpec struct {
	BaseJobName string

	// Image is "repository:tag" in the ECR registry of the account.
	Image string

	// Role is the IAM role name or ARN which the training job runs as.
	Role string

	InstanceType  string
	InstanceCount int32
	VolumeSizeGB  int32
	MaxRuntime    time.Duration

	Hyperparameters map[string]string
	Tags            []Tag

	Bucket string
	Prefix string

	// TrainingData and ValidationData are object names of datasets, relative to Prefix.
	TrainingData   string
	ValidationData string

	CommitHash string
}

// SubmittedJob is a training job just created.
type SubmittedJob struct {
	Name            string
	Arn             string
	Image           string
	RoleArn         string
	Hyperparameters map[string]string
	OutputPath      string
}

// ImageURI returns the reference of image in the ECR registry of account in region.
func ImageURI(account, region, image string) (string, error) {
	ref, err := name.ParseReference(
		fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s", account, region, image),
	)
	if err != nil {
		return "", fmt.Errorf("%w: image %q: %w", ErrInvalidSpec, image, err)
	}
	return ref.Name(), nil
}

// OutputPath is where training jobs put their artifacts.
func OutputPath(bucket, prefix string) string {
	return objectstorage.URI(bucket, objectstorage.Key(prefix, "output")) + "/"
}

func buildTrainingJob(spec TrainingJobSpec, jobName, image, roleArn, region string) *sm.CreateTrainingJobInput {
	channel := func(channelName, object string) types.Channel {
		return types.Channel{
			ChannelName: aws.String(channelName),
			ContentType: aws.String("text/csv"),
			DataSource: &types.DataSource{
				S3DataSource: &types.S3DataSource{
					S3DataType:             types.S3DataTypeS3Prefix,
					S3Uri:                  aws.String(objectstorage.URI(spec.Bucket, objectstorage.Key(spec.Prefix, object))),
					S3DataDistributionType: types.S3DataDistributionFullyReplicated,
				},
			},
		}
	}

	return &sm.CreateTrainingJobInput{
		TrainingJobName: aws.String(jobName),
		AlgorithmSpecification: &types.AlgorithmSpecification{
			TrainingImage:     aws.String(image),
			TrainingInputMode: types.TrainingInputModeFile,
		},
		RoleArn: aws.String(roleArn),
		InputDataConfig: []types.Channel{
			channel(ChannelTraining, spec.TrainingData),
			channel(ChannelValidation, spec.ValidationData),
		},
		OutputDataConfig: &types.OutputDataConfig{
			S3OutputPath: aws.String(OutputPath(spec.Bucket, spec.Prefix)),
		},
		ResourceConfig: &types.ResourceConfig{
			InstanceType:   types.TrainingInstanceType(spec.InstanceType),
			InstanceCount:  aws.Int32(spec.InstanceCount),
			VolumeSizeInGB: aws.Int32(spec.VolumeSizeGB),
		},
		StoppingCondition: &types.StoppingCondition{
			MaxRuntimeInSeconds: aws.Int32(int32(spec.MaxRuntime / time.Second)),
		},
		HyperParameters: maps.Clone(spec.Hyperparameters),
		Environment: map[string]string{
			EnvBucketName:      spec.Bucket,
			EnvPrefix:          spec.Prefix,
			EnvCommitHash:      spec.CommitHash,
			EnvRegion:          region,
			EnvTrainingJobName: jobName,
		},
		Tags: toTags(spec.Tags),
	}
}

func validateTrainingJobSpec(spec TrainingJobSpec) error {
	if spec.BaseJobName == "" {
		return fmt.Errorf("%w: base job name is empty", ErrInvalidSpec)
	}
	if l := len(JobName(spec.BaseJobName, time.Time{})); maxJobNameLength < l {
		return fmt.Errorf("%w: base job name is too long: %s", ErrInvalidSpec, spec.BaseJobName)
	}
	if spec.Role == "" {
		return fmt.Errorf("%w: role is empty", ErrInvalidSpec)
	}
	if spec.Bucket == "" {
		return fmt.Errorf("%w: bucket is empty", ErrInvalidSpec)
	}
	if spec.TrainingData == "" || spec.ValidationData == "" {
		return fmt.Errorf("%w: datasets are not specified", ErrInvalidSpec)
	}
	if spec.InstanceCount < 1 || spec.VolumeSizeGB < 1 {
		return fmt.Errorf("%w: instance count and volume size should be positive", ErrInvalidSpec)
	}
	if spec.MaxRuntime < time.Second {
		return fmt.Errorf("%w: max runtime is too short: %s", ErrInvalidSpec, spec.MaxRuntime)
	}
	return nil
}

// Submit creates a training job. It does not wait for the job to finish.
func (p *Platform) Submit(ctx context.Context, spec TrainingJobSpec) (SubmittedJob, error) {
	if err := validateTrainingJobSpec(spec); err != nil {
		return SubmittedJob{}, err
	}

	account, err := p.AccountID(ctx)
	if err != nil {
		return SubmittedJob{}, err
	}
	image, err := ImageURI(account, p.region, spec.Image)
	if err != nil {
		return SubmittedJob{}, err
	}
	roleArn := RoleARN(account, spec.Role)
	jobName := JobName(spec.BaseJobName, p.now())

	in := buildTrainingJob(spec, jobName, image, roleArn, p.region)
	out, err := p.api.CreateTrainingJob(ctx, in)
	if err != nil {
		return SubmittedJob{}, fmt.Errorf("sagemaker: create training job %s: %w", jobName, err)
	}

	return SubmittedJob{
		Name:            jobName,
		Arn:             aws.ToString(out.TrainingJobArn),
		Image:           image,
		RoleArn:         roleArn,
		Hyperparameters: in.HyperParameters,
		OutputPath:      aws.ToString(in.OutputDataConfig.S3OutputPath),
	}, nil
}

// TrainingJob is the state of a training job.
type TrainingJob struct {
	Name            string
	Status          types.TrainingJobStatus
	SecondaryStatus types.SecondaryStatus
	FailureReason   string
	Image           string
	RoleArn         string
	ModelArtifacts  string
	Hyperparameters map[string]string
	Environment     map[string]string
	CreatedAt       time.Time
}

// Failed tells the job has been failed or stopped.
func (j TrainingJob) Failed() bool {
	return j.Status == types.TrainingJobStatusFailed || j.Status == types.TrainingJobStatusStopped
}

func (j TrainingJob) Completed() bool {
	return j.Status == types.TrainingJobStatusCompleted
}

// Attach describes the training job named jobName.
func (p *Platform) Attach(ctx context.Context, jobName string) (TrainingJob, error) {
	out, err := p.api.DescribeTrainingJob(ctx, &sm.DescribeTrainingJobInput{
		TrainingJobName: aws.String(jobName),
	})
	if err != nil {
		return TrainingJob{}, fmt.Errorf("sagemaker: describe training job %s: %w", jobName, err)
	}

	job := TrainingJob{
		Name:            aws.ToString(out.TrainingJobName),
		Status:          out.TrainingJobStatus,
		SecondaryStatus: out.SecondaryStatus,
		FailureReason:   aws.ToString(out.FailureReason),
		RoleArn:         aws.ToString(out.RoleArn),
		Hyperparameters: out.HyperParameters,
		Environment:     out.Environment,
		CreatedAt:       aws.ToTime(out.CreationTime),
	}
	if job.Name == "" {
		job.Name = jobName
	}
	if a := out.AlgorithmSpecification; a != nil {
		job.Image = aws.ToString(a.TrainingImage)
	}
	if m := out.ModelArtifacts; m != nil {
		job.ModelArtifacts = aws.ToString(m.S3ModelArtifacts)
	}
	return job, nil
}

// CheckJob returns ErrJobFailed if the training job has been failed or stopped.
func (p *Platform) CheckJob(ctx context.Context, jobName string) error {
	job, err := p.Attach(ctx, jobName)
	if err != nil {
		return err
	}
	if job.Failed() {
		return fmt.Errorf("%w: %s (%s): %s", ErrJobFailed, job.Name, job.Status, job.FailureReason)
	}
	return nil
}
