// Package sagemaker submits training jobs to Amazon SageMaker and deploys their models as endpoints.
package sagemaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	sm "github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var (
	// ErrJobFailed is returned when a training job has failed or been stopped.
	ErrJobFailed = errors.New("sagemaker: training job has failed")

	// ErrJobNotCompleted is returned when deploying a training job which is not completed.
	ErrJobNotCompleted = errors.New("sagemaker: training job is not completed")

	// ErrEndpointFailed is returned when an endpoint gets failed.
	ErrEndpointFailed = errors.New("sagemaker: endpoint has failed")

	ErrInvalidSpec = errors.New("sagemaker: invalid spec")
)

// API is the part of SageMaker API which this package uses.
//
// *sagemaker.Client satisfies this.
type API interface {
	CreateTrainingJob(context.Context, *sm.CreateTrainingJobInput, ...func(*sm.Options)) (*sm.CreateTrainingJobOutput, error)
	DescribeTrainingJob(context.Context, *sm.DescribeTrainingJobInput, ...func(*sm.Options)) (*sm.DescribeTrainingJobOutput, error)
	CreateModel(context.Context, *sm.CreateModelInput, ...func(*sm.Options)) (*sm.CreateModelOutput, error)
	CreateEndpointConfig(context.Context, *sm.CreateEndpointConfigInput, ...func(*sm.Options)) (*sm.CreateEndpointConfigOutput, error)
	CreateEndpoint(context.Context, *sm.CreateEndpointInput, ...func(*sm.Options)) (*sm.CreateEndpointOutput, error)
	DescribeEndpoint(context.Context, *sm.DescribeEndpointInput, ...func(*sm.Options)) (*sm.DescribeEndpointOutput, error)
}

// IdentityAPI is the part of STS API which this package uses.
//
// *sts.Client satisfies this.
type IdentityAPI interface {
	GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type Platform struct {
	api      API
	identity IdentityAPI
	region   string
	now      func() time.Time
}

type Option func(*Platform) *Platform

// WithClock replaces the clock used for naming training jobs.
func WithClock(now func() time.Time) Option {
	return func(p *Platform) *Platform {
		p.now = now
		return p
	}
}

func New(api API, identity IdentityAPI, region string, options ...Option) *Platform {
	p := &Platform{api: api, identity: identity, region: region, now: time.Now}
	for _, opt := range options {
		p = opt(p)
	}
	return p
}

// NewFromEnv creates Platform with AWS credentials and configurations found in the environment.
func NewFromEnv(ctx context.Context, region string, options ...Option) (*Platform, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("sagemaker: loading aws config: %w", err)
	}
	return New(sm.NewFromConfig(cfg), sts.NewFromConfig(cfg), region, options...), nil
}

func (p *Platform) Region() string {
	return p.region
}

// AccountID returns the AWS account of the caller.
func (p *Platform) AccountID(ctx context.Context) (string, error) {
	out, err := p.identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("sagemaker: get caller identity: %w", err)
	}
	account := aws.ToString(out.Account)
	if account == "" {
		return "", errors.New("sagemaker: caller identity has no account")
	}
	return account, nil
}

// RoleARN returns ARN of the IAM role.
//
// role can be a role name or an ARN. ARN is returned as it is.
func RoleARN(account string, role string) string {
	if strings.HasPrefix(role, "arn:") {
		return role
	}
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, role)
}

// JobName returns name of training job started at t.
//
// It is formatted as "<base>-yyyy-mm-dd-HH-MM-SS-mmm" in UTC.
func JobName(base string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%s-%03d", base, t.Format("2006-01-02-15-04-05"), t.Nanosecond()/int(time.Millisecond))
}
