package sagemaker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sm "github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/opst/mlci/pkg/loop"
)

// VariantName is the name of the only production variant of endpoints.
const VariantName = "AllTraffic"

type DeploySpec struct {
	// EndpointName is the name of endpoint, model and endpoint config.
	//
	// If empty, the name of training job is used.
	EndpointName string

	InstanceType         string
	InitialInstanceCount int32
	Tags                 []Tag
}

// Deploy creates a model from the artifact of the training job, and an endpoint serving it.
//
// It does not wait for the endpoint to be in service. Use WaitEndpoint for that.
func (p *Platform) Deploy(ctx context.Context, job TrainingJob, spec DeploySpec) (string, error) {
	if !job.Completed() || job.ModelArtifacts == "" {
		return "", fmt.Errorf("%w: %s (%s)", ErrJobNotCompleted, job.Name, job.Status)
	}
	if spec.InstanceType == "" || spec.InitialInstanceCount < 1 {
		return "", fmt.Errorf("%w: instance type and initial instance count are required", ErrInvalidSpec)
	}

	name := spec.EndpointName
	if name == "" {
		name = job.Name
	}
	tags := toTags(spec.Tags)

	if _, err := p.api.CreateModel(ctx, &sm.CreateModelInput{
		ModelName:        aws.String(name),
		ExecutionRoleArn: aws.String(job.RoleArn),
		PrimaryContainer: &types.ContainerDefinition{
			Image:        aws.String(job.Image),
			ModelDataUrl: aws.String(job.ModelArtifacts),
		},
		Tags: tags,
	}); err != nil {
		return "", fmt.Errorf("sagemaker: create model %s: %w", name, err)
	}

	if _, err := p.api.CreateEndpointConfig(ctx, &sm.CreateEndpointConfigInput{
		EndpointConfigName: aws.String(name),
		ProductionVariants: []types.ProductionVariant{
			{
				VariantName:          aws.String(VariantName),
				ModelName:            aws.String(name),
				InstanceType:         types.ProductionVariantInstanceType(spec.InstanceType),
				InitialInstanceCount: aws.Int32(spec.InitialInstanceCount),
				InitialVariantWeight: aws.Float32(1),
			},
		},
		Tags: tags,
	}); err != nil {
		return "", fmt.Errorf("sagemaker: create endpoint config %s: %w", name, err)
	}

	if _, err := p.api.CreateEndpoint(ctx, &sm.CreateEndpointInput{
		EndpointName:       aws.String(name),
		EndpointConfigName: aws.String(name),
		Tags:               tags,
	}); err != nil {
		return "", fmt.Errorf("sagemaker: create endpoint %s: %w", name, err)
	}

	return name, nil
}

type Endpoint struct {
	Name          string
	Status        types.EndpointStatus
	FailureReason string
}

func (p *Platform) EndpointStatus(ctx context.Context, endpointName string) (Endpoint, error) {
	out, err := p.api.DescribeEndpoint(ctx, &sm.DescribeEndpointInput{
		EndpointName: aws.String(endpointName),
	})
	if err != nil {
		return Endpoint{}, fmt.Errorf("sagemaker: describe endpoint %s: %w", endpointName, err)
	}
	return Endpoint{
		Name:          endpointName,
		Status:        out.EndpointStatus,
		FailureReason: aws.ToString(out.FailureReason),
	}, nil
}

// WaitEndpoint polls the endpoint until it is in service.
//
// It returns ErrEndpointFailed when the endpoint get be failed,
// and the context error when ctx is done before that.
func (p *Platform) WaitEndpoint(ctx context.Context, endpointName string, interval time.Duration) (Endpoint, error) {
	return loop.Start(
		ctx, Endpoint{Name: endpointName},
		func(ctx context.Context, last Endpoint) (Endpoint, loop.Next) {
			ep, err := p.EndpointStatus(ctx, endpointName)
			if err != nil {
				return last, loop.Break(err)
			}
			switch ep.Status {
			case types.EndpointStatusInService:
				return ep, loop.Break(nil)
			case types.EndpointStatusFailed:
				return ep, loop.Break(fmt.Errorf("%w: %s: %s", ErrEndpointFailed, endpointName, ep.FailureReason))
			default:
				return ep, loop.Continue(interval)
			}
		},
	)
}
