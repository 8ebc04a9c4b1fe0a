package mock

import (
	"context"
	"testing"

	sm "github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/opst/mlci/pkg/sagemaker"
)

type MockAPI struct {
	t    *testing.T
	Impl struct {
		CreateTrainingJob    func(context.Context, *sm.CreateTrainingJobInput) (*sm.CreateTrainingJobOutput, error)
		DescribeTrainingJob  func(context.Context, *sm.DescribeTrainingJobInput) (*sm.DescribeTrainingJobOutput, error)
		CreateModel          func(context.Context, *sm.CreateModelInput) (*sm.CreateModelOutput, error)
		CreateEndpointConfig func(context.Context, *sm.CreateEndpointConfigInput) (*sm.CreateEndpointConfigOutput, error)
		CreateEndpoint       func(context.Context, *sm.CreateEndpointInput) (*sm.CreateEndpointOutput, error)
		DescribeEndpoint     func(context.Context, *sm.DescribeEndpointInput) (*sm.DescribeEndpointOutput, error)
	}
	Calls struct {
		CreateTrainingJob    []*sm.CreateTrainingJobInput
		DescribeTrainingJob  []*sm.DescribeTrainingJobInput
		CreateModel          []*sm.CreateModelInput
		CreateEndpointConfig []*sm.CreateEndpointConfigInput
		CreateEndpoint       []*sm.CreateEndpointInput
		DescribeEndpoint     []*sm.DescribeEndpointInput
	}
}

var _ sagemaker.API = &MockAPI{}

func New(t *testing.T) *MockAPI {
	return &MockAPI{t: t}
}

func (m *MockAPI) CreateTrainingJob(ctx context.Context, in *sm.CreateTrainingJobInput, _ ...func(*sm.Options)) (*sm.CreateTrainingJobOutput, error) {
	m.t.Helper()

	m.Calls.CreateTrainingJob = append(m.Calls.CreateTrainingJob, in)
	if m.Impl.CreateTrainingJob == nil {
		m.t.Fatal("CreateTrainingJob is not ready to be called")
	}
	return m.Impl.CreateTrainingJob(ctx, in)
}

func (m *MockAPI) DescribeTrainingJob(ctx context.Context, in *sm.DescribeTrainingJobInput, _ ...func(*sm.Options)) (*sm.DescribeTrainingJobOutput, error) {
	m.t.Helper()

	m.Calls.DescribeTrainingJob = append(m.Calls.DescribeTrainingJob, in)
	if m.Impl.DescribeTrainingJob == nil {
		m.t.Fatal("DescribeTrainingJob is not ready to be called")
	}
	return m.Impl.DescribeTrainingJob(ctx, in)
}

func (m *MockAPI) CreateModel(ctx context.Context, in *sm.CreateModelInput, _ ...func(*sm.Options)) (*sm.CreateModelOutput, error) {
	m.t.Helper()

	m.Calls.CreateModel = append(m.Calls.CreateModel, in)
	if m.Impl.CreateModel == nil {
		m.t.Fatal("CreateModel is not ready to be called")
	}
	return m.Impl.CreateModel(ctx, in)
}

func (m *MockAPI) CreateEndpointConfig(ctx context.Context, in *sm.CreateEndpointConfigInput, _ ...func(*sm.Options)) (*sm.CreateEndpointConfigOutput, error) {
	m.t.Helper()

	m.Calls.CreateEndpointConfig = append(m.Calls.CreateEndpointConfig, in)
	if m.Impl.CreateEndpointConfig == nil {
		m.t.Fatal("CreateEndpointConfig is not ready to be called")
	}
	return m.Impl.CreateEndpointConfig(ctx, in)
}

func (m *MockAPI) CreateEndpoint(ctx context.Context, in *sm.CreateEndpointInput, _ ...func(*sm.Options)) (*sm.CreateEndpointOutput, error) {
	m.t.Helper()

	m.Calls.CreateEndpoint = append(m.Calls.CreateEndpoint, in)
	if m.Impl.CreateEndpoint == nil {
		m.t.Fatal("CreateEndpoint is not ready to be called")
	}
	return m.Impl.CreateEndpoint(ctx, in)
}

func (m *MockAPI) DescribeEndpoint(ctx context.Context, in *sm.DescribeEndpointInput, _ ...func(*sm.Options)) (*sm.DescribeEndpointOutput, error) {
	m.t.Helper()

	m.Calls.DescribeEndpoint = append(m.Calls.DescribeEndpoint, in)
	if m.Impl.DescribeEndpoint == nil {
		m.t.Fatal("DescribeEndpoint is not ready to be called")
	}
	return m.Impl.DescribeEndpoint(ctx, in)
}

// Identity is IdentityAPI answering the fixed account.
type Identity struct {
	Account string
	Err     error
	Calls   int
}

var _ sagemaker.IdentityAPI = &Identity{}

func (i *Identity) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	i.Calls += 1
	if i.Err != nil {
		return nil, i.Err
	}
	account := i.Account
	return &sts.GetCallerIdentityOutput{Account: &account}, nil
}
