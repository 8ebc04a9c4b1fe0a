package pipeline_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/opst/mlci/pkg/configs/pipeline"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv(t *testing.T) {
	env := envOf(map[string]string{
		"BUCKET_NAME":        "bucket",
		"PREFIX":             "boston",
		"AWS_DEFAULT_REGION": "ap-northeast-1",
		"IAM_ROLE_NAME":      "role",
		"GITHUB_SHA":         "abc123",
		"S3_ENDPOINT":        "localhost:9000",
	})

	t.Run("it fills empty settings", func(t *testing.T) {
		s := pipeline.Submit{}
		pipeline.FromEnv(env, &s)

		expected := pipeline.Submit{
			Storage:    pipeline.Storage{Bucket: "bucket", Prefix: "boston", Endpoint: "localhost:9000"},
			Region:     "ap-northeast-1",
			RoleName:   "role",
			CommitHash: "abc123",
		}
		if s != expected {
			t.Errorf("(actual, expected) = (%+v, %+v)", s, expected)
		}
		if err := pipeline.Validate(s); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it keeps settings already given", func(t *testing.T) {
		s := pipeline.DeploySettings{Storage: pipeline.Storage{Bucket: "from-flag"}}
		pipeline.FromEnv(env, &s)

		if s.Bucket != "from-flag" {
			t.Errorf("bucket: %s", s.Bucket)
		}
		if s.Prefix != "boston" || s.Region != "ap-northeast-1" {
			t.Errorf("settings: %+v", s)
		}
	})

	t.Run("train reads REGION and TRAINING_JOB_NAME", func(t *testing.T) {
		s := pipeline.Train{}
		pipeline.FromEnv(envOf(map[string]string{
			"BUCKET_NAME":       "bucket",
			"PREFIX":            "boston",
			"REGION":            "us-east-1",
			"GITHUB_SHA":        "abc123",
			"TRAINING_JOB_NAME": "boston-housing-model-2024-01-01-00-00-00-000",
		}), &s)
		if err := pipeline.Validate(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Region != "us-east-1" || s.TrainingJobName != "boston-housing-model-2024-01-01-00-00-00-000" {
			t.Errorf("settings: %+v", s)
		}
	})
}

func TestValidate(t *testing.T) {
	s := pipeline.Submit{Storage: pipeline.Storage{Bucket: "bucket"}, Region: "us-east-1"}

	err := pipeline.Validate(s)
	if !errors.Is(err, pipeline.ErrMissingSetting) {
		t.Fatalf("expected ErrMissingSetting, but: %v", err)
	}
	for _, name := range []string{"PREFIX", "IAM_ROLE_NAME", "GITHUB_SHA"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention %s: %v", name, err)
		}
	}
	for _, name := range []string{"BUCKET_NAME", "AWS_DEFAULT_REGION", "S3_ENDPOINT"} {
		if strings.Contains(err.Error(), name) {
			t.Errorf("error should not mention %s: %v", name, err)
		}
	}
}
