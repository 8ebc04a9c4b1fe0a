package pipeline_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opst/mlci/pkg/cmp"
	"github.com/opst/mlci/pkg/configs/pipeline"
	"github.com/opst/mlci/pkg/utils/try"
)

func TestLoad(t *testing.T) {
	t.Run("it can be loaded from a config file", func(t *testing.T) {
		cfg := try.To(pipeline.Load("./testdata/mlci.yaml", false)).OrFatal(t)

		if cfg.Training.Image != "boston-housing:v2" {
			t.Errorf("image: %s", cfg.Training.Image)
		}
		if cfg.Training.BaseJobName != "boston-housing-model" {
			t.Errorf("base job name should be default: %s", cfg.Training.BaseJobName)
		}
		if cfg.Training.InstanceType != "ml.m5.xlarge" {
			t.Errorf("instance type: %s", cfg.Training.InstanceType)
		}
		if cfg.Training.MaxRuntime != 2*time.Hour {
			t.Errorf("max runtime: %s", cfg.Training.MaxRuntime)
		}
		if !cmp.MapEq(cfg.Training.Hyperparameters, map[string]string{"alpha": "0.01"}) {
			t.Errorf("hyperparameters: %v", cfg.Training.Hyperparameters)
		}
		if !cmp.SliceEq(cfg.Training.Tags, []pipeline.Tag{{Key: "team", Value: "ml"}}) {
			t.Errorf("tags: %v", cfg.Training.Tags)
		}
		if cfg.Training.Datasets != (pipeline.Datasets{Training: "train.csv", Validation: "valid.csv"}) {
			t.Errorf("datasets: %+v", cfg.Training.Datasets)
		}

		if cfg.Deploy.InstanceType != "ml.m5.large" || cfg.Deploy.InitialInstanceCount != 2 {
			t.Errorf("deploy: %+v", cfg.Deploy)
		}

		if cfg.Report.ObjectName != "history.csv" {
			t.Errorf("object name: %s", cfg.Report.ObjectName)
		}
		if cfg.Report.PollInterval != 30*time.Second || cfg.Report.PollTimeout != time.Hour {
			t.Errorf("poll: %+v", cfg.Report)
		}
		if !cmp.SliceEq(cfg.Report.Metrics, []string{"Train_MSE", "Validation_MSE", "Validation_MAE"}) {
			t.Errorf("metrics: %v", cfg.Report.Metrics)
		}
	})

	t.Run("missing file yields default when it is allowed", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "mlci.yaml")
		cfg := try.To(pipeline.Load(file, true)).OrFatal(t)
		def := pipeline.Default()
		if cfg.Training.Image != def.Training.Image || cfg.Report.ObjectName != def.Report.ObjectName {
			t.Errorf("not default: %+v", cfg)
		}
	})

	t.Run("missing file causes error when it is not allowed", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "mlci.yaml")
		if _, err := pipeline.Load(file, false); err == nil {
			t.Error("no error")
		}
	})
}

func TestDefault(t *testing.T) {
	cfg := pipeline.Default()

	if cfg.Training.Image != "my-app:latest" {
		t.Errorf("image: %s", cfg.Training.Image)
	}
	if cfg.Training.BaseJobName != "boston-housing-model" {
		t.Errorf("base job name: %s", cfg.Training.BaseJobName)
	}
	if cfg.Training.InstanceType != "ml.m5.large" || cfg.Training.InstanceCount != 1 {
		t.Errorf("instance: %+v", cfg.Training)
	}
	if !cmp.MapEq(cfg.Training.Hyperparameters, map[string]string{"nestimators": "70"}) {
		t.Errorf("hyperparameters: %v", cfg.Training.Hyperparameters)
	}
	if cfg.Report.ObjectName != "reports.csv" {
		t.Errorf("object name: %s", cfg.Report.ObjectName)
	}
	if !cmp.SliceEq(cfg.Report.Metrics, []string{"Train_MSE", "Validation_MSE"}) {
		t.Errorf("metrics: %v", cfg.Report.Metrics)
	}
}

func TestDecode(t *testing.T) {
	t.Run("empty document yields default", func(t *testing.T) {
		cfg := try.To(pipeline.Decode(strings.NewReader(""))).OrFatal(t)
		if cfg.Training.Image != "my-app:latest" {
			t.Errorf("image: %s", cfg.Training.Image)
		}
	})

	t.Run("hyperparameters in the file replace the default ones", func(t *testing.T) {
		cfg := try.To(pipeline.Decode(strings.NewReader(
			"training:\n  hyperparameters:\n    alpha: \"0.5\"\n",
		))).OrFatal(t)
		if !cmp.MapEq(cfg.Training.Hyperparameters, map[string]string{"alpha": "0.5"}) {
			t.Errorf("hyperparameters: %v", cfg.Training.Hyperparameters)
		}
	})

	t.Run("empty hyperparameters clear the default ones", func(t *testing.T) {
		cfg := try.To(pipeline.Decode(strings.NewReader(
			"training:\n  hyperparameters: {}\n",
		))).OrFatal(t)
		if len(cfg.Training.Hyperparameters) != 0 {
			t.Errorf("hyperparameters: %v", cfg.Training.Hyperparameters)
		}
	})

	t.Run("without hyperparameters, the default ones are kept", func(t *testing.T) {
		cfg := try.To(pipeline.Decode(strings.NewReader(
			"training:\n  instance_count: 2\n",
		))).OrFatal(t)
		if !cmp.MapEq(cfg.Training.Hyperparameters, map[string]string{"nestimators": "70"}) {
			t.Errorf("hyperparameters: %v", cfg.Training.Hyperparameters)
		}
	})

	type When struct {
		yaml string
	}
	theory := func(when When) func(*testing.T) {
		return func(t *testing.T) {
			_, err := pipeline.Decode(strings.NewReader(when.yaml))
			if !errors.Is(err, pipeline.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, but: %v", err)
			}
		}
	}

	t.Run("empty image", theory(When{yaml: "training:\n  image: \"\"\n"}))
	t.Run("zero instance count", theory(When{yaml: "training:\n  instance_count: 0\n"}))
	t.Run("malformed max runtime", theory(When{yaml: "training:\n  max_runtime: a-day\n"}))
	t.Run("tag without key", theory(When{yaml: "deploy:\n  tags:\n    - value: x\n"}))
	t.Run("timeout shorter than interval", theory(When{yaml: "report:\n  poll_interval: 1m\n  poll_timeout: 10s\n"}))
	t.Run("duplicated metrics", theory(When{yaml: "report:\n  metrics: [Train_MSE, Train_MSE]\n"}))
	t.Run("no metrics", theory(When{yaml: "report:\n  metrics: []\n"}))
}
