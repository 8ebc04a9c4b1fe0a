package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the pipeline config file read when no file is specified.
const DefaultConfigFile = "./mlci.yaml"

var ErrInvalidConfig = errors.New("pipeline: invalid config")

type Tag struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type Datasets struct {
	// Training is the object name of the training dataset, relative to the prefix.
	Training string `yaml:"training"`

	// Validation is the object name of the validation dataset, relative to the prefix.
	Validation string `yaml:"validation"`
}

// Training is the configuration of training jobs.
type Training struct {
	// Image is "repository:tag" of the training image in the account's registry.
	Image           string
	BaseJobName     string
	InstanceType    string
	InstanceCount   int32
	VolumeSizeGB    int32
	MaxRuntime      time.Duration
	Hyperparameters map[string]string
	Tags            []Tag
	Datasets        Datasets
}

func (t *Training) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Image           string            `yaml:"image"`
		BaseJobName     string            `yaml:"base_job_name"`
		InstanceType    string            `yaml:"instance_type"`
		InstanceCount   int32             `yaml:"instance_count"`
		VolumeSizeGB    int32             `yaml:"volume_size_gb"`
		MaxRuntime      string            `yaml:"max_runtime"`
		Hyperparameters map[string]string `yaml:"hyperparameters"`
		Tags            []Tag             `yaml:"tags"`
		Datasets        Datasets          `yaml:"datasets"`
	}{
		Image:         t.Image,
		BaseJobName:   t.BaseJobName,
		InstanceType:  t.InstanceType,
		InstanceCount: t.InstanceCount,
		VolumeSizeGB:  t.VolumeSizeGB,
		MaxRuntime:    t.MaxRuntime.String(),
		Tags:          t.Tags,
		Datasets:      t.Datasets,
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Image == "" {
		return fmt.Errorf("%w: training.image is empty", ErrInvalidConfig)
	}
	if raw.BaseJobName == "" {
		return fmt.Errorf("%w: training.base_job_name is empty", ErrInvalidConfig)
	}
	if raw.InstanceType == "" {
		return fmt.Errorf("%w: training.instance_type is empty", ErrInvalidConfig)
	}
	if raw.InstanceCount < 1 {
		return fmt.Errorf("%w: training.instance_count should be positive: %d", ErrInvalidConfig, raw.InstanceCount)
	}
	if raw.VolumeSizeGB < 1 {
		return fmt.Errorf("%w: training.volume_size_gb should be positive: %d", ErrInvalidConfig, raw.VolumeSizeGB)
	}
	maxRuntime, err := time.ParseDuration(raw.MaxRuntime)
	if err != nil {
		return fmt.Errorf("%w: training.max_runtime: %w", ErrInvalidConfig, err)
	}
	if maxRuntime < time.Second {
		return fmt.Errorf("%w: training.max_runtime is too short: %s", ErrInvalidConfig, maxRuntime)
	}
	if raw.Datasets.Training == "" || raw.Datasets.Validation == "" {
		return fmt.Errorf("%w: training.datasets needs both of training and validation", ErrInvalidConfig)
	}
	if err := validateTags("training.tags", raw.Tags); err != nil {
		return err
	}

	t.Image = raw.Image
	t.BaseJobName = raw.BaseJobName
	t.InstanceType = raw.InstanceType
	t.InstanceCount = raw.InstanceCount
	t.VolumeSizeGB = raw.VolumeSizeGB
	t.MaxRuntime = maxRuntime
	// hyperparameters in the file replace the default set as a whole.
	if raw.Hyperparameters != nil {
		t.Hyperparameters = raw.Hyperparameters
	}
	if t.Hyperparameters == nil {
		t.Hyperparameters = map[string]string{}
	}
	t.Tags = raw.Tags
	t.Datasets = raw.Datasets
	return nil
}

// Deploy is the configuration of endpoints.
type Deploy struct {
	InstanceType         string
	InitialInstanceCount int32
	Tags                 []Tag
}

func (d *Deploy) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		InstanceType         string `yaml:"instance_type"`
		InitialInstanceCount int32  `yaml:"initial_instance_count"`
		Tags                 []Tag  `yaml:"tags"`
	}{
		InstanceType:         d.InstanceType,
		InitialInstanceCount: d.InitialInstanceCount,
		Tags:                 d.Tags,
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.InstanceType == "" {
		return fmt.Errorf("%w: deploy.instance_type is empty", ErrInvalidConfig)
	}
	if raw.InitialInstanceCount < 1 {
		return fmt.Errorf(
			"%w: deploy.initial_instance_count should be positive: %d",
			ErrInvalidConfig, raw.InitialInstanceCount,
		)
	}
	if err := validateTags("deploy.tags", raw.Tags); err != nil {
		return err
	}

	d.InstanceType = raw.InstanceType
	d.InitialInstanceCount = raw.InitialInstanceCount
	d.Tags = raw.Tags
	return nil
}

// Report is the configuration of the report file.
type Report struct {
	// ObjectName is the name of report file, relative to the prefix.
	ObjectName string

	// PollInterval is the interval of checking the report file while waiting for a training job.
	PollInterval time.Duration

	// PollTimeout is how long waiting for the training job is allowed.
	PollTimeout time.Duration

	// Metrics are names of metric columns, in order.
	Metrics []string
}

func (r *Report) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		ObjectName   string   `yaml:"object_name"`
		PollInterval string   `yaml:"poll_interval"`
		PollTimeout  string   `yaml:"poll_timeout"`
		Metrics      []string `yaml:"metrics"`
	}{
		ObjectName:   r.ObjectName,
		PollInterval: r.PollInterval.String(),
		PollTimeout:  r.PollTimeout.String(),
		Metrics:      r.Metrics,
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.ObjectName == "" {
		return fmt.Errorf("%w: report.object_name is empty", ErrInvalidConfig)
	}
	interval, err := time.ParseDuration(raw.PollInterval)
	if err != nil {
		return fmt.Errorf("%w: report.poll_interval: %w", ErrInvalidConfig, err)
	}
	if interval <= 0 {
		return fmt.Errorf("%w: report.poll_interval should be positive: %s", ErrInvalidConfig, interval)
	}
	timeout, err := time.ParseDuration(raw.PollTimeout)
	if err != nil {
		return fmt.Errorf("%w: report.poll_timeout: %w", ErrInvalidConfig, err)
	}
	if timeout < interval {
		return fmt.Errorf(
			"%w: report.poll_timeout (%s) should not be shorter than poll_interval (%s)",
			ErrInvalidConfig, timeout, interval,
		)
	}
	if len(raw.Metrics) == 0 {
		return fmt.Errorf("%w: report.metrics is empty", ErrInvalidConfig)
	}
	seen := map[string]struct{}{}
	for _, m := range raw.Metrics {
		if m == "" {
			return fmt.Errorf("%w: report.metrics contains empty name", ErrInvalidConfig)
		}
		if _, ok := seen[m]; ok {
			return fmt.Errorf("%w: report.metrics: duplicated: %s", ErrInvalidConfig, m)
		}
		seen[m] = struct{}{}
	}

	r.ObjectName = raw.ObjectName
	r.PollInterval = interval
	r.PollTimeout = timeout
	r.Metrics = raw.Metrics
	return nil
}

func validateTags(where string, tags []Tag) error {
	for _, t := range tags {
		if t.Key == "" {
			return fmt.Errorf("%w: %s: tag key is empty", ErrInvalidConfig, where)
		}
	}
	return nil
}

type Config struct {
	Training Training `yaml:"training"`
	Deploy   Deploy   `yaml:"deploy"`
	Report   Report   `yaml:"report"`
}

// Default returns the config used when no config file is given.
func Default() Config {
	return Config{
		Training: Training{
			Image:           "my-app:latest",
			BaseJobName:     "boston-housing-model",
			InstanceType:    "ml.m5.large",
			InstanceCount:   1,
			VolumeSizeGB:    30,
			MaxRuntime:      24 * time.Hour,
			Hyperparameters: map[string]string{"nestimators": "70"},
			Datasets: Datasets{
				Training:   "boston-housing-training.csv",
				Validation: "boston-housing-validation.csv",
			},
		},
		Deploy: Deploy{
			InstanceType:         "ml.m5.large",
			InitialInstanceCount: 1,
		},
		Report: Report{
			ObjectName:   "reports.csv",
			PollInterval: 10 * time.Second,
			PollTimeout:  time.Hour,
			Metrics:      []string{"Train_MSE", "Validation_MSE"},
		},
	}
}

// Decode reads config from r.
//
// Items not in r are left as Default. Empty r yields Default.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Default(), nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// Load loads config from the file.
//
// If the file does not exist and missingOk is true, it returns Default.
func Load(file string, missingOk bool) (Config, error) {
	f, err := os.Open(file)
	if err != nil {
		if missingOk && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", file, err)
	}
	return cfg, nil
}
