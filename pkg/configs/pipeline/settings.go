package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrMissingSetting = errors.New("pipeline: missing setting")

// Storage locates the report file and datasets.
type Storage struct {
	Bucket string `env:"BUCKET_NAME" validate:"required"`
	Prefix string `env:"PREFIX" validate:"required"`

	// Endpoint of object storage. Empty means the default S3 endpoint.
	Endpoint string `env:"S3_ENDPOINT"`
}

// Submit are settings for submitting training jobs.
type Submit struct {
	Storage
	Region     string `env:"AWS_DEFAULT_REGION" validate:"required"`
	RoleName   string `env:"IAM_ROLE_NAME" validate:"required"`
	CommitHash string `env:"GITHUB_SHA" validate:"required"`
}

// Train are settings passed to the training container by the training job.
type Train struct {
	Storage
	Region          string `env:"REGION" validate:"required"`
	CommitHash      string `env:"GITHUB_SHA" validate:"required"`
	TrainingJobName string `env:"TRAINING_JOB_NAME" validate:"required"`
}

// DeploySettings are settings for deploying models and reading the report.
type DeploySettings struct {
	Storage
	Region string `env:"AWS_DEFAULT_REGION" validate:"required"`
}

// FromEnv fills string fields of dest which are still empty,
// by environment variables named in their "env" tag.
//
// dest should be a pointer to struct.
func FromEnv(getenv func(string) string, dest any) {
	fill(getenv, reflect.ValueOf(dest).Elem())
}

func fill(getenv func(string) string, v reflect.Value) {
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		value := v.Field(i)
		if field.Anonymous && value.Kind() == reflect.Struct {
			fill(getenv, value)
			continue
		}
		name, ok := field.Tag.Lookup("env")
		if !ok || value.Kind() != reflect.String || !value.CanSet() {
			continue
		}
		if value.String() != "" {
			continue
		}
		value.SetString(getenv(name))
	}
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}()

// Validate checks that all required settings are given.
//
// Missing settings are reported as ErrMissingSetting, with their environment variable names.
func Validate(settings any) error {
	err := validate.Struct(settings)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	missing := make([]string, 0, len(verrs))
	for _, e := range verrs {
		missing = append(missing, e.Field())
	}
	return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
}
