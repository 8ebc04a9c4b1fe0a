package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/opst/mlci/pkg/configs/pipeline"
	"github.com/opst/mlci/pkg/objectstorage"
	"github.com/opst/mlci/pkg/sagemaker"
	"github.com/youta-t/flarc"
)

type TaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTaskWithCommonFlag[T any](task TaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		logger := log.New(cl.Stderr(), "", log.LstdFlags)
		logger.SetPrefix(fmt.Sprintf("[%s] ", cl.Fullname()))

		return task(
			ctx,
			logger,
			commonFlag,
			cl,
			newpos,
		)
	}
}

type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	config pipeline.Config,
	cl flarc.Commandline[T],
	params []any,
) error

// NewTask loads the pipeline config file named by the common flag, and passes it to task.
//
// Only the default config file is allowed to be missing.
func NewTask[T any](task Task[T]) flarc.Task[T] {
	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) error {
		file := commonFlag.Config
		if file == "" {
			file = pipeline.DefaultConfigFile
		}
		config, err := pipeline.Load(file, file == pipeline.DefaultConfigFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: config file (%s) is not found", flarc.ErrUsage, file)
			}
			return fmt.Errorf("%w: failed to load config file (%s)", err, file)
		}
		return task(ctx, logger, commonFlag, config, cl, params)
	})
}

// Resolve fills empty settings by environment variables, and checks all required settings are given.
//
// settings should be a pointer to one of settings structs in pipeline package.
func Resolve(getenv func(string) string, settings any) error {
	pipeline.FromEnv(getenv, settings)
	if err := pipeline.Validate(settings); err != nil {
		return errors.Join(flarc.ErrUsage, err)
	}
	return nil
}

// StorageConnector creates object storage client.
type StorageConnector func(storage pipeline.Storage, region string) (objectstorage.Storage, error)

// PlatformConnector creates the platform client.
type PlatformConnector func(ctx context.Context, region string) (*sagemaker.Platform, error)

// NewStorage connects to the object storage. Credentials are found in the AWS environment.
func NewStorage(storage pipeline.Storage, region string) (objectstorage.Storage, error) {
	endpoint, insecure := Endpoint(storage.Endpoint)
	return objectstorage.NewMinio(objectstorage.Config{
		Endpoint: endpoint,
		Region:   region,
		Insecure: insecure,
	})
}

// NewPlatform connects to the platform with the default AWS config.
func NewPlatform(ctx context.Context, region string) (*sagemaker.Platform, error) {
	return sagemaker.NewFromEnv(ctx, region)
}

// Getenv looks up environment variables in the map. It is for tests.
func Getenv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}
