package serve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/opst/mlci/cmd/mlci/subcommands/common"
	"github.com/opst/mlci/pkg/artifact"
	"github.com/opst/mlci/pkg/container"
	"github.com/opst/mlci/pkg/echoutil"
	"github.com/opst/mlci/pkg/serving"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Port           int           `flag:"port" alias:"p" metavar:"PORT" help:"port to listen"`
	ModelDir       string        `flag:"model-dir" metavar:"DIR" help:"directory holding the model file"`
	ModelArchive   string        `flag:"model-archive" metavar:"FILE" help:"model.tar.gz to be extracted into --model-dir before loading"`
	Watch          bool          `flag:"watch" help:"reload the model when files in --model-dir are modified"`
	LogLevel       string        `flag:"loglevel" metavar:"debug|info|warn|error|off" help:"log level of the server"`
	GracefulPeriod time.Duration `flag:"graceful-period" metavar:"DURATION" help:"how long in-flight requests are waited for on shutdown"`
}

// StartFunc starts the server. It is serving.Start by default.
type StartFunc func(ctx context.Context, starter serving.Starter, holder *serving.Holder, opts ...serving.Option) (serving.Server, error)

type Option struct {
	start   StartFunc
	starter func(port int) serving.Starter
}

func WithStart(start StartFunc) func(*Option) *Option {
	return func(o *Option) *Option {
		o.start = start
		return o
	}
}

func WithStarter(starter func(port int) serving.Starter) func(*Option) *Option {
	return func(o *Option) *Option {
		o.starter = starter
		return o
	}
}

// settle is how long reloading waits after the model directory is modified.
const settle = 500 * time.Millisecond

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{
		start:   serving.Start,
		starter: serving.OnPort,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Serve predictions of the model over HTTP.",
		Flags{
			Port:           8080,
			ModelDir:       container.New("").ModelDir(),
			LogLevel:       "info",
			GracefulPeriod: 30 * time.Second,
		},
		flarc.Args{},
		common.NewTaskWithCommonFlag(Task(option.start, option.starter)),
		flarc.WithDescription(`
Entrypoint of the inference container.

It loads the model from --model-dir, and serves

- GET /ping: health check, and
- POST /invocations: predictions for rows of CSV (Content-Type: text/csv), one value per line.

With --model-archive, the archive downloaded from "Model Artifacts Location" is extracted before loading.
With --watch, the model is reloaded when it is replaced. Without models, /invocations responds 503 until a model is loaded.
`),
	)
}

func Task(start StartFunc, starter func(port int) serving.Starter) common.TaskWithCommonFlag[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		_ common.CommonFlags,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		flags := cl.Flags()
		if _, ok := echoutil.ParseLevel(flags.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log level: %s", flarc.ErrUsage, flags.LogLevel)
		}
		if flags.Port < 0 || 65535 < flags.Port {
			return fmt.Errorf("%w: port is out of range: %d", flarc.ErrUsage, flags.Port)
		}

		if flags.ModelArchive != "" {
			if err := os.MkdirAll(flags.ModelDir, 0o755); err != nil {
				return err
			}
			files, err := artifact.UnpackFile(ctx, flags.ModelArchive, flags.ModelDir)
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", flags.ModelArchive, err)
			}
			logger.Printf("%d files are extracted from %s into %s", len(files), flags.ModelArchive, flags.ModelDir)
		}

		if flags.Watch {
			if err := os.MkdirAll(flags.ModelDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s to watch: %w", flags.ModelDir, err)
			}
		}

		holder := serving.NewHolder(nil)
		if err := holder.Reload(flags.ModelDir); err != nil {
			if !flags.Watch || !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to load the model from %s: %w", flags.ModelDir, err)
			}
			logger.Printf("no models in %s yet. waiting for a model.", flags.ModelDir)
		} else {
			logger.Printf("model is loaded from %s", flags.ModelDir)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		server, err := start(
			ctx, starter(flags.Port), holder,
			serving.WithLogLevel(flags.LogLevel),
			serving.WithGracefulPeriod(flags.GracefulPeriod),
		)
		if err != nil {
			return err
		}
		logger.Printf("serving on port %d", server.Port)

		watchStop := make(chan error, 1)
		if flags.Watch {
			go func() {
				watchStop <- serving.Watch(ctx, logger, holder, flags.ModelDir, settle)
			}()
		}

		select {
		case err := <-server.ServerStop:
			if err == nil || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case err := <-watchStop:
			cancel()
			<-server.ServerStop
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("stopped watching %s: %w", flags.ModelDir, err)
		}
	}
}
