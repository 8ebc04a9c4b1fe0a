package common_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/opst/mlci/cmd/mlci/subcommands/common"
	"github.com/opst/mlci/cmd/mlci/subcommands/internal/commandline"
	"github.com/opst/mlci/pkg/configs/pipeline"
	"github.com/youta-t/flarc"
)

func TestEndpoint(t *testing.T) {
	type then struct {
		host     string
		insecure bool
	}
	theory := func(when string, then then) func(*testing.T) {
		return func(t *testing.T) {
			host, insecure := common.Endpoint(when)
			if host != then.host || insecure != then.insecure {
				t.Errorf(
					"(host, insecure): actual = (%s, %v), expected = (%s, %v)",
					host, insecure, then.host, then.insecure,
				)
			}
		}
	}

	t.Run("empty", theory("", then{host: "", insecure: false}))
	t.Run("bare host", theory("s3.example.com", then{host: "s3.example.com", insecure: false}))
	t.Run("https", theory("https://s3.example.com/", then{host: "s3.example.com", insecure: false}))
	t.Run("http", theory("http://localhost:9000", then{host: "localhost:9000", insecure: true}))
}

func TestNewTask(t *testing.T) {
	type when struct {
		flags  common.CommonFlags
		params []any
	}
	type then struct {
		called bool
		config pipeline.Config
		fails  bool
		usage  bool
	}

	withObjectName := func(name string) pipeline.Config {
		c := pipeline.Default()
		c.Report.ObjectName = name
		return c
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			called := false
			testee := common.NewTask(func(
				ctx context.Context,
				logger *log.Logger,
				commonFlag common.CommonFlags,
				config pipeline.Config,
				cl flarc.Commandline[struct{}],
				params []any,
			) error {
				called = true
				if commonFlag != when.flags {
					t.Errorf("common flags: actual = %+v, expected = %+v", commonFlag, when.flags)
				}
				if config.Report.ObjectName != then.config.Report.ObjectName {
					t.Errorf("config: actual = %+v, expected = %+v", config.Report, then.config.Report)
				}
				if len(params) != 0 {
					t.Errorf("params are not consumed: %v", params)
				}
				return nil
			})

			err := testee(
				context.Background(),
				commandline.MockCommandline[struct{}]{
					Fullname_: "mlci test",
					Stdout_:   io.Discard,
					Stderr_:   io.Discard,
				},
				when.params,
			)

			if called != then.called {
				t.Errorf("called: actual = %v, expected = %v", called, then.called)
			}
			if !then.fails && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if then.fails && err == nil {
				t.Fatal("expected error, but not")
			}
			if then.usage && !errors.Is(err, flarc.ErrUsage) {
				t.Errorf("error is not usage error: %v", err)
			}
		}
	}

	{
		flags := common.CommonFlags{Config: "./testdata/mlci.yaml"}
		t.Run("it loads the config file", theory(
			when{flags: flags, params: []any{flags}},
			then{called: true, config: withObjectName("history.csv")},
		))
	}

	{
		flags := common.CommonFlags{Config: "./testdata/missing.yaml"}
		t.Run("when the given config file is missing, it is usage error", theory(
			when{flags: flags, params: []any{flags}},
			then{called: false, fails: true, usage: true},
		))
	}

	{
		flags := common.CommonFlags{Config: "./testdata/broken.yaml"}
		t.Run("when the config file is broken, it returns error", theory(
			when{flags: flags, params: []any{flags}},
			then{called: false, fails: true},
		))
	}

	t.Run("when common flags are not passed, it is error", theory(
		when{params: []any{}},
		then{called: false, fails: true},
	))
}

func TestResolve(t *testing.T) {
	t.Run("it fills empty settings by environment variables, and keeps given ones", func(t *testing.T) {
		settings := pipeline.DeploySettings{
			Storage: pipeline.Storage{Bucket: "from-flag"},
		}
		err := common.Resolve(
			common.Getenv(map[string]string{
				"BUCKET_NAME":        "from-env",
				"PREFIX":             "housing",
				"AWS_DEFAULT_REGION": "eu-west-1",
			}),
			&settings,
		)
		if err != nil {
			t.Fatal(err)
		}
		if settings.Bucket != "from-flag" || settings.Prefix != "housing" || settings.Region != "eu-west-1" {
			t.Errorf("unexpected settings: %+v", settings)
		}
	})

	t.Run("when required settings are missing, it is usage error", func(t *testing.T) {
		settings := pipeline.DeploySettings{}
		err := common.Resolve(common.Getenv(map[string]string{"PREFIX": "housing"}), &settings)
		if !errors.Is(err, flarc.ErrUsage) {
			t.Errorf("not usage error: %v", err)
		}
		if !errors.Is(err, pipeline.ErrMissingSetting) {
			t.Errorf("not missing setting: %v", err)
		}
	})
}
