package show

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/opst/mlci/cmd/mlci/subcommands/common"
	"github.com/opst/mlci/pkg/configs/pipeline"
	"github.com/opst/mlci/pkg/objectstorage"
	"github.com/opst/mlci/pkg/report"
	"github.com/opst/mlci/pkg/report/store"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Commit  string   `flag:"commit" metavar:"SHA" help:"show rows for the commit only"`
	Columns []string `flag:"column" metavar:"NAME" help:"column to be shown. Repeatable. Default is all columns"`
	Latest  bool     `flag:"latest" help:"show the row which deploy would pick only"`
}

type Option struct {
	getenv     func(string) string
	newStorage common.StorageConnector
}

func WithEnv(getenv func(string) string) func(*Option) *Option {
	return func(o *Option) *Option {
		o.getenv = getenv
		return o
	}
}

func WithStorage(connect common.StorageConnector) func(*Option) *Option {
	return func(o *Option) *Option {
		o.newStorage = connect
		return o
	}
}

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{
		getenv:     os.Getenv,
		newStorage: common.NewStorage,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Print the report file as a markdown table.",
		Flags{},
		flarc.Args{},
		common.NewTask(Task(option.getenv, option.newStorage)),
	)
}

func Task(getenv func(string) string, newStorage common.StorageConnector) common.Task[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag common.CommonFlags,
		config pipeline.Config,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		flags := cl.Flags()
		if flags.Latest && flags.Commit != "" {
			return fmt.Errorf("%w: --latest and --commit are exclusive", flarc.ErrUsage)
		}

		settings := pipeline.DeploySettings{
			Storage: commonFlag.Storage(),
			Region:  commonFlag.Region,
		}
		if err := common.Resolve(getenv, &settings); err != nil {
			return err
		}

		storage, err := newStorage(settings.Storage, settings.Region)
		if err != nil {
			return err
		}
		reports := store.New(storage, settings.Bucket, objectstorage.Key(settings.Prefix, config.Report.ObjectName))
		table, err := reports.Load(ctx)
		if err != nil {
			if errors.Is(err, objectstorage.ErrNotFound) {
				return fmt.Errorf("report not found: %w", err)
			}
			return err
		}

		columns := flags.Columns
		if len(columns) == 0 {
			columns = table.Columns()
		}
		for _, c := range columns {
			if !slices.Contains(table.Columns(), c) {
				return fmt.Errorf("%w: unknown column: %s", flarc.ErrUsage, c)
			}
		}

		rows := table.Rows()
		switch {
		case flags.Latest:
			latest, err := table.Latest()
			if err != nil {
				return err
			}
			rows = []report.Row{latest}
		case flags.Commit != "":
			rows = table.FindByCommit(flags.Commit)
		}

		_, err = fmt.Fprintln(cl.Stdout(), report.Markdown(rows, columns...))
		return err
	}
}
