package report

import (
	report_show "github.com/opst/mlci/cmd/mlci/subcommands/report/show"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	show, err := report_show.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Read the report file.",
		struct{}{},
		flarc.WithSubcommand("show", show),
	)
}
