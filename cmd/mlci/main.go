//go:generate go run github.com/Songmu/gocredits/cmd/gocredits@v0.3.0 -w
package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"path"

	"github.com/opst/mlci/cmd/mlci/subcommands/common"
	subdeploy "github.com/opst/mlci/cmd/mlci/subcommands/deploy"
	sublic "github.com/opst/mlci/cmd/mlci/subcommands/license"
	"github.com/opst/mlci/cmd/mlci/subcommands/logger"
	subreport "github.com/opst/mlci/cmd/mlci/subcommands/report"
	subserve "github.com/opst/mlci/cmd/mlci/subcommands/serve"
	subsubmit "github.com/opst/mlci/cmd/mlci/subcommands/submit"
	subtrain "github.com/opst/mlci/cmd/mlci/subcommands/train"
	subver "github.com/opst/mlci/cmd/mlci/subcommands/version"
	"github.com/opst/mlci/pkg/utils/try"
	"github.com/youta-t/flarc"
)

//go:embed CREDITS
var CREDITS string

func main() {
	name := path.Base(os.Args[0])
	logger := logger.Default()
	logger.SetPrefix(fmt.Sprintf("[%s] ", name))

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	submit := try.To(subsubmit.New()).OrFatal(logger)
	train := try.To(subtrain.New()).OrFatal(logger)
	serve := try.To(subserve.New()).OrFatal(logger)
	deploy := try.To(subdeploy.New()).OrFatal(logger)
	report := try.To(subreport.New()).OrFatal(logger)
	license := try.To(sublic.New(CREDITS)).OrFatal(logger)
	version := try.To(subver.New()).OrFatal(logger)

	mlci := try.To(
		flarc.NewCommandGroup(
			"CI/CD for models trained and served on SageMaker",
			common.DefaultCommonFlags(),
			flarc.WithSubcommand("submit", submit),
			flarc.WithSubcommand("train", train),
			flarc.WithSubcommand("serve", serve),
			flarc.WithSubcommand("deploy", deploy),
			flarc.WithSubcommand("report", report),
			flarc.WithSubcommand("license", license),
			flarc.WithSubcommand("version", version),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, mlci, flarc.WithHelp(true)))
}
