package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/pkg/openshift"
)

type UpdateParams struct {
	GlobalSettings
	openshift.UpdateParams
}

//go:embed cmd_update_help.txt
var updateHelp string

func init() {
	updateHelp = strings.TrimSpace(internal.Colorize(updateHelp))
}

func GetUpdateParams(settings GlobalSettings, args []string) (*UpdateParams, error) {
	flagset := flag.NewFlagSet("update", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), updateHelp)
		flagset.PrintDefaults()
	}

	params := UpdateParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	cfg := ConfigFlag{}

	flagset.StringVar(&params.ModelURI, "m", "", "new model uri")
	flagset.Var(cfg, "C", "image config item (image, docker_registry, tag) as key=value. May be repeated")
	flagset.StringVar(&params.Flavor, "flavor", "", "mlflow model flavor")
	flagset.BoolVar(&params.DiffOnly, "diff-only", false, "show diff between the current and the updated deployment config. Does not apply anything to cluster")
	flagset.BoolVar(&params.Color, "color", term.IsTerminal(int(os.Stdout.Fd())), "use colored output in diffs")
	flagset.IntVar(&params.Context, "context", 4, "number of lines of context in diff (ignored if not using --diff-only)")

	flagset.Parse(args)

	params.Name = flagset.Arg(0)
	if params.Name == "" {
		return nil, fmt.Errorf("deployment name is required as first positional arg")
	}

	if len(cfg) > 0 {
		params.Config = cfg
	}

	return &params, nil
}

func Update(ctx context.Context, params UpdateParams) error {
	client, err := NewClient(ctx, params.GlobalSettings)
	if err != nil {
		return err
	}

	params.Out = internal.Stdout(ctx)

	result, err := client.Update(ctx, params.UpdateParams)
	if err != nil {
		return err
	}
	if result != nil {
		fmt.Fprintf(internal.Stdout(ctx), "deployment %s is available at https://%s\n", result.Name, result.Endpoint)
	}

	return nil
}
