package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"strings"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/pkg/openshift"
)

type CreateParams struct {
	GlobalSettings
	openshift.CreateParams
}

//go:embed cmd_create_help.txt
var createHelp string

func init() {
	createHelp = strings.TrimSpace(internal.Colorize(createHelp))
}

func GetCreateParams(settings GlobalSettings, args []string) (*CreateParams, error) {
	flagset := flag.NewFlagSet("create", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), createHelp)
		flagset.PrintDefaults()
	}

	params := CreateParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	cfg := ConfigFlag{}

	flagset.Var(cfg, "C", "deployment config item as key=value. May be repeated")
	flagset.StringVar(&params.Flavor, "flavor", "", "mlflow model flavor")
	flagset.StringVar(&params.TemplatePath, "template", "", "path to an openshift template to use instead of the builtin one")
	flagset.BoolVar(&params.SkipDryRun, "skip-dry-run", false, "disables running dry run to resources before applying them")

	flagset.Parse(args)

	params.Name = flagset.Arg(0)
	params.ModelURI = flagset.Arg(1)
	params.Config = cfg

	if params.Name == "" {
		return nil, fmt.Errorf("deployment name is required as first positional arg")
	}
	if params.ModelURI == "" {
		return nil, fmt.Errorf("model uri is required as second positional arg")
	}

	return &params, nil
}

func Create(ctx context.Context, params CreateParams) error {
	client, err := NewClient(ctx, params.GlobalSettings)
	if err != nil {
		return err
	}

	result, err := client.Create(ctx, params.CreateParams)
	if err != nil {
		return err
	}

	fmt.Fprintf(internal.Stdout(ctx), "deployment %s is available at https://%s\n", result.Name, result.Endpoint)
	return nil
}
