package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"strings"

	"github.com/davidmdm/mlflow-openshift/internal"
)

type DeleteParams struct {
	GlobalSettings
	Name string
}

//go:embed cmd_delete_help.txt
var deleteHelp string

func init() {
	deleteHelp = strings.TrimSpace(internal.Colorize(deleteHelp))
}

func GetDeleteParams(settings GlobalSettings, args []string) (*DeleteParams, error) {
	flagset := flag.NewFlagSet("delete", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), deleteHelp)
		flagset.PrintDefaults()
	}

	params := DeleteParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	flagset.Parse(args)

	params.Name = flagset.Arg(0)
	if params.Name == "" {
		return nil, fmt.Errorf("deployment name is required")
	}

	return &params, nil
}

func Delete(ctx context.Context, params DeleteParams) error {
	client, err := NewClient(ctx, params.GlobalSettings)
	if err != nil {
		return err
	}
	return client.Delete(ctx, params.Name)
}
