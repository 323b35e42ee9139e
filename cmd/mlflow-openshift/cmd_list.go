package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/davidmdm/mlflow-openshift/internal"
)

type ListParams struct {
	GlobalSettings
}

//go:embed cmd_list_help.txt
var listHelp string

func init() {
	listHelp = strings.TrimSpace(internal.Colorize(listHelp))
}

func GetListParams(settings GlobalSettings, args []string) (*ListParams, error) {
	flagset := flag.NewFlagSet("list", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), listHelp)
		flagset.PrintDefaults()
	}

	params := ListParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	flagset.Parse(args)

	return &params, nil
}

func List(ctx context.Context, params ListParams) error {
	client, err := NewClient(ctx, params.GlobalSettings)
	if err != nil {
		return err
	}

	names, err := client.List(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(internal.Stdout(ctx), RenderList(client.Namespace(), names))
	return err
}

func RenderList(namespace string, names []string) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleRounded)

	tbl.AppendHeader(table.Row{"namespace", "deployment"})
	for _, name := range names {
		tbl.AppendRow(table.Row{namespace, name})
	}

	return tbl.Render()
}
