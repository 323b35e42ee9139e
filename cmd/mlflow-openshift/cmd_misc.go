package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/davidmdm/mlflow-openshift/internal"
)

//go:embed cmd_target_help.txt
var targetHelp string

func init() {
	targetHelp = strings.TrimSpace(internal.Colorize(targetHelp))
}

// Help describes the deployment target: the config items it accepts and how updates behave.
func Help(ctx context.Context) error {
	_, err := fmt.Fprintln(internal.Stdout(ctx), targetHelp)
	return err
}

var ErrRunLocal = errors.New(
	"running a model locally is not supported for the openshift target.\n" +
		"Consider running `mlflow models predict --help` for local batch predictions",
)

func RunLocal() error {
	return ErrRunLocal
}

func Version(ctx context.Context) error {
	info, _ := debug.ReadBuildInfo()

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleRounded)

	tbl.AppendRow(table.Row{"mlflow-openshift", info.Main.Version})

	for _, mod := range info.Deps {
		if !slices.Contains([]string{"k8s.io/client-go"}, mod.Path) {
			continue
		}
		tbl.AppendRow(table.Row{mod.Path, mod.Version})
	}

	_, err := fmt.Fprintln(internal.Stdout(ctx), tbl.Render())
	return err
}
