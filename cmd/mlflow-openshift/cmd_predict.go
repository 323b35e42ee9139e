package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/internal/serving"
	"github.com/davidmdm/mlflow-openshift/pkg/openshift"
)

type PredictParams struct {
	GlobalSettings
	Name   string
	Input  io.Reader
	Path   string
	Format string
	Output string
}

//go:embed cmd_predict_help.txt
var predictHelp string

func init() {
	predictHelp = strings.TrimSpace(internal.Colorize(predictHelp))
}

func GetPredictParams(settings GlobalSettings, stdin io.Reader, args []string) (*PredictParams, error) {
	flagset := flag.NewFlagSet("predict", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), predictHelp)
		flagset.PrintDefaults()
	}

	params := PredictParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	flagset.StringVar(&params.Format, "format", "", "input format: json or csv. Inferred from the file extension by default")
	flagset.StringVar(&params.Output, "o", "table", "output format: table or json")

	flagset.Parse(args)

	params.Name = flagset.Arg(0)
	params.Path = flagset.Arg(1)

	if params.Name == "" {
		return nil, fmt.Errorf("deployment name is required as first positional arg")
	}
	if params.Path == "" {
		return nil, fmt.Errorf("input path is required as second positional arg (use - for stdin)")
	}
	if params.Path == "-" {
		params.Input = stdin
	}

	if params.Format == "" {
		params.Format = "json"
		if strings.EqualFold(filepath.Ext(params.Path), ".csv") {
			params.Format = "csv"
		}
	}
	if params.Format != "json" && params.Format != "csv" {
		return nil, fmt.Errorf("unsupported input format: %s", params.Format)
	}
	if params.Output != "table" && params.Output != "json" {
		return nil, fmt.Errorf("unsupported output format: %s", params.Output)
	}

	return &params, nil
}

func ReadFrame(params PredictParams) (openshift.Frame, error) {
	input := params.Input
	if input == nil {
		file, err := os.Open(params.Path)
		if err != nil {
			return openshift.Frame{}, fmt.Errorf("failed to open input: %w", err)
		}
		defer file.Close()
		input = file
	}

	if params.Format == "csv" {
		return serving.ReadCSVFrame(input)
	}
	return serving.ReadJSONFrame(input)
}

func Predict(ctx context.Context, params PredictParams) error {
	frame, err := ReadFrame(params)
	if err != nil {
		return err
	}

	client, err := NewClient(ctx, params.GlobalSettings)
	if err != nil {
		return err
	}

	predictions, err := client.Predict(ctx, params.Name, frame)
	if err != nil {
		return err
	}

	output, err := RenderPredictions(predictions, params.Output)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(internal.Stdout(ctx), output)
	return err
}

func RenderPredictions(predictions openshift.Array, format string) (string, error) {
	rows := predictions.Rows()

	if format == "json" {
		values := make([]any, len(rows))
		for i, row := range rows {
			if len(predictions.Shape) == 1 {
				values[i] = row[0]
				continue
			}
			values[i] = row
		}
		data, err := json.Marshal(values)
		return string(data), err
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleRounded)

	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}

	header := table.Row{"row"}
	for i := range width {
		header = append(header, fmt.Sprintf("prediction %d", i))
	}
	tbl.AppendHeader(header)

	for i, row := range rows {
		cells := table.Row{i}
		for _, value := range row {
			cells = append(cells, value)
		}
		tbl.AppendRow(cells)
	}

	return tbl.Render(), nil
}
