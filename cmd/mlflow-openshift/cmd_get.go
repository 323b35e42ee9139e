package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/runtime"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/internal/text"
	"github.com/davidmdm/mlflow-openshift/pkg/openshift"
)

type GetParams struct {
	GlobalSettings
	Name   string
	Output string
}

//go:embed cmd_get_help.txt
var getHelp string

func init() {
	getHelp = strings.TrimSpace(internal.Colorize(getHelp))
}

func GetGetParams(settings GlobalSettings, args []string) (*GetParams, error) {
	flagset := flag.NewFlagSet("get", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), getHelp)
		flagset.PrintDefaults()
	}

	params := GetParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	flagset.StringVar(&params.Output, "o", "yaml", "output format: yaml or json")

	flagset.Parse(args)

	params.Name = flagset.Arg(0)
	if params.Name == "" {
		return nil, fmt.Errorf("deployment name is required")
	}
	if params.Output != "yaml" && params.Output != "json" {
		return nil, fmt.Errorf("unsupported output format: %s", params.Output)
	}

	return &params, nil
}

func Get(ctx context.Context, params GetParams) error {
	client, err := NewClient(ctx, params.GlobalSettings)
	if err != nil {
		return err
	}

	description, err := client.Get(ctx, params.Name)
	if err != nil {
		return err
	}

	output, err := RenderDescription(description, params.Output)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(internal.Stdout(ctx), output)
	return err
}

func RenderDescription(description *openshift.Description, format string) (string, error) {
	value := map[string]any{
		"name":             description.Name,
		"namespace":        description.Namespace,
		"endpoint":         description.Endpoint,
		"ready":            description.Ready,
		"deploymentConfig": description.DeploymentConfig.Object,
	}

	if description.Pod != nil {
		pod, err := runtime.DefaultUnstructuredConverter.ToUnstructured(description.Pod)
		if err != nil {
			return "", fmt.Errorf("failed to convert pod: %w", err)
		}
		value["pod"] = pod
	}

	if format == "json" {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	}

	return text.ToYaml(value)
}
