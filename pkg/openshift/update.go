package openshift

import (
	"context"
	"fmt"
	"io"
	"slices"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/klog/v2"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/internal/config"
	"github.com/davidmdm/mlflow-openshift/internal/k8s"
	"github.com/davidmdm/mlflow-openshift/internal/text"
)

type UpdateParams struct {
	Name     string
	ModelURI string
	Flavor   string
	// Config may only carry the image keys, and then all of them.
	Config map[string]string

	// DiffOnly writes the change to the deployment config to Out instead of applying it.
	DiffOnly bool
	Color    bool
	Context  int
	Out      io.Writer
}

// Update swaps the model and/or the serving image of an existing deployment and waits until the new
// revision answers. Anything beyond that requires deleting the deployment and creating it again.
// If the new revision fails the deployment is deleted, as it would be after a failed create.
func (client Client) Update(ctx context.Context, params UpdateParams) (*Result, error) {
	if params.ModelURI == "" && len(params.Config) == 0 {
		return nil, internal.ConfigErrorf("provide at least a new model uri or config")
	}

	if len(params.Config) > 0 {
		for key := range params.Config {
			if !slices.Contains(config.ImageKeys, key) {
				return nil, internal.ConfigErrorf("%q cannot be updated: only image, docker_registry and tag can be changed", key)
			}
		}
		if err := config.ValidateImage(params.Config); err != nil {
			return nil, err
		}
	}

	current, err := client.k8s.GetDeploymentConfig(ctx, params.Name)
	if err != nil {
		return nil, err
	}

	desired := current.DeepCopy()

	if len(params.Config) > 0 {
		if err := patchServingContainer(desired, func(container map[string]any) error {
			container["image"] = config.ImageFrom(params.Config).String()
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if params.ModelURI != "" {
		if err := patchServingContainer(desired, func(container map[string]any) error {
			return setModelURI(container, params.ModelURI)
		}); err != nil {
			return nil, err
		}
	}

	if params.DiffOnly {
		return nil, client.diff(current, desired, params)
	}

	auth, err := k8s.AuthFromDeploymentConfig(desired)
	if err != nil {
		return nil, err
	}

	klog.FromContext(ctx).Info("updating deployment", "deployment", params.Name)

	if err := client.k8s.UpdateDeploymentConfig(ctx, desired); err != nil {
		return nil, fmt.Errorf("failed to update deployment config: %w", err)
	}

	if err := client.monitor.Wait(ctx, params.Name, auth); err != nil {
		return nil, client.rollback(ctx, params.Name, err)
	}

	endpoint, err := client.k8s.FindRoute(ctx, params.Name)
	if err != nil {
		return nil, client.rollback(ctx, params.Name, err)
	}

	return &Result{Name: params.Name, Flavor: params.Flavor, Endpoint: endpoint}, nil
}

func (client Client) diff(current, desired *unstructured.Unstructured, params UpdateParams) error {
	from, err := text.ResourceFile("current", current)
	if err != nil {
		return fmt.Errorf("failed to render current deployment config: %w", err)
	}

	to, err := text.ResourceFile("next", desired)
	if err != nil {
		return fmt.Errorf("failed to render next deployment config: %w", err)
	}

	differ := text.Diff
	if params.Color {
		differ = text.DiffColorized
	}

	diff := differ(from, to, params.Context)
	if diff == "" {
		return internal.Warning("no changes to deployment " + params.Name)
	}

	out := params.Out
	if out == nil {
		out = io.Discard
	}

	_, err = fmt.Fprint(out, diff)
	return err
}

func patchServingContainer(dc *unstructured.Unstructured, patch func(container map[string]any) error) error {
	containers, _, err := unstructured.NestedSlice(dc.Object, "spec", "template", "spec", "containers")
	if err != nil {
		return fmt.Errorf("invalid deployment config: %w", err)
	}

	for _, value := range containers {
		container, ok := value.(map[string]any)
		if !ok || container["name"] != k8s.ContainerModelServing {
			continue
		}
		if err := patch(container); err != nil {
			return err
		}
		return unstructured.SetNestedSlice(dc.Object, containers, "spec", "template", "spec", "containers")
	}

	return internal.NotFoundError{Kind: "container " + k8s.ContainerModelServing, Name: dc.GetName()}
}

// setModelURI replaces the argument following the model flag of the serve command.
func setModelURI(container map[string]any, modelURI string) error {
	command, _ := container["command"].([]any)
	for i, arg := range command {
		if (arg == "-m" || arg == "--model-uri") && i+1 < len(command) {
			command[i+1] = modelURI
			container["command"] = command
			return nil
		}
	}
	return fmt.Errorf("container %s: command has no model uri argument", k8s.ContainerModelServing)
}
