package openshift

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/internal/config"
	"github.com/davidmdm/mlflow-openshift/internal/k8s"
	"github.com/davidmdm/mlflow-openshift/internal/manifest"
)

type CreateParams struct {
	Name     string
	ModelURI string
	// Flavor is recorded in the result. All flavors are served the same way.
	Flavor string
	Config map[string]string

	// TemplatePath replaces the embedded serving template when set.
	TemplatePath string
	SkipDryRun   bool
}

// Create submits a new deployment and waits until its model server answers.
// Configuration errors are reported before the cluster is contacted. Any failure after the
// resources were submitted deletes them again before the error is returned.
func (client Client) Create(ctx context.Context, params CreateParams) (*Result, error) {
	if params.Name == "" || params.ModelURI == "" {
		return nil, internal.ConfigErrorf("name and model uri are required")
	}

	deployment, err := config.Build(params.Config, client.env)
	if err != nil {
		return nil, err
	}

	tmpl, err := func() (*manifest.Template, error) {
		if params.TemplatePath != "" {
			return manifest.Load(params.TemplatePath)
		}
		return manifest.Default()
	}()
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	resources, err := tmpl.Process(deployment.Parameters(params.Name, params.ModelURI))
	if err != nil {
		return nil, internal.ConfigErrorf("%v", err)
	}

	manifest.Label(resources, params.Name)

	logger := klog.FromContext(ctx).WithValues("deployment", params.Name)
	logger.Info("submitting deployment", "image", deployment.Image.String(), "modelURI", params.ModelURI)

	if !params.SkipDryRun {
		if err := client.k8s.DryRun(ctx, resources); err != nil {
			return nil, fmt.Errorf("resources were rejected: %w", err)
		}
	}

	if err := client.k8s.ApplyResources(ctx, resources, k8s.ApplyResourcesOpts{SkipDryRun: true}); err != nil {
		return nil, client.rollback(ctx, params.Name, fmt.Errorf("failed to apply resources: %w", err))
	}

	if err := client.monitor.Wait(ctx, params.Name, k8s.BasicAuth(deployment.Auth)); err != nil {
		return nil, client.rollback(ctx, params.Name, err)
	}

	endpoint, err := client.k8s.FindRoute(ctx, params.Name)
	if err != nil {
		return nil, client.rollback(ctx, params.Name, err)
	}

	logger.Info("endpoint available", "host", endpoint)

	return &Result{Name: params.Name, Flavor: params.Flavor, Endpoint: endpoint}, nil
}
