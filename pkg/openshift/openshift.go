// Package openshift deploys MLflow models as authenticated HTTPS endpoints on OpenShift.
//
// Every resource of a deployment is labelled app=<name> and template=mlflow. Those labels are how a
// deployment is found again, listed and torn down, so resources created by other means with the same
// labels are treated as part of the deployment.
package openshift

import (
	"context"
	"fmt"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/klog/v2"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/internal/config"
	"github.com/davidmdm/mlflow-openshift/internal/k8s"
	"github.com/davidmdm/mlflow-openshift/internal/monitor"
	"github.com/davidmdm/mlflow-openshift/internal/serving"
)

type (
	Environment = config.Environment
	Frame       = serving.Frame
	Array       = serving.Array
	Transition  = monitor.Transition
)

type Options struct {
	// Environment provides the storage secrets forwarded to the model server and the fallback basic auth credentials.
	Environment Environment

	// Monitor controls how a deployment is watched after submission. Zero fields take the defaults of monitor.DefaultConfig.
	Monitor monitor.Config

	// Insecure skips verification of route certificates.
	Insecure bool

	// HTTPClient overrides the client used to reach routes.
	HTTPClient *http.Client

	Clock        monitor.Clock
	OnTransition func(Transition)
}

type Client struct {
	k8s     *k8s.Client
	serving *serving.Client
	env     Environment
	monitor monitor.Monitor
}

func FromKubeConfig(path, namespace string, opts Options) (*Client, error) {
	client, err := k8s.NewClientFromKubeConfig(path, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize k8s client: %w", err)
	}
	return New(client, opts), nil
}

func New(client *k8s.Client, opts Options) *Client {
	servingClient := serving.NewClient(opts.Insecure)
	if opts.HTTPClient != nil {
		servingClient = &serving.Client{HTTP: opts.HTTPClient}
	}

	return &Client{
		k8s:     client,
		serving: servingClient,
		env:     opts.Environment,
		monitor: monitor.Monitor{
			Config:       opts.Monitor.WithDefaults(),
			Clock:        opts.Clock,
			Observer:     client,
			Prober:       servingClient,
			OnTransition: opts.OnTransition,
		},
	}
}

func (client Client) Namespace() string { return client.k8s.Namespace() }

type Result struct {
	Name     string
	Flavor   string
	Endpoint string
}

// Delete removes every resource of the deployment. Deleting a deployment that does not exist is not an error.
func (client Client) Delete(ctx context.Context, name string) error {
	if err := client.k8s.DeleteAll(ctx, name); err != nil {
		return fmt.Errorf("failed to delete deployment %s: %w", name, err)
	}
	return nil
}

// List returns the sorted names of the deployments in the namespace.
func (client Client) List(ctx context.Context) ([]string, error) {
	return client.k8s.ListDeploymentNames(ctx)
}

type Description struct {
	Name             string
	Namespace        string
	Endpoint         string
	Ready            bool
	DeploymentConfig *unstructured.Unstructured
	Pod              *corev1.Pod
}

// Get describes the deployment: its deployment config and the newest of its pods, if any.
func (client Client) Get(ctx context.Context, name string) (*Description, error) {
	dc, err := client.k8s.GetDeploymentConfig(ctx, name)
	if err != nil {
		return nil, err
	}

	pod, err := client.k8s.NewestPodFor(ctx, name)
	if err != nil {
		return nil, err
	}

	endpoint, err := client.k8s.FindRoute(ctx, name)
	if err != nil && !internal.IsNotFound(err) {
		return nil, err
	}

	return &Description{
		Name:             name,
		Namespace:        client.k8s.Namespace(),
		Endpoint:         endpoint,
		Ready:            k8s.RolloutComplete(dc),
		DeploymentConfig: dc,
		Pod:              pod,
	}, nil
}

// Predict sends frame to the model server of the deployment and returns its predictions.
func (client Client) Predict(ctx context.Context, name string, frame Frame) (Array, error) {
	if err := frame.Validate(); err != nil {
		return Array{}, fmt.Errorf("invalid input: %w", err)
	}

	if _, err := client.k8s.GetDeploymentConfig(ctx, name); err != nil {
		return Array{}, err
	}

	pod, err := client.k8s.FindNewestPod(ctx, name, client.monitor.Config.PodRetries, client.monitor.Config.PollInterval)
	if err != nil {
		return Array{}, err
	}

	route, err := client.k8s.RouteInfoFor(ctx, name, pod)
	if err != nil {
		return Array{}, err
	}

	return client.serving.Predict(ctx, route, frame)
}

// rollback tears down a deployment that failed after submission and returns cause.
// It runs even if ctx was canceled, since that is usually why the deployment failed.
func (client Client) rollback(ctx context.Context, name string, cause error) error {
	logger := klog.FromContext(ctx).WithValues("deployment", name)
	logger.Info("rolling back deployment", "cause", cause.Error())

	if err := client.k8s.DeleteAll(context.WithoutCancel(ctx), name); err != nil {
		logger.Error(err, "rollback failed: resources may be left behind")
	}

	return cause
}
