package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/davidmdm/mlflow-openshift/internal/config"
	"github.com/davidmdm/mlflow-openshift/internal/home"
	"github.com/davidmdm/mlflow-openshift/pkg/openshift"
)

type GlobalSettings struct {
	KubeConfigPath string
	Namespace      string
	Insecure       bool
}

func RegisterGlobalFlags(flagset *flag.FlagSet, settings *GlobalSettings) {
	flagset.StringVar(&settings.KubeConfigPath, "kubeconfig", cmp.Or(settings.KubeConfigPath, home.Kubeconfig), "path to kube config")
	flagset.StringVar(&settings.Namespace, "namespace", settings.Namespace, "namespace (openshift project) of deployments. Defaults to the namespace of the current context")
	flagset.BoolVar(&settings.Insecure, "insecure", settings.Insecure, "skip verification of route certificates")
}

func NewClient(ctx context.Context, settings GlobalSettings) (*openshift.Client, error) {
	env, err := config.LoadEnvironment(os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	logger := klog.FromContext(ctx)

	return openshift.FromKubeConfig(settings.KubeConfigPath, settings.Namespace, openshift.Options{
		Environment: env,
		Insecure:    settings.Insecure,
		OnTransition: func(transition openshift.Transition) {
			values := []any{"from", transition.From.String(), "to", transition.To.String()}
			if obs := transition.Observation; obs != nil {
				values = append(values, "pod", obs.Pod, "container", obs.State, "reason", obs.Reason)
			}
			logger.Info("deployment state changed", values...)
		},
	})
}
