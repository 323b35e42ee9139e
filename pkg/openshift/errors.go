package openshift

import "github.com/davidmdm/mlflow-openshift/internal"

type (
	ConfigError     = internal.ConfigError
	TimeoutError    = internal.TimeoutError
	DeploymentError = internal.DeploymentError
	NotFoundError   = internal.NotFoundError
)

var IsWarning = internal.IsWarning
