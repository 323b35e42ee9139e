package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidmdm/mlflow-openshift/internal"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

var fullEnv = map[string]string{
	EnvS3EndpointURL:    "https://s3.local",
	EnvAccessKeyID:      "key-id",
	EnvSecretAccessKey:  "secret",
	EnvTrackingURI:      "https://mlflow.local",
	EnvTrackingUsername: "tracker",
	EnvTrackingPassword: "tracker-pass",
}

func TestLoadEnvironment(t *testing.T) {
	env, err := LoadEnvironment(lookupFrom(fullEnv))
	require.NoError(t, err)
	require.Equal(
		t,
		Environment{
			S3EndpointURL:    "https://s3.local",
			AccessKeyID:      "key-id",
			SecretAccessKey:  "secret",
			TrackingURI:      "https://mlflow.local",
			TrackingUsername: "tracker",
			TrackingPassword: "tracker-pass",
		},
		env,
	)

	env, err = LoadEnvironment(lookupFrom(nil))
	require.NoError(t, err)
	require.Equal(t, Environment{}, env)
}

func TestEnvironmentValidateReportsFirstMissing(t *testing.T) {
	cases := []struct {
		Name    string
		Env     Environment
		Missing string
	}{
		{
			Name:    "nothing set",
			Env:     Environment{},
			Missing: EnvS3EndpointURL,
		},
		{
			Name:    "access key missing",
			Env:     Environment{S3EndpointURL: "x"},
			Missing: EnvAccessKeyID,
		},
		{
			Name:    "secret missing",
			Env:     Environment{S3EndpointURL: "x", AccessKeyID: "y"},
			Missing: EnvSecretAccessKey,
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			err := tc.Env.Validate()
			require.EqualError(t, err, "invalid config: required environment variable "+tc.Missing+" is not set")

			var configErr internal.ConfigError
			require.True(t, errors.As(err, &configErr))
		})
	}

	require.NoError(t, Environment{S3EndpointURL: "x", AccessKeyID: "y", SecretAccessKey: "z"}.Validate())
}

func TestBuild(t *testing.T) {
	env, err := LoadEnvironment(lookupFrom(fullEnv))
	require.NoError(t, err)

	cases := []struct {
		Name  string
		Raw   map[string]string
		Env   *Environment
		Check func(t *testing.T, deployment Deployment)
		Error string
	}{
		{
			Name:  "missing tag",
			Raw:   map[string]string{KeyImage: "img", KeyDockerRegistry: "reg"},
			Error: "invalid config: not all mandatory config items (image, docker_registry, tag) are provided: missing tag",
		},
		{
			Name:  "missing everything",
			Raw:   map[string]string{},
			Error: "invalid config: not all mandatory config items (image, docker_registry, tag) are provided: missing image, docker_registry, tag",
		},
		{
			Name:  "missing environment",
			Raw:   map[string]string{KeyImage: "img", KeyDockerRegistry: "reg", KeyTag: "t"},
			Env:   &Environment{S3EndpointURL: "s3"},
			Error: "invalid config: required environment variable AWS_ACCESS_KEY_ID is not set",
		},
		{
			Name:  "unknown keys",
			Raw:   map[string]string{KeyImage: "img", KeyDockerRegistry: "reg", KeyTag: "t", "zeta": "1", "alpha": "2"},
			Error: "invalid config: unknown config item(s): alpha, zeta",
		},
		{
			Name:  "bad workers",
			Raw:   map[string]string{KeyImage: "img", KeyDockerRegistry: "reg", KeyTag: "t", KeyGunicornWorkers: "0"},
			Error: `invalid config: gunicorn_workers must be a positive integer: got "0"`,
		},
		{
			Name:  "bad quantity",
			Raw:   map[string]string{KeyImage: "img", KeyDockerRegistry: "reg", KeyTag: "t", KeyMemLimit: "lots"},
			Error: `invalid config: mem_limit: "lots" is not a valid quantity`,
		},
		{
			Name:  "request above limit",
			Raw:   map[string]string{KeyImage: "img", KeyDockerRegistry: "reg", KeyTag: "t", KeyCPURequest: "2"},
			Error: "invalid config: cpu_request must not exceed cpu_limit",
		},
		{
			Name:  "no credentials anywhere",
			Raw:   map[string]string{KeyImage: "img", KeyDockerRegistry: "reg", KeyTag: "t"},
			Env:   &Environment{S3EndpointURL: "s3", AccessKeyID: "id", SecretAccessKey: "secret"},
			Error: "invalid config: auth_user is required when MLFLOW_TRACKING_USERNAME is not set",
		},
		{
			Name: "defaults with tracking credentials",
			Raw:  map[string]string{KeyImage: "img", KeyDockerRegistry: "reg", KeyTag: "t"},
			Check: func(t *testing.T, deployment Deployment) {
				require.Equal(t, "reg/img:t", deployment.Image.String())
				require.Equal(t, 1, deployment.GunicornWorkers)
				require.Equal(t, "100m", deployment.Resources.CPURequest.String())
				require.Equal(t, "1", deployment.Resources.CPULimit.String())
				require.Equal(t, "256Mi", deployment.Resources.MemRequest.String())
				require.Equal(t, "512Mi", deployment.Resources.MemLimit.String())
				require.Equal(t, BasicAuth{Username: "tracker", Password: "tracker-pass"}, deployment.Auth)
			},
		},
		{
			Name: "explicit values win",
			Raw: map[string]string{
				KeyImage:           "img",
				KeyDockerRegistry:  "reg",
				KeyTag:             "t",
				KeyGunicornWorkers: "4",
				KeyCPULimit:        "2",
				KeyAuthUser:        "alice",
				KeyRouteHost:       "model.apps.local",
			},
			Check: func(t *testing.T, deployment Deployment) {
				require.Equal(t, 4, deployment.GunicornWorkers)
				require.Equal(t, "2", deployment.Resources.CPULimit.String())
				require.Equal(t, BasicAuth{Username: "alice", Password: "tracker-pass"}, deployment.Auth)
				require.Equal(t, "model.apps.local", deployment.RouteHost)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			environment := env
			if tc.Env != nil {
				environment = *tc.Env
			}

			deployment, err := Build(tc.Raw, environment)
			if tc.Error != "" {
				require.EqualError(t, err, tc.Error)

				var configErr internal.ConfigError
				require.ErrorAs(t, err, &configErr)
				return
			}

			require.NoError(t, err)
			tc.Check(t, deployment)
		})
	}
}

func TestParameters(t *testing.T) {
	env, err := LoadEnvironment(lookupFrom(fullEnv))
	require.NoError(t, err)

	deployment, err := Build(map[string]string{KeyImage: "img", KeyDockerRegistry: "reg", KeyTag: "t"}, env)
	require.NoError(t, err)

	require.Equal(
		t,
		map[string]string{
			"NAME":                   "demo",
			"MODEL_URI":              "s3://bucket/model",
			"IMAGE":                  "img",
			"DOCKER_REGISTRY":        "reg",
			"TAGVERSION":             "t",
			"GUNICORN_WORKERS":       "1",
			"CPU_REQUEST":            "100m",
			"CPU_LIMIT":              "1",
			"MEM_REQUEST":            "256Mi",
			"MEM_LIMIT":              "512Mi",
			"BASIC_AUTH_USERNAME":    "tracker",
			"BASIC_AUTH_PASSWORD":    "tracker-pass",
			"MLFLOW_S3_ENDPOINT_URL": "https://s3.local",
			"AWS_ACCESS_KEY_ID":      "key-id",
			"AWS_SECRET_ACCESS_KEY":  "secret",
			"MLFLOW_TRACKING_URI":    "https://mlflow.local",
			"ROUTE_HOST":             "",
		},
		deployment.Parameters("demo", "s3://bucket/model"),
	)
}
