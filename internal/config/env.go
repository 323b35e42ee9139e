package config

import (
	"os"

	"github.com/davidmdm/conf"

	"github.com/davidmdm/mlflow-openshift/internal"
)

const (
	EnvS3EndpointURL    = "MLFLOW_S3_ENDPOINT_URL"
	EnvAccessKeyID      = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey  = "AWS_SECRET_ACCESS_KEY"
	EnvTrackingURI      = "MLFLOW_TRACKING_URI"
	EnvTrackingUsername = "MLFLOW_TRACKING_USERNAME"
	EnvTrackingPassword = "MLFLOW_TRACKING_PASSWORD"
)

// Environment holds the process level secrets a deployment forwards to its serving container.
// It is loaded once at startup and passed by value to whoever needs it.
type Environment struct {
	S3EndpointURL    string
	AccessKeyID      string
	SecretAccessKey  string
	TrackingURI      string
	TrackingUsername string
	TrackingPassword string
}

// LoadEnvironment reads the environment through lookup. Absent variables are left empty;
// whether they are required depends on the operation and is checked by Validate.
func LoadEnvironment(lookup func(string) (string, bool)) (env Environment, err error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	parser := conf.MakeParser(lookup)

	conf.Var(parser, &env.S3EndpointURL, EnvS3EndpointURL)
	conf.Var(parser, &env.AccessKeyID, EnvAccessKeyID)
	conf.Var(parser, &env.SecretAccessKey, EnvSecretAccessKey)
	conf.Var(parser, &env.TrackingURI, EnvTrackingURI)
	conf.Var(parser, &env.TrackingUsername, EnvTrackingUsername)
	conf.Var(parser, &env.TrackingPassword, EnvTrackingPassword)

	err = parser.Parse()
	return
}

// Validate reports the first required variable that is not set.
func (env Environment) Validate() error {
	required := []struct {
		Name  string
		Value string
	}{
		{EnvS3EndpointURL, env.S3EndpointURL},
		{EnvAccessKeyID, env.AccessKeyID},
		{EnvSecretAccessKey, env.SecretAccessKey},
	}
	for _, variable := range required {
		if variable.Value == "" {
			return internal.ConfigErrorf("required environment variable %s is not set", variable.Name)
		}
	}
	return nil
}
