package config

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/davidmdm/mlflow-openshift/internal"
)

const (
	KeyImage           = "image"
	KeyDockerRegistry  = "docker_registry"
	KeyTag             = "tag"
	KeyGunicornWorkers = "gunicorn_workers"
	KeyCPURequest      = "cpu_request"
	KeyCPULimit        = "cpu_limit"
	KeyMemRequest      = "mem_request"
	KeyMemLimit        = "mem_limit"
	KeyAuthUser        = "auth_user"
	KeyAuthPassword    = "auth_password"
	KeyRouteHost       = "route_host"
)

const (
	DefaultGunicornWorkers = 1
	DefaultCPURequest      = "100m"
	DefaultCPULimit        = "1"
	DefaultMemRequest      = "256Mi"
	DefaultMemLimit        = "512Mi"
)

// ImageKeys must always be provided together.
var ImageKeys = []string{KeyImage, KeyDockerRegistry, KeyTag}

var knownKeys = []string{
	KeyImage,
	KeyDockerRegistry,
	KeyTag,
	KeyGunicornWorkers,
	KeyCPURequest,
	KeyCPULimit,
	KeyMemRequest,
	KeyMemLimit,
	KeyAuthUser,
	KeyAuthPassword,
	KeyRouteHost,
}

type Image struct {
	Registry string
	Name     string
	Tag      string
}

func (image Image) String() string {
	return image.Registry + "/" + image.Name + ":" + image.Tag
}

type Resources struct {
	CPURequest resource.Quantity
	CPULimit   resource.Quantity
	MemRequest resource.Quantity
	MemLimit   resource.Quantity
}

type BasicAuth struct {
	Username string
	Password string
}

// Deployment is a fully populated and validated deployment configuration.
// It is produced by Build and never mutated afterwards.
type Deployment struct {
	Image           Image
	GunicornWorkers int
	Resources       Resources
	Auth            BasicAuth
	RouteHost       string
	Env             Environment
}

// Build validates the raw key/value configuration and produces a Deployment.
//
// Basic auth credentials come from auth_user and auth_password. Each one that is absent falls back
// to the tracking server credentials of the environment. A deployment without credentials is rejected.
func Build(raw map[string]string, env Environment) (Deployment, error) {
	if err := ValidateImage(raw); err != nil {
		return Deployment{}, err
	}

	if err := env.Validate(); err != nil {
		return Deployment{}, err
	}

	var unknown []string
	for key := range raw {
		if !slices.Contains(knownKeys, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return Deployment{}, internal.ConfigErrorf("unknown config item(s): %s", strings.Join(unknown, ", "))
	}

	workers := DefaultGunicornWorkers
	if value, ok := raw[KeyGunicornWorkers]; ok {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 {
			return Deployment{}, internal.ConfigErrorf("%s must be a positive integer: got %q", KeyGunicornWorkers, value)
		}
		workers = parsed
	}

	quantity := func(key, fallback string) (resource.Quantity, error) {
		value := cmp.Or(raw[key], fallback)
		result, err := resource.ParseQuantity(value)
		if err != nil {
			return resource.Quantity{}, internal.ConfigErrorf("%s: %q is not a valid quantity", key, value)
		}
		return result, nil
	}

	var (
		resources Resources
		err       error
	)
	if resources.CPURequest, err = quantity(KeyCPURequest, DefaultCPURequest); err != nil {
		return Deployment{}, err
	}
	if resources.CPULimit, err = quantity(KeyCPULimit, DefaultCPULimit); err != nil {
		return Deployment{}, err
	}
	if resources.MemRequest, err = quantity(KeyMemRequest, DefaultMemRequest); err != nil {
		return Deployment{}, err
	}
	if resources.MemLimit, err = quantity(KeyMemLimit, DefaultMemLimit); err != nil {
		return Deployment{}, err
	}

	if resources.CPURequest.Cmp(resources.CPULimit) > 0 {
		return Deployment{}, internal.ConfigErrorf("%s must not exceed %s", KeyCPURequest, KeyCPULimit)
	}
	if resources.MemRequest.Cmp(resources.MemLimit) > 0 {
		return Deployment{}, internal.ConfigErrorf("%s must not exceed %s", KeyMemRequest, KeyMemLimit)
	}

	auth := BasicAuth{
		Username: cmp.Or(raw[KeyAuthUser], env.TrackingUsername),
		Password: cmp.Or(raw[KeyAuthPassword], env.TrackingPassword),
	}
	if auth.Username == "" {
		return Deployment{}, internal.ConfigErrorf("%s is required when %s is not set", KeyAuthUser, EnvTrackingUsername)
	}
	if auth.Password == "" {
		return Deployment{}, internal.ConfigErrorf("%s is required when %s is not set", KeyAuthPassword, EnvTrackingPassword)
	}

	return Deployment{
		Image:           ImageFrom(raw),
		GunicornWorkers: workers,
		Resources:       resources,
		Auth:            auth,
		RouteHost:       raw[KeyRouteHost],
		Env:             env,
	}, nil
}

// ValidateImage checks that image, docker_registry and tag are all present and non empty.
func ValidateImage(raw map[string]string) error {
	var missing []string
	for _, key := range ImageKeys {
		if raw[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return internal.ConfigErrorf(
			"not all mandatory config items (%s) are provided: missing %s",
			strings.Join(ImageKeys, ", "),
			strings.Join(missing, ", "),
		)
	}
	return nil
}

// ImageFrom returns the image described by raw. It assumes ValidateImage succeeded.
func ImageFrom(raw map[string]string) Image {
	return Image{
		Registry: raw[KeyDockerRegistry],
		Name:     raw[KeyImage],
		Tag:      raw[KeyTag],
	}
}

// Parameters returns the template parameters for the deployment, keyed by their upper cased names.
func (deployment Deployment) Parameters(name, modelURI string) map[string]string {
	return map[string]string{
		"NAME":                   name,
		"MODEL_URI":              modelURI,
		"IMAGE":                  deployment.Image.Name,
		"DOCKER_REGISTRY":        deployment.Image.Registry,
		"TAGVERSION":             deployment.Image.Tag,
		"GUNICORN_WORKERS":       strconv.Itoa(deployment.GunicornWorkers),
		"CPU_REQUEST":            deployment.Resources.CPURequest.String(),
		"CPU_LIMIT":              deployment.Resources.CPULimit.String(),
		"MEM_REQUEST":            deployment.Resources.MemRequest.String(),
		"MEM_LIMIT":              deployment.Resources.MemLimit.String(),
		"BASIC_AUTH_USERNAME":    deployment.Auth.Username,
		"BASIC_AUTH_PASSWORD":    deployment.Auth.Password,
		"MLFLOW_S3_ENDPOINT_URL": deployment.Env.S3EndpointURL,
		"AWS_ACCESS_KEY_ID":      deployment.Env.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY":  deployment.Env.SecretAccessKey,
		"MLFLOW_TRACKING_URI":    deployment.Env.TrackingURI,
		"ROUTE_HOST":             deployment.RouteHost,
	}
}
