package k8s

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/davidmdm/mlflow-openshift/internal"
)

const (
	ContainerAuthProxy    = "auth-proxy"
	ContainerModelServing = "model-serving"

	EnvBasicAuthUsername = "BASIC_AUTH_USERNAME"
	EnvBasicAuthPassword = "BASIC_AUTH_PASSWORD"
)

type BasicAuth struct {
	Username string
	Password string
}

// RouteInfo is everything needed to reach a deployment from outside the cluster.
type RouteInfo struct {
	Host string
	Auth BasicAuth
}

func (client Client) FindPods(ctx context.Context, name string) ([]corev1.Pod, error) {
	list, err := client.clientset.CoreV1().Pods(client.namespace).List(ctx, metav1.ListOptions{LabelSelector: AppSelector(name)})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	return list.Items, nil
}

// NewestPod returns the pod with the latest start time, or nil if pods is empty.
// A pod only replaces the current candidate when it started strictly later, so ties keep the first pod seen.
// Pods that have not started yet never win over a pod that has.
func NewestPod(pods []corev1.Pod) *corev1.Pod {
	var newest *corev1.Pod
	for i := range pods {
		pod := &pods[i]
		if newest == nil {
			newest = pod
			continue
		}
		if pod.Status.StartTime == nil {
			continue
		}
		if newest.Status.StartTime == nil || pod.Status.StartTime.After(newest.Status.StartTime.Time) {
			newest = pod
		}
	}
	return newest
}

// NewestPodFor looks up the pods of the deployment and returns the newest one, or nil when there are none yet.
func (client Client) NewestPodFor(ctx context.Context, name string) (*corev1.Pod, error) {
	pods, err := client.FindPods(ctx, name)
	if err != nil {
		return nil, err
	}
	return NewestPod(pods), nil
}

// FindNewestPod polls for the pods of the deployment until one exists or the retry budget runs out.
// The lookup runs retries+1 times, interval apart.
func (client Client) FindNewestPod(ctx context.Context, name string, retries int, interval time.Duration) (*corev1.Pod, error) {
	backoff := wait.Backoff{
		Duration: interval,
		Factor:   1,
		Steps:    max(retries, 0) + 1,
	}

	var pod *corev1.Pod
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		newest, err := client.NewestPodFor(ctx, name)
		if err != nil {
			return false, err
		}
		pod = newest
		return pod != nil, nil
	})

	switch {
	case err == nil:
		return pod, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case wait.Interrupted(err):
		return nil, internal.TimeoutError{
			Name:    name,
			Elapsed: time.Duration(retries) * interval,
			Reason:  "no pod was found",
		}
	default:
		return nil, err
	}
}

// FindRoute returns the host of the route labelled with the deployment name.
func (client Client) FindRoute(ctx context.Context, name string) (string, error) {
	list, err := client.dynamic.
		Resource(Routes).
		Namespace(client.namespace).
		List(ctx, metav1.ListOptions{LabelSelector: AppSelector(name)})
	if err != nil {
		return "", fmt.Errorf("failed to list routes: %w", err)
	}

	for _, route := range list.Items {
		if host, _, _ := unstructured.NestedString(route.Object, "spec", "host"); host != "" {
			return host, nil
		}
	}

	return "", internal.NotFoundError{Kind: "route", Name: name}
}

// AuthFromPodSpec reads the basic auth credentials the proxy container was started with.
func AuthFromPodSpec(spec corev1.PodSpec) (BasicAuth, bool) {
	container, ok := internal.Find(spec.Containers, func(container corev1.Container) bool {
		return container.Name == ContainerAuthProxy
	})
	if !ok {
		return BasicAuth{}, false
	}

	var auth BasicAuth
	for _, env := range container.Env {
		switch env.Name {
		case EnvBasicAuthUsername:
			auth.Username = env.Value
		case EnvBasicAuthPassword:
			auth.Password = env.Value
		}
	}

	return auth, auth.Username != "" || auth.Password != ""
}

// AuthFromDeploymentConfig reads the proxy credentials from the pod template of a deployment config.
func AuthFromDeploymentConfig(dc *unstructured.Unstructured) (BasicAuth, error) {
	raw, _, err := unstructured.NestedMap(dc.Object, "spec", "template", "spec")
	if err != nil {
		return BasicAuth{}, fmt.Errorf("invalid pod template: %w", err)
	}

	var spec corev1.PodSpec
	if err := fromUnstructured(raw, &spec); err != nil {
		return BasicAuth{}, fmt.Errorf("invalid pod template: %w", err)
	}

	auth, ok := AuthFromPodSpec(spec)
	if !ok {
		return BasicAuth{}, internal.NotFoundError{Kind: "basic auth credentials", Name: dc.GetName()}
	}

	return auth, nil
}

// RouteInfoFor resolves the public host of the deployment and the credentials of its newest pod.
func (client Client) RouteInfoFor(ctx context.Context, name string, pod *corev1.Pod) (RouteInfo, error) {
	host, err := client.FindRoute(ctx, name)
	if err != nil {
		return RouteInfo{}, err
	}

	auth, ok := AuthFromPodSpec(pod.Spec)
	if !ok {
		return RouteInfo{}, internal.NotFoundError{Kind: "basic auth credentials", Name: name}
	}

	return RouteInfo{Host: host, Auth: auth}, nil
}

// ContainerLogs concatenates the logs of every container of the pod whose name contains substring.
func (client Client) ContainerLogs(ctx context.Context, pod *corev1.Pod, substring string) (string, error) {
	var builder strings.Builder
	containers := internal.Filter(pod.Spec.Containers, func(container corev1.Container) bool {
		return strings.Contains(container.Name, substring)
	})

	for _, container := range containers {
		stream, err := client.clientset.CoreV1().
			Pods(pod.Namespace).
			GetLogs(pod.Name, &corev1.PodLogOptions{Container: container.Name}).
			Stream(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get logs of container %s: %w", container.Name, err)
		}

		_, err = io.Copy(&builder, stream)
		stream.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read logs of container %s: %w", container.Name, err)
		}
	}

	return builder.String(), nil
}
