// Package monitor watches a freshly submitted deployment until its model server answers,
// fails for good, or runs out of time.
package monitor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/klog/v2"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/internal/k8s"
)

const (
	DefaultInitialDelay   = 10 * time.Second
	DefaultPollInterval   = 10 * time.Second
	DefaultPodRetries     = 10
	DefaultTransientDelay = 1 * time.Second
	DefaultTimeout        = 15 * time.Minute
)

const (
	reasonImagePull  = "ImagePullBackOff"
	msgImageNotFound = "Image cannot be found"
	msgTerminated    = "The pod terminated, see the following logs"
)

// Observer reads the cluster state of a deployment. *k8s.Client implements it.
type Observer interface {
	NewestPodFor(ctx context.Context, name string) (*corev1.Pod, error)
	FindRoute(ctx context.Context, name string) (string, error)
	ContainerLogs(ctx context.Context, pod *corev1.Pod, substring string) (string, error)
}

// Prober performs a single request against the public endpoint of a deployment and returns the status code.
type Prober interface {
	Probe(ctx context.Context, route k8s.RouteInfo) (int, error)
}

type Config struct {
	InitialDelay   time.Duration
	PollInterval   time.Duration
	PodRetries     int
	TransientDelay time.Duration
	// Timeout bounds the whole wait. Zero disables it.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialDelay:   DefaultInitialDelay,
		PollInterval:   DefaultPollInterval,
		PodRetries:     DefaultPodRetries,
		TransientDelay: DefaultTransientDelay,
		Timeout:        DefaultTimeout,
	}
}

// WithDefaults fills every zero field from DefaultConfig.
func (config Config) WithDefaults() Config {
	defaults := DefaultConfig()
	return Config{
		InitialDelay:   cmp.Or(config.InitialDelay, defaults.InitialDelay),
		PollInterval:   cmp.Or(config.PollInterval, defaults.PollInterval),
		PodRetries:     cmp.Or(config.PodRetries, defaults.PodRetries),
		TransientDelay: cmp.Or(config.TransientDelay, defaults.TransientDelay),
		Timeout:        cmp.Or(config.Timeout, defaults.Timeout),
	}
}

type Monitor struct {
	Config   Config
	Clock    Clock
	Observer Observer
	Prober   Prober

	// OnTransition, when set, is called for every change of state.
	OnTransition func(Transition)
}

type run struct {
	Monitor
	name    string
	auth    k8s.BasicAuth
	state   State
	host    string
	start   time.Time
	retries int
}

// Wait blocks until the deployment is healthy, in which case it returns nil.
//
// The model server is considered healthy once a request to the root of its route is answered with 404,
// which is what the server replies when it is up since it only serves /invocations and /ping.
// A terminated container or an image that cannot be pulled results in a DeploymentError.
// Not finding a pod within the retry budget, or exceeding the overall timeout, results in a TimeoutError.
func (monitor Monitor) Wait(ctx context.Context, name string, auth k8s.BasicAuth) error {
	defer internal.DebugTimer(ctx, "waiting for "+name+" to become healthy")()

	if monitor.Clock == nil {
		monitor.Clock = RealClock
	}

	r := &run{
		Monitor: monitor,
		name:    name,
		auth:    auth,
		state:   WaitingForPod,
		start:   monitor.Clock.Now(),
		retries: monitor.Config.PodRetries,
	}

	if err := r.Clock.Sleep(ctx, r.Config.InitialDelay); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay, err := r.tick(ctx)
		if err != nil || r.state.Terminal() {
			return err
		}

		if err := r.Clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// tick performs a single observation and returns how long to wait before the next one.
func (r *run) tick(ctx context.Context) (time.Duration, error) {
	logger := klog.FromContext(ctx).WithValues("deployment", r.name)

	if elapsed := r.Clock.Now().Sub(r.start); r.Config.Timeout > 0 && elapsed >= r.Config.Timeout {
		last := r.state
		r.transition(TimedOut, nil)
		return 0, internal.TimeoutError{
			Name:    r.name,
			Elapsed: elapsed,
			Reason:  fmt.Sprintf("deployment did not become healthy (last state %s)", last),
		}
	}

	pod, err := r.Observer.NewestPodFor(ctx, r.name)
	if err != nil {
		return 0, fmt.Errorf("failed to look up pods: %w", err)
	}

	if pod == nil {
		if r.retries <= 0 {
			r.transition(TimedOut, nil)
			return 0, internal.TimeoutError{
				Name:    r.name,
				Elapsed: time.Duration(r.Config.PodRetries) * r.Config.PollInterval,
				Reason:  "no pod was found",
			}
		}
		r.retries--
		logger.V(1).Info("no pod yet", "retriesLeft", r.retries)
		return r.Config.PollInterval, nil
	}

	observation, err := k8s.ObserveContainer(pod, k8s.ContainerModelServing)
	if errors.Is(err, k8s.ErrIncompleteStatus) {
		logger.V(1).Info("pod status is incomplete", "pod", pod.Name)
		return r.Config.TransientDelay, nil
	}
	if err != nil {
		return 0, err
	}

	switch observation.State {
	case k8s.StateTerminated:
		r.transition(ContainerTerminated, &observation)

		logs, err := r.Observer.ContainerLogs(ctx, pod, k8s.ContainerModelServing)
		if err != nil {
			logs = fmt.Sprintf("(logs unavailable: %v)", err)
		}

		r.transition(Failed, &observation)
		return 0, internal.DeploymentError{Name: r.name, Reason: msgTerminated, Detail: logs}

	case k8s.StateWaiting:
		if strings.Contains(observation.Reason, reasonImagePull) {
			r.transition(Failed, &observation)
			return 0, internal.DeploymentError{Name: r.name, Reason: msgImageNotFound, Detail: observation.Message}
		}
		r.transition(ContainerWaiting, &observation)
		return r.Config.PollInterval, nil

	default:
		r.transition(ContainerRunning, &observation)

		if r.host == "" {
			host, err := r.Observer.FindRoute(ctx, r.name)
			if err != nil {
				logger.V(1).Info("route is not available yet", "error", err.Error())
				return r.Config.PollInterval, nil
			}
			r.host = host
		}

		code, err := r.Prober.Probe(ctx, k8s.RouteInfo{Host: r.host, Auth: r.auth})
		if err != nil {
			logger.V(1).Info("probe failed", "host", r.host, "error", err.Error())
			return r.Config.PollInterval, nil
		}
		if code == http.StatusNotFound {
			r.transition(Healthy, &observation)
			return 0, nil
		}

		logger.V(1).Info("model server is not ready", "host", r.host, "status", code)
		return r.Config.PollInterval, nil
	}
}

func (r *run) transition(to State, observation *k8s.ContainerObservation) {
	if r.state == to {
		return
	}

	from := r.state
	r.state = to

	if r.OnTransition != nil {
		r.OnTransition(Transition{From: from, To: to, Observation: observation})
	}
}
