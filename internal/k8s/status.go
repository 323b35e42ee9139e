package k8s

import (
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/davidmdm/mlflow-openshift/internal"
)

type ContainerState string

const (
	StateWaiting    ContainerState = "waiting"
	StateRunning    ContainerState = "running"
	StateTerminated ContainerState = "terminated"
)

// ContainerObservation is a snapshot of one container of a pod at the time it was read.
type ContainerObservation struct {
	Pod       string
	StartedAt time.Time
	Container string
	State     ContainerState
	Reason    string
	Message   string
}

// ErrIncompleteStatus is returned when a pod has been scheduled but does not report the
// status of the requested container yet.
var ErrIncompleteStatus = errors.New("container status is not available yet")

func ObserveContainer(pod *corev1.Pod, container string) (ContainerObservation, error) {
	status, ok := internal.Find(pod.Status.ContainerStatuses, func(status corev1.ContainerStatus) bool {
		return status.Name == container
	})
	if !ok {
		return ContainerObservation{}, fmt.Errorf("pod %s: container %s: %w", pod.Name, container, ErrIncompleteStatus)
	}

	observation := ContainerObservation{
		Pod:       pod.Name,
		Container: container,
	}
	if pod.Status.StartTime != nil {
		observation.StartedAt = pod.Status.StartTime.Time
	}

	switch state := status.State; {
	case state.Terminated != nil:
		observation.State = StateTerminated
		observation.Reason = state.Terminated.Reason
		observation.Message = state.Terminated.Message
	case state.Waiting != nil:
		observation.State = StateWaiting
		observation.Reason = state.Waiting.Reason
		observation.Message = state.Waiting.Message
	case state.Running != nil:
		observation.State = StateRunning
	default:
		return ContainerObservation{}, fmt.Errorf("pod %s: container %s: %w", pod.Name, container, ErrIncompleteStatus)
	}

	return observation, nil
}

// RolloutComplete reports whether the latest rollout of a deployment config is available with all its replicas ready.
func RolloutComplete(dc *unstructured.Unstructured) bool {
	return meetsConditions(dc, "Available") && equalInts(dc, "replicas", "availableReplicas", "readyReplicas", "updatedReplicas")
}

func meetsConditions(resource *unstructured.Unstructured, keys ...string) bool {
	conditions, _, _ := unstructured.NestedSlice(resource.Object, "status", "conditions")

	trueConditions := map[string]bool{}
	for _, condition := range conditions {
		values, _ := condition.(map[string]any)
		cond, _ := values["type"].(string)
		if cond == "" {
			continue
		}
		trueConditions[cond] = values["status"] == "True"
	}

	for _, key := range keys {
		if !trueConditions[key] {
			return false
		}
	}

	return true
}

func equalInts(resource *unstructured.Unstructured, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}

	values := []int64{}
	for _, key := range keys {
		value, _, _ := unstructured.NestedInt64(resource.Object, "status", key)
		values = append(values, value)
	}

	wanted := values[0]
	for _, value := range values[1:] {
		if value != wanted {
			return false
		}
	}

	return true
}

func fromUnstructured(obj map[string]any, target any) error {
	return runtime.DefaultUnstructuredConverter.FromUnstructured(obj, target)
}
