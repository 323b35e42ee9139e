package monitor

import (
	"github.com/davidmdm/mlflow-openshift/internal/k8s"
)

type State int

const (
	WaitingForPod State = iota
	ContainerWaiting
	ContainerRunning
	ContainerTerminated
	Healthy
	Failed
	TimedOut
)

func (state State) String() string {
	switch state {
	case WaitingForPod:
		return "WaitingForPod"
	case ContainerWaiting:
		return "ContainerWaiting"
	case ContainerRunning:
		return "ContainerRunning"
	case ContainerTerminated:
		return "ContainerTerminated"
	case Healthy:
		return "Healthy"
	case Failed:
		return "Failed"
	case TimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the monitor stops once it reaches the state.
func (state State) Terminal() bool {
	return state == Healthy || state == Failed || state == TimedOut
}

// Transition describes a change of state. Observation is the container snapshot that caused it,
// and is nil when no container was involved.
type Transition struct {
	From        State
	To          State
	Observation *k8s.ContainerObservation
}
