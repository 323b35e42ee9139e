package k8s

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestObserveContainer(t *testing.T) {
	withStatus := func(statuses ...corev1.ContainerStatus) *corev1.Pod {
		result := pod("demo-1-abc", "demo", nil)
		result.Status.ContainerStatuses = statuses
		return result
	}

	cases := []struct {
		Name     string
		Pod      *corev1.Pod
		Expected ContainerObservation
		Error    error
	}{
		{
			Name:  "no statuses",
			Pod:   withStatus(),
			Error: ErrIncompleteStatus,
		},
		{
			Name:  "empty state",
			Pod:   withStatus(corev1.ContainerStatus{Name: ContainerModelServing}),
			Error: ErrIncompleteStatus,
		},
		{
			Name: "other containers are ignored",
			Pod: withStatus(
				corev1.ContainerStatus{Name: ContainerAuthProxy, State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{}}},
				corev1.ContainerStatus{Name: ContainerModelServing, State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}},
			),
			Expected: ContainerObservation{Pod: "demo-1-abc", Container: ContainerModelServing, State: StateRunning},
		},
		{
			Name: "waiting",
			Pod: withStatus(corev1.ContainerStatus{
				Name:  ContainerModelServing,
				State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "ImagePullBackOff", Message: "pull failed"}},
			}),
			Expected: ContainerObservation{
				Pod:       "demo-1-abc",
				Container: ContainerModelServing,
				State:     StateWaiting,
				Reason:    "ImagePullBackOff",
				Message:   "pull failed",
			},
		},
		{
			Name: "terminated",
			Pod: withStatus(corev1.ContainerStatus{
				Name:  ContainerModelServing,
				State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{Reason: "Error"}},
			}),
			Expected: ContainerObservation{Pod: "demo-1-abc", Container: ContainerModelServing, State: StateTerminated, Reason: "Error"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			observation, err := ObserveContainer(tc.Pod, ContainerModelServing)
			if tc.Error != nil {
				require.True(t, errors.Is(err, tc.Error))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.Expected, observation)
		})
	}
}

func TestRolloutComplete(t *testing.T) {
	dc := labelled("apps.openshift.io/v1", "DeploymentConfig", "demo", "demo")
	require.False(t, RolloutComplete(dc))

	require.NoError(t, unstructured.SetNestedField(dc.Object, map[string]any{
		"replicas":          int64(1),
		"availableReplicas": int64(1),
		"readyReplicas":     int64(1),
		"updatedReplicas":   int64(1),
		"conditions": []any{
			map[string]any{"type": "Available", "status": "True"},
		},
	}, "status"))
	require.True(t, RolloutComplete(dc))

	require.NoError(t, unstructured.SetNestedField(dc.Object, int64(0), "status", "readyReplicas"))
	require.False(t, RolloutComplete(dc))
}
