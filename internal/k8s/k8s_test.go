package k8s

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8stesting "k8s.io/client-go/testing"

	"github.com/davidmdm/mlflow-openshift/internal"
)

const testNamespace = "models"

func labelled(apiVersion, kind, name, app string) *unstructured.Unstructured {
	resource := &unstructured.Unstructured{
		Object: map[string]any{
			"apiVersion": apiVersion,
			"kind":       kind,
			"metadata": map[string]any{
				"name":      name,
				"namespace": testNamespace,
				"labels": map[string]any{
					"app":      app,
					"template": "mlflow",
				},
			},
		},
	}
	return resource
}

func pod(name, app string, started *time.Time, containers ...corev1.Container) *corev1.Pod {
	result := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: testNamespace,
			Labels:    map[string]string{"app": app},
		},
		Spec: corev1.PodSpec{Containers: containers},
	}
	if started != nil {
		result.Status.StartTime = &metav1.Time{Time: *started}
	}
	return result
}

func TestApplyResources(t *testing.T) {
	client := NewFakeClient(testNamespace)
	ctx := context.Background()

	service := labelled("v1", "Service", "demo", "demo")
	require.NoError(t, unstructured.SetNestedField(service.Object, "ClusterIP", "spec", "type"))

	route := labelled("route.openshift.io/v1", "Route", "demo", "demo")
	require.NoError(t, unstructured.SetNestedField(route.Object, "demo.apps.local", "spec", "host"))

	require.NoError(t, client.ApplyResources(ctx, []*unstructured.Unstructured{service, route}, ApplyResourcesOpts{SkipDryRun: true}))

	host, err := client.FindRoute(ctx, "demo")
	require.NoError(t, err)
	require.Equal(t, "demo.apps.local", host)

	updated := labelled("route.openshift.io/v1", "Route", "demo", "demo")
	require.NoError(t, unstructured.SetNestedField(updated.Object, "other.apps.local", "spec", "host"))

	require.NoError(t, client.ApplyResources(ctx, []*unstructured.Unstructured{updated}, ApplyResourcesOpts{SkipDryRun: true}))

	host, err = client.FindRoute(ctx, "demo")
	require.NoError(t, err)
	require.Equal(t, "other.apps.local", host)
}

func TestApplyResourcesUnknownKind(t *testing.T) {
	client := NewFakeClient(testNamespace)

	err := client.ApplyResources(
		context.Background(),
		[]*unstructured.Unstructured{labelled("example.com/v1", "Widget", "demo", "demo")},
		ApplyResourcesOpts{SkipDryRun: true},
	)
	require.ErrorContains(t, err, "failed to resolve resource")
}

func TestDeleteAll(t *testing.T) {
	client := NewFakeClient(
		testNamespace,
		labelled("apps.openshift.io/v1", "DeploymentConfig", "demo", "demo"),
		labelled("v1", "Service", "demo", "demo"),
		labelled("route.openshift.io/v1", "Route", "demo", "demo"),
		labelled("v1", "ConfigMap", "demo-extra", "demo"),
		labelled("v1", "Secret", "demo-extra", "demo"),
		labelled("v1", "Service", "other", "other"),
		pod("demo-1-abc", "demo", nil),
		pod("other-1-abc", "other", nil),
	)
	ctx := context.Background()

	require.NoError(t, client.DeleteAll(ctx, "demo"))
	require.NoError(t, client.DeleteAll(ctx, "demo"))

	for _, gvr := range append(slices.Clone(Owned), ConfigMaps, Secrets) {
		list, err := client.Dynamic.Resource(gvr).Namespace(testNamespace).List(ctx, metav1.ListOptions{LabelSelector: AppSelector("demo")})
		require.NoError(t, err)
		require.Empty(t, list.Items, gvr.Resource)
	}

	pods, err := client.FindPods(ctx, "demo")
	require.NoError(t, err)
	require.Empty(t, pods)

	others, err := client.Dynamic.Resource(Services).Namespace(testNamespace).List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, others.Items, 1)
	require.Equal(t, "other", others.Items[0].GetName())

	pods, err = client.FindPods(ctx, "other")
	require.NoError(t, err)
	require.Len(t, pods, 1)
}

func TestDeletableResources(t *testing.T) {
	client := NewFakeClient(testNamespace)

	gvrs, err := client.DeletableResources()
	require.NoError(t, err)

	require.Equal(t, Owned, gvrs[:len(Owned)])
	require.ElementsMatch(t, append(slices.Clone(Owned), ConfigMaps, Secrets), gvrs)
	require.NotContains(t, gvrs, Pods)
}

func TestDeleteAllDiscoveryFailure(t *testing.T) {
	client := NewFakeClient(
		testNamespace,
		labelled("apps.openshift.io/v1", "DeploymentConfig", "demo", "demo"),
		labelled("v1", "ConfigMap", "demo-extra", "demo"),
	)
	client.Clientset.PrependReactor("get", "group", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("discovery unavailable")
	})

	gvrs, err := client.DeletableResources()
	require.ErrorContains(t, err, "discovery unavailable")
	require.Equal(t, Owned, gvrs)

	ctx := context.Background()
	require.ErrorContains(t, client.DeleteAll(ctx, "demo"), "discovery unavailable")

	_, err = client.GetDeploymentConfig(ctx, "demo")
	require.True(t, internal.IsNotFound(err))

	remaining := func(gvr schema.GroupVersionResource) int {
		list, err := client.Dynamic.Resource(gvr).Namespace(testNamespace).List(ctx, metav1.ListOptions{})
		require.NoError(t, err)
		return len(list.Items)
	}
	require.Equal(t, 1, remaining(ConfigMaps))
}

func TestListDeploymentNames(t *testing.T) {
	unrelated := labelled("apps.openshift.io/v1", "DeploymentConfig", "db", "db")
	unrelated.SetLabels(map[string]string{"app": "db"})

	client := NewFakeClient(
		testNamespace,
		labelled("apps.openshift.io/v1", "DeploymentConfig", "d2", "d2"),
		labelled("apps.openshift.io/v1", "DeploymentConfig", "d1", "d1"),
		unrelated,
	)

	names, err := client.ListDeploymentNames(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"d1", "d2"}, names)
}

func TestGetDeploymentConfig(t *testing.T) {
	client := NewFakeClient(testNamespace, labelled("apps.openshift.io/v1", "DeploymentConfig", "demo", "demo"))

	dc, err := client.GetDeploymentConfig(context.Background(), "demo")
	require.NoError(t, err)
	require.Equal(t, "demo", dc.GetName())

	_, err = client.GetDeploymentConfig(context.Background(), "missing")

	var notFound internal.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "missing", notFound.Name)
}

func TestNewestPod(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(time.Minute)

	cases := []struct {
		Name     string
		Pods     []corev1.Pod
		Expected string
	}{
		{
			Name:     "empty",
			Pods:     nil,
			Expected: "",
		},
		{
			Name:     "latest start wins",
			Pods:     []corev1.Pod{*pod("a", "x", &base), *pod("b", "x", &later)},
			Expected: "b",
		},
		{
			Name:     "ties keep first",
			Pods:     []corev1.Pod{*pod("a", "x", &base), *pod("b", "x", &base)},
			Expected: "a",
		},
		{
			Name:     "unstarted pods lose",
			Pods:     []corev1.Pod{*pod("a", "x", nil), *pod("b", "x", &base), *pod("c", "x", nil)},
			Expected: "b",
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			newest := NewestPod(tc.Pods)
			if tc.Expected == "" {
				require.Nil(t, newest)
				return
			}
			require.NotNil(t, newest)
			require.Equal(t, tc.Expected, newest.Name)
		})
	}
}

func TestFindNewestPodTimeout(t *testing.T) {
	client := NewFakeClient(testNamespace)

	_, err := client.FindNewestPod(context.Background(), "demo", 2, time.Millisecond)

	var timeout internal.TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, 2*time.Millisecond, timeout.Elapsed)
	require.Equal(t, "no pod was found", timeout.Reason)

	lookups := 0
	for _, action := range client.Clientset.Actions() {
		if action.GetVerb() == "list" && action.GetResource().Resource == "pods" {
			lookups++
		}
	}
	require.Equal(t, 3, lookups)
}

func TestFindNewestPod(t *testing.T) {
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		client := NewFakeClient(testNamespace, pod("demo-1-abc", "demo", &started))

		found, err := client.FindNewestPod(context.Background(), "demo", 0, time.Hour)
		require.NoError(t, err)
		require.Equal(t, "demo-1-abc", found.Name)
	})

	t.Run("canceled", func(t *testing.T) {
		client := NewFakeClient(testNamespace)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.FindNewestPod(ctx, "demo", 5, time.Hour)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("list error", func(t *testing.T) {
		client := NewFakeClient(testNamespace)
		client.Clientset.PrependReactor("list", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("apiserver down")
		})

		_, err := client.FindNewestPod(context.Background(), "demo", 5, time.Hour)
		require.ErrorContains(t, err, "apiserver down")

		var timeout internal.TimeoutError
		require.False(t, errors.As(err, &timeout))
	})
}

func TestFindRouteNotFound(t *testing.T) {
	client := NewFakeClient(testNamespace, labelled("route.openshift.io/v1", "Route", "demo", "demo"))

	_, err := client.FindRoute(context.Background(), "demo")

	var notFound internal.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "route", notFound.Kind)
}

func TestAuth(t *testing.T) {
	proxy := corev1.Container{
		Name: ContainerAuthProxy,
		Env: []corev1.EnvVar{
			{Name: EnvBasicAuthUsername, Value: "user"},
			{Name: EnvBasicAuthPassword, Value: "pass"},
		},
	}

	auth, ok := AuthFromPodSpec(corev1.PodSpec{Containers: []corev1.Container{{Name: ContainerModelServing}, proxy}})
	require.True(t, ok)
	require.Equal(t, BasicAuth{Username: "user", Password: "pass"}, auth)

	_, ok = AuthFromPodSpec(corev1.PodSpec{Containers: []corev1.Container{{Name: ContainerModelServing}}})
	require.False(t, ok)

	dc := labelled("apps.openshift.io/v1", "DeploymentConfig", "demo", "demo")
	require.NoError(t, unstructured.SetNestedSlice(
		dc.Object,
		[]any{
			map[string]any{
				"name": ContainerAuthProxy,
				"env": []any{
					map[string]any{"name": EnvBasicAuthUsername, "value": "user"},
					map[string]any{"name": EnvBasicAuthPassword, "value": "pass"},
				},
			},
		},
		"spec", "template", "spec", "containers",
	))

	auth, err := AuthFromDeploymentConfig(dc)
	require.NoError(t, err)
	require.Equal(t, BasicAuth{Username: "user", Password: "pass"}, auth)
}

func TestContainerLogs(t *testing.T) {
	target := pod("demo-1-abc", "demo", nil, corev1.Container{Name: ContainerAuthProxy}, corev1.Container{Name: ContainerModelServing})
	client := NewFakeClient(testNamespace, target)

	logs, err := client.ContainerLogs(context.Background(), target, ContainerModelServing)
	require.NoError(t, err)
	require.Equal(t, "fake logs", logs)
}
