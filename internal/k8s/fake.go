package k8s

import (
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"
)

// FakeClient is a Client backed by in memory object trackers instead of a cluster.
type FakeClient struct {
	*Client
	Dynamic   *dynamicfake.FakeDynamicClient
	Clientset *kubefake.Clientset
}

var (
	ConfigMaps = schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
	Secrets    = schema.GroupVersionResource{Version: "v1", Resource: "secrets"}
)

// fakeKinds are the namespaced types the fake server knows about. Pods live in the clientset tracker.
var fakeKinds = map[schema.GroupVersionResource]string{
	DeploymentConfigs:      "DeploymentConfig",
	ReplicationControllers: "ReplicationController",
	Routes:                 "Route",
	Services:               "Service",
	ConfigMaps:             "ConfigMap",
	Secrets:                "Secret",
	Pods:                   "Pod",
}

// NewFakeClient seeds typed objects such as pods into the clientset and unstructured objects into the dynamic client.
// Discovery reports every kind the fake knows about.
func NewFakeClient(namespace string, objects ...runtime.Object) *FakeClient {
	var typed, untyped []runtime.Object
	for _, object := range objects {
		if _, ok := object.(*unstructured.Unstructured); ok {
			untyped = append(untyped, object)
			continue
		}
		typed = append(typed, object)
	}

	mapper := meta.NewDefaultRESTMapper(nil)
	listKinds := map[schema.GroupVersionResource]string{}
	resources := map[string]*metav1.APIResourceList{}

	for gvr, kind := range fakeKinds {
		mapper.Add(gvr.GroupVersion().WithKind(kind), meta.RESTScopeNamespace)

		if gvr != Pods {
			listKinds[gvr] = kind + "List"
		}

		groupVersion := gvr.GroupVersion().String()
		if resources[groupVersion] == nil {
			resources[groupVersion] = &metav1.APIResourceList{GroupVersion: groupVersion}
		}
		resources[groupVersion].APIResources = append(resources[groupVersion].APIResources, metav1.APIResource{
			Name:       gvr.Resource,
			Kind:       kind,
			Namespaced: true,
			Verbs:      metav1.Verbs{"create", "delete", "get", "list", "update"},
		})
	}

	dynamicClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds, untyped...)
	clientset := kubefake.NewSimpleClientset(typed...)

	for _, list := range resources {
		clientset.Resources = append(clientset.Resources, list)
	}

	return &FakeClient{
		Client:    NewClientFromInterfaces(dynamicClient, clientset, clientset.Discovery(), mapper, namespace),
		Dynamic:   dynamicClient,
		Clientset: clientset,
	}
}
