package k8s

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	kerrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/davidmdm/x/xerr"

	"github.com/davidmdm/mlflow-openshift/internal"
	"github.com/davidmdm/mlflow-openshift/internal/manifest"
)

const fieldManager = "mlflow-openshift"

var (
	DeploymentConfigs      = schema.GroupVersionResource{Group: "apps.openshift.io", Version: "v1", Resource: "deploymentconfigs"}
	Routes                 = schema.GroupVersionResource{Group: "route.openshift.io", Version: "v1", Resource: "routes"}
	Services               = schema.GroupVersionResource{Version: "v1", Resource: "services"}
	ReplicationControllers = schema.GroupVersionResource{Version: "v1", Resource: "replicationcontrollers"}
	Pods                   = schema.GroupVersionResource{Version: "v1", Resource: "pods"}
)

// Owned lists the resource types the builtin template creates besides pods. DeleteAll always sweeps them,
// along with every other namespaced type the server reports.
// Pods are handled through the core clientset.
var Owned = []schema.GroupVersionResource{
	DeploymentConfigs,
	ReplicationControllers,
	Routes,
	Services,
}

type Client struct {
	dynamic   dynamic.Interface
	clientset kubernetes.Interface
	discovery discovery.DiscoveryInterface
	mapper    meta.RESTMapper
	namespace string
}

// NewClientFromKubeConfig builds a client from a kubeconfig file. If namespace is empty, the namespace
// of the current context is used, which is what `oc project` selects.
func NewClientFromKubeConfig(path, namespace string) (*Client, error) {
	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: path},
		&clientcmd.ConfigOverrides{},
	)

	restcfg, err := loader.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build k8 config: %w", err)
	}

	if namespace == "" {
		namespace, _, err = loader.Namespace()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve current namespace: %w", err)
		}
	}

	return NewClient(restcfg, namespace)
}

func NewClient(cfg *rest.Config, namespace string) (*Client, error) {
	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client component: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8 clientset: %w", err)
	}

	cached := memory.NewMemCacheClient(clientset.Discovery())

	return NewClientFromInterfaces(dynamicClient, clientset, cached, restmapper.NewDeferredDiscoveryRESTMapper(cached), namespace), nil
}

// NewClientFromInterfaces assembles a client from its components. It is how tests plug in fakes.
func NewClientFromInterfaces(
	dynamic dynamic.Interface,
	clientset kubernetes.Interface,
	discovery discovery.DiscoveryInterface,
	mapper meta.RESTMapper,
	namespace string,
) *Client {
	return &Client{
		dynamic:   dynamic,
		clientset: clientset,
		discovery: discovery,
		mapper:    mapper,
		namespace: cmp.Or(namespace, metav1.NamespaceDefault),
	}
}

func (client Client) Namespace() string { return client.namespace }

type ApplyResourcesOpts struct {
	SkipDryRun bool
}

// ApplyResources creates every resource that does not exist yet and replaces the ones that do.
// Unless skipped, the whole set is first submitted as a server side dry run so that a malformed
// manifest is rejected before anything is created.
func (client Client) ApplyResources(ctx context.Context, resources []*unstructured.Unstructured, opts ApplyResourcesOpts) error {
	defer internal.DebugTimer(ctx, "apply resources")()

	if !opts.SkipDryRun {
		if err := client.DryRun(ctx, resources); err != nil {
			return err
		}
	}

	var errs []error
	for _, resource := range resources {
		if err := client.ApplyResource(ctx, resource, ApplyOpts{}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", Canonical(resource), err))
		}
	}

	return xerr.MultiErrOrderedFrom("", errs...)
}

// DryRun submits resources as a server side dry run. Nothing is persisted.
func (client Client) DryRun(ctx context.Context, resources []*unstructured.Unstructured) error {
	var errs []error
	for _, resource := range resources {
		if err := client.ApplyResource(ctx, resource, ApplyOpts{DryRun: true}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", Canonical(resource), err))
		}
	}
	return xerr.MultiErrOrderedFrom("dry run", errs...)
}

type ApplyOpts struct {
	DryRun bool
}

func (client Client) ApplyResource(ctx context.Context, resource *unstructured.Unstructured, opts ApplyOpts) error {
	resourceInterface, err := client.GetDynamicResourceInterface(resource)
	if err != nil {
		return fmt.Errorf("failed to resolve resource: %w", err)
	}

	dryRun := func() []string {
		if opts.DryRun {
			return []string{metav1.DryRunAll}
		}
		return nil
	}()

	current, err := resourceInterface.Get(ctx, resource.GetName(), metav1.GetOptions{})
	if kerrors.IsNotFound(err) {
		_, err = resourceInterface.Create(ctx, resource, metav1.CreateOptions{FieldManager: fieldManager, DryRun: dryRun})
		return err
	}
	if err != nil {
		return err
	}

	desired := resource.DeepCopy()
	desired.SetResourceVersion(current.GetResourceVersion())

	_, err = resourceInterface.Update(ctx, desired, metav1.UpdateOptions{FieldManager: fieldManager, DryRun: dryRun})
	return err
}

func (client Client) GetDynamicResourceInterface(resource *unstructured.Unstructured) (dynamic.ResourceInterface, error) {
	mapping, err := client.LookupResourceMapping(resource)
	if err != nil {
		return nil, err
	}
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		if resource.GetNamespace() == "" {
			resource.SetNamespace(client.namespace)
		}
		return client.dynamic.Resource(mapping.Resource).Namespace(resource.GetNamespace()), nil
	}
	return client.dynamic.Resource(mapping.Resource), nil
}

func (client Client) LookupResourceMapping(resource *unstructured.Unstructured) (*meta.RESTMapping, error) {
	gvk := schema.FromAPIVersionAndKind(resource.GetAPIVersion(), resource.GetKind())
	return client.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
}

// DeleteAll removes every resource labelled as belonging to the named deployment, whatever its type.
// Resources that are already gone are not an error, so calling it twice is harmless.
func (client Client) DeleteAll(ctx context.Context, name string) error {
	defer internal.DebugTimer(ctx, "delete resources of "+name)()

	logger := klog.FromContext(ctx).WithValues("deployment", name)
	selector := AppSelector(name)

	var errs []error

	gvrs, err := client.DeletableResources()
	if err != nil {
		logger.Error(err, "resource discovery incomplete: some resource types may be left behind")
		errs = append(errs, err)
	}

	for _, gvr := range gvrs {
		resources := client.dynamic.Resource(gvr).Namespace(client.namespace)

		list, err := resources.List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil {
			// Types the caller may not list cannot hold anything it created.
			if kerrors.IsNotFound(err) || kerrors.IsForbidden(err) || kerrors.IsMethodNotSupported(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to list %s: %w", gvr.Resource, err))
			continue
		}

		for _, item := range list.Items {
			err := resources.Delete(ctx, item.GetName(), metav1.DeleteOptions{PropagationPolicy: ptr(metav1.DeletePropagationBackground)})
			if err != nil && !kerrors.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("failed to delete %s: %w", Canonical(&item), err))
				continue
			}
			logger.V(1).Info("deleted resource", "resource", Canonical(&item))
		}
	}

	pods := client.clientset.CoreV1().Pods(client.namespace)

	podList, err := pods.List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list pods: %w", err))
	} else {
		for _, pod := range podList.Items {
			if err := pods.Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil && !kerrors.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("failed to delete pod %s: %w", pod.Name, err))
			}
		}
	}

	return xerr.MultiErrOrderedFrom("", errs...)
}

// DeletableResources returns Owned followed by every other namespaced resource type the server can list and delete.
// Pods and subresources are left out. When discovery fails partway, the types that were discovered are still
// returned alongside the error.
func (client Client) DeletableResources() ([]schema.GroupVersionResource, error) {
	result := slices.Clone(Owned)
	if client.discovery == nil {
		return result, nil
	}

	seen := map[schema.GroupResource]bool{Pods.GroupResource(): true}
	for _, gvr := range Owned {
		seen[gvr.GroupResource()] = true
	}

	_, lists, err := client.discovery.ServerGroupsAndResources()
	if err != nil && !discovery.IsGroupDiscoveryFailedError(err) {
		return result, fmt.Errorf("failed to discover resources: %w", err)
	}

	deletable := discovery.ResourcePredicateFunc(func(groupVersion string, resource *metav1.APIResource) bool {
		return resource.Namespaced &&
			!strings.Contains(resource.Name, "/") &&
			discovery.SupportsAllVerbs{Verbs: []string{"list", "delete"}}.Match(groupVersion, resource)
	})

	for _, list := range discovery.FilteredBy(deletable, lists) {
		gv, parseErr := schema.ParseGroupVersion(list.GroupVersion)
		if parseErr != nil {
			continue
		}
		for _, resource := range list.APIResources {
			gvr := gv.WithResource(resource.Name)
			if seen[gvr.GroupResource()] {
				continue
			}
			seen[gvr.GroupResource()] = true
			result = append(result, gvr)
		}
	}

	if err != nil {
		return result, fmt.Errorf("failed to discover some resources: %w", err)
	}

	return result, nil
}

// GetDeploymentConfig returns the deployment config labelled with the deployment name.
func (client Client) GetDeploymentConfig(ctx context.Context, name string) (*unstructured.Unstructured, error) {
	list, err := client.dynamic.
		Resource(DeploymentConfigs).
		Namespace(client.namespace).
		List(ctx, metav1.ListOptions{LabelSelector: AppSelector(name)})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployment configs: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, internal.NotFoundError{Kind: "deployment config", Name: name}
	}
	return &list.Items[0], nil
}

func (client Client) UpdateDeploymentConfig(ctx context.Context, dc *unstructured.Unstructured) error {
	_, err := client.dynamic.
		Resource(DeploymentConfigs).
		Namespace(client.namespace).
		Update(ctx, dc, metav1.UpdateOptions{FieldManager: fieldManager})
	return err
}

// ListDeploymentNames returns the sorted names of all deployment configs created from the serving template.
func (client Client) ListDeploymentNames(ctx context.Context) ([]string, error) {
	list, err := client.dynamic.
		Resource(DeploymentConfigs).
		Namespace(client.namespace).
		List(ctx, metav1.ListOptions{
			LabelSelector: labels.SelectorFromSet(labels.Set{manifest.LabelTemplate: manifest.TemplateValue}).String(),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployment configs: %w", err)
	}

	names := make([]string, len(list.Items))
	for i, item := range list.Items {
		names[i] = item.GetName()
	}
	slices.Sort(names)

	return names, nil
}

func AppSelector(name string) string {
	return labels.SelectorFromSet(labels.Set{manifest.LabelApp: name}).String()
}

func Canonical(resource *unstructured.Unstructured) string {
	gvk := resource.GroupVersionKind()

	return strings.ToLower(strings.Join(
		[]string{
			cmp.Or(resource.GetNamespace(), "_"),
			cmp.Or(gvk.Group, "core"),
			gvk.Version,
			gvk.Kind,
			resource.GetName(),
		},
		".",
	))
}

func ptr[T any](value T) *T { return &value }
