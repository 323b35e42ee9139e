// Package manifest processes OpenShift templates into resources ready to be applied.
//
// Only the subset of template processing needed for serving deployments is supported:
// required parameters, parameter defaults, ${NAME} string substitution and ${{NAME}}
// substitution of non string values.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	kyaml "k8s.io/apimachinery/pkg/util/yaml"
)

const (
	LabelApp      = "app"
	LabelTemplate = "template"
	TemplateValue = "mlflow"
)

//go:embed templates/deploy_with_auth.yaml
var defaultTemplate []byte

type Parameter struct {
	Name     string
	Value    string
	Required bool
}

type Template struct {
	Name       string
	Labels     map[string]string
	Objects    []map[string]any
	Parameters []Parameter
}

// Default returns the embedded model serving template: a DeploymentConfig running the model server
// behind a basic auth proxy, its Service and a TLS passthrough Route.
func Default() (*Template, error) {
	return Parse(defaultTemplate)
}

func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Template, error) {
	var doc map[string]any
	if err := kyaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}

	tmpl := unstructured.Unstructured{Object: doc}
	if kind := tmpl.GetKind(); kind != "Template" {
		return nil, fmt.Errorf("expected kind Template but got %q", kind)
	}

	objects, _, err := unstructured.NestedSlice(doc, "objects")
	if err != nil {
		return nil, fmt.Errorf("invalid template objects: %w", err)
	}

	result := Template{
		Name:   tmpl.GetName(),
		Labels: map[string]string{},
	}

	if labels, _, err := unstructured.NestedStringMap(doc, "labels"); err == nil {
		result.Labels = labels
	}

	for i, object := range objects {
		value, ok := object.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("template object %d is not a mapping", i)
		}
		result.Objects = append(result.Objects, value)
	}

	parameters, _, err := unstructured.NestedSlice(doc, "parameters")
	if err != nil {
		return nil, fmt.Errorf("invalid template parameters: %w", err)
	}

	for i, parameter := range parameters {
		values, ok := parameter.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("template parameter %d is not a mapping", i)
		}
		name, _ := values["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("template parameter %d has no name", i)
		}
		value, _ := values["value"].(string)
		required, _ := values["required"].(bool)
		result.Parameters = append(result.Parameters, Parameter{Name: name, Value: value, Required: required})
	}

	return &result, nil
}

var (
	stringParam = regexp.MustCompile(`\$\{([a-zA-Z0-9_]+)\}`)
	typedParam  = regexp.MustCompile(`^\$\{\{([a-zA-Z0-9_]+)\}\}$`)
)

// Process substitutes params into the template objects. Parameters that are not declared by the template
// are ignored, and references to undeclared parameters are left untouched.
func (tmpl Template) Process(params map[string]string) ([]*unstructured.Unstructured, error) {
	values := make(map[string]string, len(tmpl.Parameters))

	var missing []string
	for _, parameter := range tmpl.Parameters {
		value, ok := params[parameter.Name]
		if !ok || value == "" {
			value = parameter.Value
		}
		if parameter.Required && value == "" {
			missing = append(missing, parameter.Name)
			continue
		}
		values[parameter.Name] = value
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("template %s: missing required parameter(s): %v", tmpl.Name, missing)
	}

	resources := make([]*unstructured.Unstructured, len(tmpl.Objects))
	for i, object := range tmpl.Objects {
		substituted, err := substitute(object, values)
		if err != nil {
			return nil, fmt.Errorf("template object %d: %w", i, err)
		}
		resource := &unstructured.Unstructured{Object: substituted.(map[string]any)}
		if len(tmpl.Labels) > 0 {
			addLabels(resource, tmpl.Labels)
		}
		resources[i] = resource
	}

	return resources, nil
}

func substitute(value any, params map[string]string) (any, error) {
	switch value := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(value))
		for key, elem := range value {
			substituted, err := substitute(elem, params)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			result[key] = substituted
		}
		return result, nil
	case []any:
		result := make([]any, len(value))
		for i, elem := range value {
			substituted, err := substitute(elem, params)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			result[i] = substituted
		}
		return result, nil
	case string:
		if match := typedParam.FindStringSubmatch(value); match != nil {
			raw, ok := params[match[1]]
			if !ok {
				return value, nil
			}
			var typed any
			if err := yaml.Unmarshal([]byte(raw), &typed); err != nil {
				return nil, fmt.Errorf("parameter %s: %w", match[1], err)
			}
			return jsonCompatible(typed), nil
		}
		return stringParam.ReplaceAllStringFunc(value, func(ref string) string {
			if param, ok := params[ref[2:len(ref)-1]]; ok {
				return param
			}
			return ref
		}), nil
	default:
		return value, nil
	}
}

// jsonCompatible converts yaml decoded values into the value types unstructured objects support.
func jsonCompatible(value any) any {
	switch value := value.(type) {
	case int:
		return int64(value)
	case uint64:
		return strconv.FormatUint(value, 10)
	case map[string]any:
		for key, elem := range value {
			value[key] = jsonCompatible(elem)
		}
		return value
	case []any:
		for i, elem := range value {
			value[i] = jsonCompatible(elem)
		}
		return value
	default:
		return value
	}
}

// Label marks resources as belonging to the named deployment. The labels are what every lookup and
// the rollback use to find them again.
func Label(resources []*unstructured.Unstructured, name string) {
	for _, resource := range resources {
		addLabels(resource, map[string]string{
			LabelApp:      name,
			LabelTemplate: TemplateValue,
		})
	}
}

func addLabels(resource *unstructured.Unstructured, labels map[string]string) {
	current := resource.GetLabels()
	if current == nil {
		current = make(map[string]string, len(labels))
	}
	for key, value := range labels {
		current[key] = value
	}
	resource.SetLabels(current)
}
