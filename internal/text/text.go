// Package text renders cluster objects for humans: yaml documents and unified diffs between them.
package text

import (
	"bytes"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/davidmdm/ansi"
)

type File struct {
	Name    string
	Content string
}

func Diff(current, desired File, context int) string {
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(current.Content),
		B:        difflib.SplitLines(desired.Content),
		FromFile: current.Name,
		ToFile:   desired.Name,
		Context:  context,
	})
	return diff
}

func DiffColorized(current, desired File, context int) string {
	return colorize(Diff(current, desired, context))
}

var (
	green = ansi.MakeStyle(ansi.FgGreen)
	red   = ansi.MakeStyle(ansi.FgRed)
)

func colorize(value string) string {
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}

func ToYaml(value any) (string, error) {
	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return "", err
	}
	return buffer.String(), encoder.Close()
}

// ResourceFile renders a resource as yaml without the fields the server manages,
// so that two versions of the same resource only differ by what a client changed.
func ResourceFile(name string, resource *unstructured.Unstructured) (File, error) {
	clean := resource.DeepCopy()

	unstructured.RemoveNestedField(clean.Object, "status")
	for _, field := range []string{"resourceVersion", "uid", "generation", "creationTimestamp", "managedFields"} {
		unstructured.RemoveNestedField(clean.Object, "metadata", field)
	}

	content, err := ToYaml(clean.Object)
	return File{Name: name, Content: content}, err
}
