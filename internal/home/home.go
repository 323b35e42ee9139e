package home

import (
	"cmp"
	"os"
	"path/filepath"
	"strings"
)

var (
	Dir string
	// Kubeconfig is the first path of $KUBECONFIG, or ~/.kube/config when it is unset.
	Kubeconfig string
)

func init() {
	Dir, _ = os.UserHomeDir()

	first, _, _ := strings.Cut(os.Getenv("KUBECONFIG"), string(os.PathListSeparator))
	Kubeconfig = cmp.Or(first, filepath.Join(Dir, ".kube/config"))
}
