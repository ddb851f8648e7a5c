package kube

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/u2takey/go-utils/filesystem/homedir"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Clients bundles the two API surfaces the controller needs: the typed
// clientset for pods/deployments and the dynamic client for the HelmRelease
// custom resource.
type Clients struct {
	Typed   kubernetes.Interface
	Dynamic dynamic.Interface
}

// NewClients tries in-cluster service account configuration first and falls
// back to a kubeconfig file (KUBECONFIG or ~/.kube/config).
func NewClients() (*Clients, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			if home := homedir.HomeDir(); home != "" {
				kubeconfig = filepath.Join(home, ".kube", "config")
			}
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig from %s: %w", kubeconfig, err)
		}
		logrus.Infof("Using kubeconfig from %s", kubeconfig)
	} else {
		logrus.Info("Using in-cluster service account configuration")
	}

	typed, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Clients{Typed: typed, Dynamic: dyn}, nil
}
