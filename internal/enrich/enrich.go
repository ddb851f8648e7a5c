package enrich

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	instanceLabel   = "app.kubernetes.io/instance"
	chartLabel      = "helm.sh/chart"
	appNameLabel    = "app.kubernetes.io/name"
	appVersionLabel = "app.kubernetes.io/version"
)

// ServiceVersion describes one running container image.
type ServiceVersion struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	Tag   string `json:"tag"`
}

// ChartDependency is a sub-chart inferred from pod labels.
type ChartDependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DeploymentStatus carries the replica counts of the release's Deployment.
// Found is false when no Deployment with the release's name exists.
type DeploymentStatus struct {
	Replicas      int32 `json:"replicas"`
	ReadyReplicas int32 `json:"ready_replicas"`
	Found         bool  `json:"found"`
}

// Enricher reads pods and deployments to decorate a release notification.
// All reads are best-effort: a failed cluster call yields an empty result,
// never an error to the caller.
type Enricher struct {
	client kubernetes.Interface
}

func NewEnricher(client kubernetes.Interface) *Enricher {
	return &Enricher{client: client}
}

// ListServiceVersions returns the images running for a release, one entry per
// image name. Pods are selected by the instance label; when that list call
// fails (the label may not exist on older chart versions) it falls back to
// every pod in the namespace, which can attribute unrelated pods to the
// release.
func (e *Enricher) ListServiceVersions(ctx context.Context, namespace, releaseName string) []ServiceVersion {
	pods, err := e.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: instanceLabel + "=" + releaseName,
	})
	if err != nil {
		logrus.Warnf("Label-selected pod list failed for %s/%s, falling back to all pods: %v", namespace, releaseName, err)
		pods, err = e.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			logrus.Errorf("Failed to list pods in %s: %v", namespace, err)
			return nil
		}
	}

	byName := make(map[string]ServiceVersion)
	for _, pod := range pods.Items {
		for _, container := range pod.Spec.Containers {
			sv := ParseImage(container.Image)
			byName[sv.Name] = sv
		}
	}

	versions := make([]ServiceVersion, 0, len(byName))
	for _, sv := range byName {
		versions = append(versions, sv)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Name < versions[j].Name })
	return versions
}

// ListDependencies infers the sub-charts deployed alongside a release from
// pod chart labels. The release's own chart is excluded.
func (e *Enricher) ListDependencies(ctx context.Context, namespace, releaseName string) []ChartDependency {
	pods, err := e.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: instanceLabel + "=" + releaseName,
	})
	if err != nil {
		logrus.Errorf("Failed to list pods for dependencies of %s/%s: %v", namespace, releaseName, err)
		return nil
	}

	byName := make(map[string]ChartDependency)
	for _, pod := range pods.Items {
		dep, ok := dependencyFromLabels(pod.Labels)
		if !ok || dep.Name == releaseName {
			continue
		}
		byName[dep.Name] = dep
	}

	deps := make([]ChartDependency, 0, len(byName))
	for _, dep := range byName {
		deps = append(deps, dep)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps
}

// DeploymentStatus reads the replica counts of the Deployment named after the
// release. Helm charts conventionally name the Deployment after the release,
// so a miss is common and not an error.
func (e *Enricher) DeploymentStatus(ctx context.Context, namespace, releaseName string) DeploymentStatus {
	dep, err := e.client.AppsV1().Deployments(namespace).Get(ctx, releaseName, metav1.GetOptions{})
	if err != nil {
		logrus.Infof("No deployment %s/%s: %v", namespace, releaseName, err)
		return DeploymentStatus{}
	}

	status := DeploymentStatus{Found: true, ReadyReplicas: dep.Status.ReadyReplicas}
	if dep.Spec.Replicas != nil {
		status.Replicas = *dep.Spec.Replicas
	}
	return status
}

// ParseImage splits a container image reference into repository and tag. The
// tag defaults to "latest"; the display name is the final path segment of the
// repository.
func ParseImage(image string) ServiceVersion {
	repository := image
	tag := "latest"
	// A colon before the last slash is a registry port, not a tag.
	if idx := strings.LastIndex(image, ":"); idx > strings.LastIndex(image, "/") {
		repository = image[:idx]
		tag = image[idx+1:]
	}

	name := repository
	if idx := strings.LastIndex(repository, "/"); idx >= 0 {
		name = repository[idx+1:]
	}

	return ServiceVersion{Name: name, Image: repository, Tag: tag}
}

// dependencyFromLabels parses a "chartname-version" chart label using a
// last-hyphen split, so multi-hyphen chart names survive as long as the
// version itself contains no hyphen. Falls back to the name/version label
// pair when no chart label is present.
func dependencyFromLabels(labels map[string]string) (ChartDependency, bool) {
	if chart, ok := labels[chartLabel]; ok && chart != "" {
		if idx := strings.LastIndex(chart, "-"); idx > 0 {
			return ChartDependency{Name: chart[:idx], Version: chart[idx+1:]}, true
		}
		return ChartDependency{Name: chart}, true
	}

	if name, ok := labels[appNameLabel]; ok && name != "" {
		return ChartDependency{Name: name, Version: labels[appVersionLabel]}, true
	}

	return ChartDependency{}, false
}
