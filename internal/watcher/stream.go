package watcher

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
)

// HelmReleaseGVR locates the Flux HelmRelease custom resource.
var HelmReleaseGVR = schema.GroupVersionResource{
	Group:    "helm.toolkit.fluxcd.io",
	Version:  "v2beta1",
	Resource: "helmreleases",
}

// StreamOpener opens one long-lived watch on a namespace's HelmRelease
// collection. Abstracted so tests can feed synthetic streams.
type StreamOpener interface {
	Open(ctx context.Context, namespace string) (watch.Interface, error)
}

// HelmReleaseStream opens watches through the dynamic client with a bounded
// server-side timeout, forcing a periodic re-establish even on a healthy
// connection. That bounds how stale a silently dropped stream can get.
type HelmReleaseStream struct {
	client         dynamic.Interface
	timeoutSeconds int64
}

func NewHelmReleaseStream(client dynamic.Interface, timeoutSeconds int64) *HelmReleaseStream {
	return &HelmReleaseStream{client: client, timeoutSeconds: timeoutSeconds}
}

func (s *HelmReleaseStream) Open(ctx context.Context, namespace string) (watch.Interface, error) {
	timeout := s.timeoutSeconds
	return s.client.Resource(HelmReleaseGVR).Namespace(namespace).Watch(ctx, metav1.ListOptions{
		TimeoutSeconds: &timeout,
	})
}
