package release

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Readiness mirrors the status of a HelmRelease Ready condition.
type Readiness string

const (
	ReadyTrue    Readiness = "True"
	ReadyFalse   Readiness = "False"
	ReadyUnknown Readiness = "Unknown"
)

const versionUnknown = "unknown"

// Snapshot is a normalized view of one HelmRelease event.
type Snapshot struct {
	Namespace    string    `json:"namespace"`
	Name         string    `json:"name"`
	ChartVersion string    `json:"chart_version"`
	AppVersion   string    `json:"app_version"`
	Revision     string    `json:"revision"`
	Ready        Readiness `json:"ready"`
	Message      string    `json:"message"`
}

// Key identifies one notifiable deployment event. Revision is used raw, so a
// release that has never applied a revision still produces a valid key.
func (s Snapshot) Key() string {
	return s.Namespace + "/" + s.Name + "/" + s.Revision
}

// Extract builds a Snapshot from a raw HelmRelease object. Missing fields
// default rather than error: version strings fall back to "unknown" and a
// missing Ready condition yields ReadyUnknown, which is never notifiable.
func Extract(obj map[string]interface{}) Snapshot {
	snap := Snapshot{
		Ready:        ReadyUnknown,
		ChartVersion: versionUnknown,
		AppVersion:   versionUnknown,
	}

	snap.Name, _, _ = unstructured.NestedString(obj, "metadata", "name")
	snap.Namespace, _, _ = unstructured.NestedString(obj, "metadata", "namespace")

	if v, found, _ := unstructured.NestedString(obj, "spec", "chart", "spec", "version"); found && v != "" {
		snap.ChartVersion = v
	}

	snap.Revision, _, _ = unstructured.NestedString(obj, "status", "lastAppliedRevision")

	if v, found, _ := unstructured.NestedString(obj, "status", "helmChart", "metadata", "appVersion"); found && v != "" {
		snap.AppVersion = v
	} else if snap.Revision != "" {
		snap.AppVersion = snap.Revision
	}

	conditions, _, _ := unstructured.NestedSlice(obj, "status", "conditions")
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		condType, _, _ := unstructured.NestedString(cond, "type")
		if condType != "Ready" {
			continue
		}
		status, _, _ := unstructured.NestedString(cond, "status")
		switch status {
		case string(ReadyTrue):
			snap.Ready = ReadyTrue
		case string(ReadyFalse):
			snap.Ready = ReadyFalse
		default:
			snap.Ready = ReadyUnknown
		}
		snap.Message, _, _ = unstructured.NestedString(cond, "message")
		break
	}

	return snap
}
