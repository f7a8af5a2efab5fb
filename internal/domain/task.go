package domain

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	DefaultImagePullPolicy = "IfNotPresent"
	DefaultHandler         = "handler"
	DefaultTimeoutSeconds  = int64(300)
)

// TaskSpec is the declarative definition of a container-backed task.
type TaskSpec struct {
	// Image is the container image to run.
	Image string `json:"image"`

	// +kubebuilder:default=IfNotPresent
	ImagePullPolicy string `json:"imagePullPolicy,omitempty"`

	Resources TaskResources `json:"resources,omitempty"`

	// Env is appended after the fixed LAMBDA_* variables, in order.
	Env []TaskEnvVar `json:"env,omitempty"`

	// +kubebuilder:default=handler
	Handler string `json:"handler,omitempty"`

	// TimeoutSeconds bounds the wall-clock duration of one execution.
	// +kubebuilder:default=300
	TimeoutSeconds int64 `json:"timeout,omitempty"`
}

type TaskResources struct {
	Limits   ResourceList `json:"limits,omitempty"`
	Requests ResourceList `json:"requests,omitempty"`
}

// ResourceList holds opaque quantity strings; nil means absent.
type ResourceList struct {
	CPU    *string `json:"cpu,omitempty"`
	Memory *string `json:"memory,omitempty"`
}

// Empty reports whether neither cpu nor memory is set.
func (r ResourceList) Empty() bool {
	return r.CPU == nil && r.Memory == nil
}

type TaskEnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type TaskStatus struct {
	Executions    int64        `json:"executions"`
	LastExecution *metav1.Time `json:"lastExecution,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status

// Task is a namespaced, invokable task definition.
type Task struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   TaskSpec   `json:"spec,omitempty"`
	Status TaskStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// TaskList contains a list of Task.
type TaskList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Task `json:"items"`
}

// Default fills unset spec fields with their documented defaults.
func (t *Task) Default() {
	if t.Spec.ImagePullPolicy == "" {
		t.Spec.ImagePullPolicy = DefaultImagePullPolicy
	}
	if t.Spec.Handler == "" {
		t.Spec.Handler = DefaultHandler
	}
	if t.Spec.TimeoutSeconds == 0 {
		t.Spec.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

// Info flattens the task into its listing summary.
func (t *Task) Info() TaskInfo {
	return TaskInfo{
		Name:      t.Name,
		Namespace: t.Namespace,
		Image:     t.Spec.Image,
		Handler:   t.Spec.Handler,
	}
}
