// Package domain holds the Task resource model, the invocation API types and
// the error kinds shared by every layer.
// +kubebuilder:object:generate=true
// +groupName=lambda.example.com
package domain

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/scheme"
)

var (
	// GroupVersion is the API group and version of the Task resource.
	GroupVersion = schema.GroupVersion{Group: "lambda.example.com", Version: "v1"}

	SchemeBuilder = &scheme.Builder{GroupVersion: GroupVersion}

	// AddToScheme adds Task and TaskList to a scheme.
	AddToScheme = SchemeBuilder.AddToScheme
)

func init() {
	SchemeBuilder.Register(&Task{}, &TaskList{})
}
