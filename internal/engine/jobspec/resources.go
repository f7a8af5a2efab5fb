package jobspec

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"taskline/internal/domain"
)

// Resources maps the task's declared limits and requests onto the container
// resources object. Only present fields are set and the quantity strings are
// copied as written. nil means nothing was declared.
func Resources(r domain.TaskResources) map[string]any {
	out := map[string]any{}
	if l := resourceList(r.Limits); l != nil {
		out["limits"] = l
	}
	if l := resourceList(r.Requests); l != nil {
		out["requests"] = l
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resourceList(in domain.ResourceList) map[string]any {
	if in.Empty() {
		return nil
	}
	out := map[string]any{}
	if in.CPU != nil {
		out["cpu"] = *in.CPU
	}
	if in.Memory != nil {
		out["memory"] = *in.Memory
	}
	return out
}

// Object is the Job as submitted to the cluster, with the container resources
// set from the raw quantity strings.
func (m Manifest) Object() (*unstructured.Unstructured, error) {
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(m.Job)
	if err != nil {
		return nil, fmt.Errorf("convert job: %w", err)
	}
	u := &unstructured.Unstructured{Object: obj}
	if m.Resources == nil {
		return u, nil
	}
	path := []string{"spec", "template", "spec", "containers"}
	containers, found, err := unstructured.NestedSlice(u.Object, path...)
	if err != nil || !found || len(containers) == 0 {
		return nil, fmt.Errorf("job %s has no container", m.Job.Name)
	}
	c, ok := containers[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("job %s: unexpected container %T", m.Job.Name, containers[0])
	}
	c["resources"] = m.Resources
	if err := unstructured.SetNestedSlice(u.Object, containers, path...); err != nil {
		return nil, err
	}
	return u, nil
}
