package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func strptr(s string) *string { return &s }

func TestTaskDefault(t *testing.T) {
	task := &Task{Spec: TaskSpec{Image: "busybox"}}
	task.Default()
	assert.Equal(t, "IfNotPresent", task.Spec.ImagePullPolicy)
	assert.Equal(t, "handler", task.Spec.Handler)
	assert.Equal(t, int64(300), task.Spec.TimeoutSeconds)

	task = &Task{Spec: TaskSpec{Image: "busybox", ImagePullPolicy: "Always", Handler: "h", TimeoutSeconds: 60}}
	task.Default()
	assert.Equal(t, "Always", task.Spec.ImagePullPolicy)
	assert.Equal(t, "h", task.Spec.Handler)
	assert.Equal(t, int64(60), task.Spec.TimeoutSeconds)
}

func TestTaskSpecWireNames(t *testing.T) {
	raw := `{"image":"busybox","imagePullPolicy":"Never","handler":"main","timeout":45,
		"resources":{"limits":{"cpu":"500m"}},"env":[{"name":"A","value":"1"}]}`
	var spec TaskSpec
	require.NoError(t, json.Unmarshal([]byte(raw), &spec))
	assert.Equal(t, int64(45), spec.TimeoutSeconds)
	assert.Equal(t, "500m", *spec.Resources.Limits.CPU)
	assert.Nil(t, spec.Resources.Limits.Memory)
	assert.True(t, spec.Resources.Requests.Empty())
	assert.Equal(t, []TaskEnvVar{{Name: "A", Value: "1"}}, spec.Env)

	out, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"timeout":45`)
	assert.NotContains(t, string(out), `"memory"`)
}

func TestTaskDeepCopy(t *testing.T) {
	now := metav1.Now()
	orig := &Task{
		ObjectMeta: metav1.ObjectMeta{Name: "echo", Namespace: "ns1", Labels: map[string]string{"a": "b"}},
		Spec: TaskSpec{
			Image:     "busybox",
			Env:       []TaskEnvVar{{Name: "A", Value: "1"}},
			Resources: TaskResources{Limits: ResourceList{CPU: strptr("1")}},
		},
		Status: TaskStatus{Executions: 2, LastExecution: &now},
	}
	cp := orig.DeepCopy()
	require.Equal(t, orig, cp)

	*cp.Spec.Resources.Limits.CPU = "2"
	cp.Spec.Env[0].Value = "changed"
	cp.Labels["a"] = "c"
	assert.Equal(t, "1", *orig.Spec.Resources.Limits.CPU)
	assert.Equal(t, "1", orig.Spec.Env[0].Value)
	assert.Equal(t, "b", orig.Labels["a"])

	list := &TaskList{Items: []Task{*orig}}
	lcp, ok := list.DeepCopyObject().(*TaskList)
	require.True(t, ok)
	assert.Equal(t, list, lcp)
}

func TestTaskInfo(t *testing.T) {
	task := Task{
		ObjectMeta: metav1.ObjectMeta{Name: "echo", Namespace: "ns1"},
		Spec:       TaskSpec{Image: "busybox", Handler: "h"},
	}
	assert.Equal(t, TaskInfo{Name: "echo", Namespace: "ns1", Image: "busybox", Handler: "h"}, task.Info())
}

func TestTaskSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    TaskSpec
		wantErr string
	}{
		{name: "valid", spec: TaskSpec{Image: "ghcr.io/acme/echo:1.0", TimeoutSeconds: 10}},
		{name: "missing image", spec: TaskSpec{TimeoutSeconds: 10}, wantErr: "spec.image is required"},
		{name: "bad image", spec: TaskSpec{Image: "Not A Ref", TimeoutSeconds: 10}, wantErr: "spec.image"},
		{name: "zero timeout", spec: TaskSpec{Image: "busybox"}, wantErr: "spec.timeout must be positive"},
		{
			name:    "duplicate env",
			spec:    TaskSpec{Image: "busybox", TimeoutSeconds: 1, Env: []TaskEnvVar{{Name: "A"}, {Name: "A"}}},
			wantErr: "duplicate name A",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
