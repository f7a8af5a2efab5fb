// Package jobspec turns a Task and an invocation request into a batch/v1 Job
// manifest. Everything here is pure; submission happens in the engine.
package jobspec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"taskline/internal/domain"
)

const (
	EnvHandler   = "LAMBDA_HANDLER"
	EnvTaskName  = "LAMBDA_TASK_NAME"
	EnvRequestID = "LAMBDA_REQUEST_ID"
	EnvKwargs    = "LAMBDA_KWARGS"

	LabelApp       = "app"
	LabelTask      = "task"
	LabelRequestID = "request-id"
	AppName        = "lambda-task"

	ContainerName = "task"

	// TTLAfterFinished is how long the orchestrator keeps a finished Job.
	TTLAfterFinished = int32(3600)
)

// Manifest is a built Job plus the request id it was stamped with. The typed
// Job carries no resources; they live in Resources until Object is called.
type Manifest struct {
	Job       *batchv1.Job
	Resources map[string]any
	RequestID string
}

type Builder struct {
	Now   func() time.Time
	NewID func() string
}

// NewBuilder returns a Builder using wall-clock time and random UUIDs.
func NewBuilder() Builder {
	return Builder{Now: time.Now, NewID: uuid.NewString}
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b Builder) newID() string {
	if b.NewID != nil {
		return b.NewID()
	}
	return uuid.NewString()
}

// RequestID returns the caller's id when set, otherwise a fresh one.
func (b Builder) RequestID(req domain.InvokeRequest) string {
	if req.RequestID != nil && *req.RequestID != "" {
		return *req.RequestID
	}
	return b.newID()
}

// JobName is "<task>-<unix seconds>". Two invocations of one task within the
// same second yield the same name and the second create fails.
func JobName(taskName string, at time.Time) string {
	return fmt.Sprintf("%s-%d", taskName, at.Unix())
}

// Build composes the Job for one invocation of task in namespace.
func (b Builder) Build(task domain.Task, req domain.InvokeRequest, namespace string) (Manifest, error) {
	requestID := b.RequestID(req)
	jobName := JobName(task.Name, b.now())

	kwargs, err := json.Marshal(req.Kwargs)
	if err != nil {
		return Manifest{}, domain.Serialization(err)
	}

	env := make([]corev1.EnvVar, 0, 4+len(task.Spec.Env))
	env = append(env,
		corev1.EnvVar{Name: EnvHandler, Value: task.Spec.Handler},
		corev1.EnvVar{Name: EnvTaskName, Value: task.Name},
		corev1.EnvVar{Name: EnvRequestID, Value: requestID},
		corev1.EnvVar{Name: EnvKwargs, Value: string(kwargs)},
	)
	for _, e := range task.Spec.Env {
		env = append(env, corev1.EnvVar{Name: e.Name, Value: e.Value})
	}

	container := corev1.Container{
		Name:            ContainerName,
		Image:           task.Spec.Image,
		ImagePullPolicy: corev1.PullPolicy(task.Spec.ImagePullPolicy),
		Env:             env,
	}

	job := &batchv1.Job{
		TypeMeta: metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: namespace,
			Labels:    Labels(task.Name, requestID),
		},
		Spec: batchv1.JobSpec{
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: Labels(task.Name, requestID),
				},
				Spec: corev1.PodSpec{
					Containers:            []corev1.Container{container},
					RestartPolicy:         corev1.RestartPolicyNever,
					ActiveDeadlineSeconds: ptr.To(task.Spec.TimeoutSeconds),
				},
			},
			BackoffLimit:            ptr.To(int32(0)),
			TTLSecondsAfterFinished: ptr.To(TTLAfterFinished),
		},
	}
	return Manifest{Job: job, Resources: Resources(task.Spec.Resources), RequestID: requestID}, nil
}

// Labels are the discovery labels placed on the Job and its pod template.
func Labels(taskName, requestID string) map[string]string {
	return map[string]string{
		LabelApp:       AppName,
		LabelTask:      taskName,
		LabelRequestID: requestID,
	}
}
