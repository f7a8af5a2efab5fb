package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"taskline/internal/domain"
	"taskline/internal/engine/jobspec"
	"taskline/internal/logger"
	"taskline/internal/metrics"
)

// TaskStore is the read side of the Task definition store.
type TaskStore interface {
	GetTask(ctx context.Context, namespace, name string) (domain.Task, error)
	ListTasks(ctx context.Context, namespace string) ([]domain.Task, error)
}

// JobSubmitter creates Jobs. Submission is one-way: nothing here waits on,
// polls or deletes the Job afterwards. job is a batch/v1 Job in unstructured
// form so resource quantities reach the API server as written.
type JobSubmitter interface {
	CreateJob(ctx context.Context, job *unstructured.Unstructured) error
}

// Journal records accepted invocations.
type Journal interface {
	Append(ctx context.Context, inv domain.Invocation) error
	List(ctx context.Context, namespace, taskName string, limit int) ([]domain.Invocation, error)
}

type Engine struct {
	Tasks            TaskStore
	Jobs             JobSubmitter
	Journal          Journal
	Builder          jobspec.Builder
	DefaultNamespace string
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

// New wires an Engine with a wall-clock builder. journal and m may be nil.
func New(tasks TaskStore, jobs JobSubmitter, journal Journal, defaultNamespace string, m *metrics.Metrics) Engine {
	return Engine{
		Tasks:            tasks,
		Jobs:             jobs,
		Journal:          journal,
		Builder:          jobspec.NewBuilder(),
		DefaultNamespace: defaultNamespace,
		Metrics:          m,
		Now:              time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Invoke submits one execution of namespace/taskName and returns as soon as
// the Job has been accepted by the cluster.
func (e Engine) Invoke(ctx context.Context, namespace, taskName string, req domain.InvokeRequest) (domain.InvokeResponse, error) {
	log := logger.FromContext(ctx).WithFields(logrus.Fields{
		"namespace": namespace,
		"task":      taskName,
	})
	log.Info("invoking task")
	if req.AsyncMode != nil {
		log.WithField("asyncMode", *req.AsyncMode).Debug("asyncMode is accepted but has no effect")
	}

	task, err := e.Tasks.GetTask(ctx, namespace, taskName)
	if err != nil {
		e.Metrics.ObserveInvocation(namespace, taskName, outcomeFor(err))
		return domain.InvokeResponse{}, err
	}

	manifest, err := e.Builder.Build(task, req, namespace)
	if err != nil {
		e.Metrics.ObserveInvocation(namespace, taskName, outcomeFor(err))
		return domain.InvokeResponse{}, err
	}
	log = log.WithFields(logrus.Fields{"job": manifest.Job.Name, "requestId": manifest.RequestID})
	obj, err := manifest.Object()
	if err != nil {
		err = domain.Serialization(err)
		e.Metrics.ObserveInvocation(namespace, taskName, outcomeFor(err))
		return domain.InvokeResponse{}, err
	}
	log.Info("creating job")

	start := e.now()
	err = e.Jobs.CreateJob(ctx, obj)
	e.Metrics.ObserveSubmit(namespace, e.now().Sub(start).Seconds())
	if err != nil {
		log.WithError(err).Error("job submission failed")
		e.Metrics.ObserveInvocation(namespace, taskName, outcomeFor(err))
		return domain.InvokeResponse{}, err
	}
	log.Info("job created")
	e.Metrics.ObserveInvocation(namespace, taskName, metrics.OutcomeAccepted)

	if e.Journal != nil {
		inv := domain.Invocation{
			RequestID:  manifest.RequestID,
			JobName:    manifest.Job.Name,
			Namespace:  namespace,
			TaskName:   taskName,
			AcceptedAt: e.now().UTC(),
		}
		if err := e.Journal.Append(ctx, inv); err != nil {
			// The Job exists; losing the journal entry must not fail the call.
			log.WithError(err).Warn("could not record invocation")
		}
	}

	return domain.InvokeResponse{
		RequestID: manifest.RequestID,
		JobName:   manifest.Job.Name,
		Status:    domain.StatusAccepted,
		Namespace: namespace,
		TaskName:  taskName,
	}, nil
}

// InvokeDefault invokes taskName in the configured default namespace.
func (e Engine) InvokeDefault(ctx context.Context, taskName string, req domain.InvokeRequest) (domain.InvokeResponse, error) {
	return e.Invoke(ctx, e.DefaultNamespace, taskName, req)
}

// ListTasks summarizes every task visible in all namespaces.
func (e Engine) ListTasks(ctx context.Context) ([]domain.TaskInfo, error) {
	tasks, err := e.Tasks.ListTasks(ctx, "")
	if err != nil {
		return nil, err
	}
	infos := make([]domain.TaskInfo, 0, len(tasks))
	for i := range tasks {
		infos = append(infos, tasks[i].Info())
	}
	return infos, nil
}

func (e Engine) GetTask(ctx context.Context, namespace, name string) (domain.Task, error) {
	return e.Tasks.GetTask(ctx, namespace, name)
}

// Invocations lists journaled invocations of a task, newest first. It is
// empty when no journal is configured.
func (e Engine) Invocations(ctx context.Context, namespace, name string, limit int) ([]domain.Invocation, error) {
	if e.Journal == nil {
		return []domain.Invocation{}, nil
	}
	return e.Journal.List(ctx, namespace, name, limit)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrInvalid), errors.Is(err, domain.ErrSerialization):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}
