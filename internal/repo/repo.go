package repo

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"taskline/internal/domain"
)

// Repo reads Task definitions and writes Jobs through the cluster API.
type Repo struct {
	Client client.Client
}

func (r Repo) GetTask(ctx context.Context, namespace, name string) (domain.Task, error) {
	var task domain.Task
	if err := r.Client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, &task); err != nil {
		if apierrors.IsNotFound(err) {
			return domain.Task{}, domain.TaskNotFound(name)
		}
		return domain.Task{}, domain.Orchestrator(err)
	}
	task.Default()
	return task, nil
}

// ListTasks lists tasks in namespace, or in every namespace when it is empty.
func (r Repo) ListTasks(ctx context.Context, namespace string) ([]domain.Task, error) {
	var list domain.TaskList
	var opts []client.ListOption
	if namespace != "" {
		opts = append(opts, client.InNamespace(namespace))
	}
	if err := r.Client.List(ctx, &list, opts...); err != nil {
		return nil, domain.Orchestrator(err)
	}
	tasks := make([]domain.Task, 0, len(list.Items))
	for i := range list.Items {
		t := list.Items[i]
		t.Default()
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CreateJob submits job in its own namespace. Rejections, including name
// collisions, come back as orchestrator errors with the server's message.
func (r Repo) CreateJob(ctx context.Context, job *unstructured.Unstructured) error {
	if err := r.Client.Create(ctx, job); err != nil {
		return domain.Orchestrator(err)
	}
	return nil
}
