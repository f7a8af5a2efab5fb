package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"taskline/internal/domain"
	"taskline/internal/logger"
	"taskline/internal/metrics"
)

const (
	DefaultRequeueAfter      = 300 * time.Second
	DefaultErrorRequeueAfter = 60 * time.Second
)

// TaskReconciler keeps every Task on a fixed requeue cadence. It never
// writes status or creates Jobs; invocations go through the engine.
type TaskReconciler struct {
	Client  client.Client
	Log     *logrus.Entry
	Metrics *metrics.Metrics

	RequeueAfter      time.Duration
	ErrorRequeueAfter time.Duration
}

// +kubebuilder:rbac:groups=lambda.example.com,resources=tasks,verbs=get;list;watch
// +kubebuilder:rbac:groups=batch,resources=jobs,verbs=create

func (r *TaskReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := r.logger(ctx).WithFields(logrus.Fields{
		"namespace": req.Namespace,
		"task":      req.Name,
	})

	var task domain.Task
	if err := r.Client.Get(ctx, req.NamespacedName, &task); err != nil {
		if apierrors.IsNotFound(err) {
			log.Debug("task deleted")
			r.Metrics.ObserveReconcile(metrics.ResultGone)
			return ctrl.Result{}, nil
		}
		return r.errorPolicy(log, err), nil
	}
	task.Default()

	log.Info("reconciling task")
	if err := task.Spec.Validate(); err != nil {
		log.WithError(err).Warn("task spec will not produce a valid job")
	}

	r.Metrics.ObserveReconcile(metrics.ResultRequeue)
	return ctrl.Result{RequeueAfter: r.requeueAfter()}, nil
}

// errorPolicy retries after a fixed delay. Returning a nil error keeps the
// workqueue from applying its own exponential backoff on top.
func (r *TaskReconciler) errorPolicy(log *logrus.Entry, err error) ctrl.Result {
	log.WithError(err).Error("reconcile failed")
	r.Metrics.ObserveReconcile(metrics.ResultError)
	return ctrl.Result{RequeueAfter: r.errorRequeueAfter()}
}

func (r *TaskReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&domain.Task{}).
		Named("task").
		Complete(r)
}

func (r *TaskReconciler) logger(ctx context.Context) *logrus.Entry {
	if r.Log != nil {
		return r.Log
	}
	return logger.FromContext(ctx)
}

func (r *TaskReconciler) requeueAfter() time.Duration {
	if r.RequeueAfter > 0 {
		return r.RequeueAfter
	}
	return DefaultRequeueAfter
}

func (r *TaskReconciler) errorRequeueAfter() time.Duration {
	if r.ErrorRequeueAfter > 0 {
		return r.ErrorRequeueAfter
	}
	return DefaultErrorRequeueAfter
}
