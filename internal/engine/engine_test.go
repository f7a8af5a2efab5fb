package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/journal"
	"taskline/internal/metrics"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Client  client.Client
	Creates *atomic.Int32
	Metrics *metrics.Metrics
	Ctx     context.Context
}

func echoTask(ns string) *domain.Task {
	return &domain.Task{
		ObjectMeta: metav1.ObjectMeta{Name: "echo", Namespace: ns},
		Spec:       domain.TaskSpec{Image: "busybox", Handler: "h", TimeoutSeconds: 60},
	}
}

func newTestEnv(t *testing.T, objs ...client.Object) testEnv {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, domain.AddToScheme(scheme))

	creates := &atomic.Int32{}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).WithInterceptorFuncs(interceptor.Funcs{
		Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
			creates.Add(1)
			return c.Create(ctx, obj, opts...)
		},
	}).Build()

	m := metrics.New(prometheus.NewRegistry())
	r := repo.Repo{Client: c}
	e := engine.New(r, r, nil, "default", m)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return clock }
	e.Builder.Now = func() time.Time { return clock }
	return testEnv{Engine: e, Client: c, Creates: creates, Metrics: m, Ctx: context.Background()}
}

func TestInvokeEchoScenario(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	res, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{Kwargs: map[string]any{"x": 1}})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.JobName, "echo-"))
	assert.Equal(t, "accepted", res.Status)
	assert.Equal(t, "ns1", res.Namespace)
	assert.Equal(t, "echo", res.TaskName)
	assert.NotEmpty(t, res.RequestID)

	var job batchv1.Job
	require.NoError(t, env.Client.Get(env.Ctx, types.NamespacedName{Namespace: "ns1", Name: res.JobName}, &job))
	assert.Equal(t, int64(60), *job.Spec.Template.Spec.ActiveDeadlineSeconds)
	assert.Equal(t, int32(0), *job.Spec.BackoffLimit)
	assert.Equal(t, "Never", string(job.Spec.Template.Spec.RestartPolicy))
	assert.Equal(t, res.RequestID, job.Labels["request-id"])
	assert.Equal(t, res.RequestID, job.Spec.Template.Spec.Containers[0].Env[2].Value)
	assert.Equal(t, `{"x":1}`, job.Spec.Template.Spec.Containers[0].Env[3].Value)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Metrics.Invocations.WithLabelValues("ns1", "echo", metrics.OutcomeAccepted)))
}

func TestInvokeExplicitRequestID(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	res, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{RequestID: ptr.To("abc-123"), AsyncMode: ptr.To(true)})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", res.RequestID)
}

func TestInvokeGeneratesDistinctRequestIDs(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	tick := time.Unix(1700000000, 0)
	env.Engine.Builder.Now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		res, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{})
		require.NoError(t, err)
		require.NotEmpty(t, res.RequestID)
		require.False(t, seen[res.RequestID])
		seen[res.RequestID] = true
	}
	assert.Equal(t, int32(5), env.Creates.Load())
}

type captureJobs struct {
	jobs []*unstructured.Unstructured
}

func (c *captureJobs) CreateJob(_ context.Context, job *unstructured.Unstructured) error {
	c.jobs = append(c.jobs, job)
	return nil
}

func TestInvokeSubmitsResourceQuantitiesAsWritten(t *testing.T) {
	env := newTestEnv(t)
	task := echoTask("ns1")
	task.Spec.Resources = domain.TaskResources{
		Limits:   domain.ResourceList{CPU: ptr.To("1000m"), Memory: ptr.To("1024Mi")},
		Requests: domain.ResourceList{CPU: ptr.To("0.5"), Memory: ptr.To("lots")},
	}
	require.NoError(t, env.Client.Create(env.Ctx, task))

	jobs := &captureJobs{}
	env.Engine.Jobs = jobs
	_, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{})
	require.NoError(t, err)
	require.Len(t, jobs.jobs, 1)

	containers, found, err := unstructured.NestedSlice(jobs.jobs[0].Object, "spec", "template", "spec", "containers")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, containers, 1)
	want := map[string]any{
		"limits":   map[string]any{"cpu": "1000m", "memory": "1024Mi"},
		"requests": map[string]any{"cpu": "0.5", "memory": "lots"},
	}
	assert.Equal(t, want, containers[0].(map[string]any)["resources"])
}

func TestInvokeMissingTaskNeverCreates(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Invoke(env.Ctx, "ns1", "missing", domain.InvokeRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.Zero(t, env.Creates.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Metrics.Invocations.WithLabelValues("ns1", "missing", metrics.OutcomeNotFound)))
}

func TestInvokeSameSecondCollision(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	first, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{})
	require.NoError(t, err)

	_, err = env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrchestrator)
	assert.Contains(t, err.Error(), first.JobName)
	assert.Equal(t, int32(2), env.Creates.Load())
}

func TestInvokeDistinctSecondsDistinctNames(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	first, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{})
	require.NoError(t, err)
	later := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	env.Engine.Builder.Now = func() time.Time { return later }
	second, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{})
	require.NoError(t, err)
	assert.NotEqual(t, first.JobName, second.JobName)
}

func TestInvokeDefaultNamespace(t *testing.T) {
	env := newTestEnv(t, echoTask("default"))
	res, err := env.Engine.InvokeDefault(env.Ctx, "echo", domain.InvokeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "default", res.Namespace)
}

func TestInvokeSerializationFailure(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	_, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{Kwargs: func() {}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSerialization)
	assert.Zero(t, env.Creates.Load())
}

func TestListTasks(t *testing.T) {
	other := echoTask("ns2")
	other.Name = "other"
	other.Spec.Handler = ""
	env := newTestEnv(t, echoTask("ns1"), other)
	infos, err := env.Engine.ListTasks(env.Ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.TaskInfo{
		{Name: "echo", Namespace: "ns1", Image: "busybox", Handler: "h"},
		{Name: "other", Namespace: "ns2", Image: "busybox", Handler: "handler"},
	}, infos)
}

func TestListTasksEmptyStore(t *testing.T) {
	env := newTestEnv(t)
	infos, err := env.Engine.ListTasks(env.Ctx)
	require.NoError(t, err)
	assert.NotNil(t, infos)
	assert.Empty(t, infos)
}

func TestGetTask(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	task, err := env.Engine.GetTask(env.Ctx, "ns1", "echo")
	require.NoError(t, err)
	assert.Equal(t, "busybox", task.Spec.Image)

	_, err = env.Engine.GetTask(env.Ctx, "ns1", "nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestInvocationsJournal(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(env.Ctx, conn))
	env.Engine.Journal = journal.Writer{DB: conn}

	res, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{RequestID: ptr.To("r1")})
	require.NoError(t, err)

	invs, err := env.Engine.Invocations(env.Ctx, "ns1", "echo", 10)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, "r1", invs[0].RequestID)
	assert.Equal(t, res.JobName, invs[0].JobName)
}

func TestInvocationsWithoutJournal(t *testing.T) {
	env := newTestEnv(t)
	invs, err := env.Engine.Invocations(env.Ctx, "ns1", "echo", 10)
	require.NoError(t, err)
	assert.Empty(t, invs)
}

type failingJournal struct{}

func (failingJournal) Append(context.Context, domain.Invocation) error {
	return errors.New("disk full")
}

func (failingJournal) List(context.Context, string, string, int) ([]domain.Invocation, error) {
	return nil, errors.New("disk full")
}

func TestJournalFailureDoesNotFailInvoke(t *testing.T) {
	env := newTestEnv(t, echoTask("ns1"))
	env.Engine.Journal = failingJournal{}
	res, err := env.Engine.Invoke(env.Ctx, "ns1", "echo", domain.InvokeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "accepted", res.Status)
}
