package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	"k8s.io/client-go/rest"

	"taskline/internal/domain"
)

func TestNewSchemeKnowsTasksAndJobs(t *testing.T) {
	scheme, err := NewScheme()
	require.NoError(t, err)

	gvks, _, err := scheme.ObjectKinds(&domain.Task{})
	require.NoError(t, err)
	assert.Equal(t, "lambda.example.com", gvks[0].Group)
	assert.Equal(t, "Task", gvks[0].Kind)

	gvks, _, err = scheme.ObjectKinds(&batchv1.Job{})
	require.NoError(t, err)
	assert.Equal(t, "Job", gvks[0].Kind)
}

func TestOpenJournalMigrates(t *testing.T) {
	conn, err := openJournal(context.Background(), filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	defer conn.Close()

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM invocations`).Scan(&n))
	assert.Zero(t, n)
}

func TestPingUnreachableAPIServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := ping(&rest.Config{Host: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrchestrator)
}

func TestPingReachableAPIServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"major":"1","minor":"31","gitVersion":"v1.31.0"}`))
	}))
	defer srv.Close()

	require.NoError(t, ping(&rest.Config{Host: srv.URL}))
}
