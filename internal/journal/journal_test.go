package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/migrate"
)

func newWriter(t *testing.T) Writer {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return Writer{DB: conn}
}

func TestAppendAndListNewestFirst(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Append(ctx, domain.Invocation{
			RequestID:  fmt.Sprintf("req-%d", i),
			JobName:    fmt.Sprintf("echo-%d", base.Unix()+int64(i)),
			Namespace:  "ns1",
			TaskName:   "echo",
			AcceptedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, w.Append(ctx, domain.Invocation{RequestID: "other", JobName: "x-1", Namespace: "ns2", TaskName: "echo", AcceptedAt: base}))

	got, err := w.List(ctx, "ns1", "echo", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "req-2", got[0].RequestID)
	assert.Equal(t, "req-0", got[2].RequestID)
	assert.True(t, got[0].AcceptedAt.Equal(base.Add(2*time.Second)))

	limited, err := w.List(ctx, "ns1", "echo", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "req-2", limited[0].RequestID)
}

func TestListEmpty(t *testing.T) {
	got, err := newWriter(t).List(context.Background(), "ns1", "none", 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
