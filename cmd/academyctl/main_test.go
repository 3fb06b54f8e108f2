package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academy/internal/app"
	"academy/internal/auth"
	"academy/internal/config"
	"academy/internal/store"
)

func memoryApp(t *testing.T) (*app.App, *store.Memory) {
	t.Helper()
	a, err := app.Build(context.Background(), config.App{
		Timezone:         "Asia/Seoul",
		StoreBackend:     "memory",
		BlobBackend:      "memory",
		HubBackend:       "memory",
		QueueBackend:     "memory",
		VisitsBackend:    "memory",
		JWTIssuer:        "academy",
		JWTSigningKey:    "k",
		AccessTTL:        time.Hour,
		NotifyTemplateID: "FEEDBACK_TEMPLATE",
	})
	require.NoError(t, err)
	repo, ok := a.Repo.(*store.Memory)
	require.True(t, ok)
	return a, repo
}

func run(t *testing.T, a *app.App, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func(context.Context) (*app.App, error) { return a, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreateAdminAndIssueToken(t *testing.T) {
	a, _ := memoryApp(t)

	out, err := run(t, a, "create-admin", "--email", "boss@academy.kr", "--name", "원장")
	require.NoError(t, err)
	assert.Contains(t, out, "created admin boss@academy.kr")

	out, err = run(t, a, "issue-token", "--email", "BOSS@academy.kr")
	require.NoError(t, err)
	claims, err := auth.Parse(strings.TrimSpace(out), "k", "academy")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)

	_, err = run(t, a, "issue-token", "--email", "nobody@academy.kr")
	assert.Error(t, err)
}

func TestMigrateInstruments(t *testing.T) {
	a, repo := memoryApp(t)
	repo.ImportLegacyStudent("s1", "김민지", "010-1111-2222", "어린이 피아노 취미", nil, "등록")
	repo.ImportLegacyStudent("s2", "이서준", "010-3333-4444", "", []string{"violin"}, "")

	out, err := run(t, a, "instruments")
	require.NoError(t, err)
	assert.Contains(t, out, "어린이 피아노 취미")

	out, err = run(t, a, "migrate-instruments", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "would update 1 students\n", out)

	out, err = run(t, a, "migrate-instruments")
	require.NoError(t, err)
	assert.Equal(t, "updated 1 students\n", out)

	out, err = run(t, a, "migrate-instruments", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "would update 0 students\n", out)

	out, err = run(t, a, "instruments")
	require.NoError(t, err)
	assert.NotContains(t, out, "어린이")
}

func TestCheckIndex(t *testing.T) {
	a, repo := memoryApp(t)
	out, err := run(t, a, "check-index")
	require.NoError(t, err)
	assert.Equal(t, "index ok\n", out)

	repo.DropRangeIndex()
	out, err = run(t, a, "check-index")
	assert.Error(t, err)
	assert.Contains(t, out, store.RangeIndex)
}

func TestTestNotifySimulatesWithoutKeys(t *testing.T) {
	a, _ := memoryApp(t)
	out, err := run(t, a, "test-notify", "--phone", "010-1234-5678")
	require.NoError(t, err)
	assert.Contains(t, out, "simulated")
}
