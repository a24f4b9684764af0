package main

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/tickos/internal/actions"
	"github.com/fentz26/tickos/internal/config"
	"github.com/fentz26/tickos/internal/controlplane"
	"github.com/fentz26/tickos/internal/scheduler"
)

func TestStarterConfig(t *testing.T) {
	cfg := starterConfig()
	require.NoError(t, cfg.Validate())

	path := filepath.Join(t.TempDir(), "tickos.yaml")
	require.NoError(t, config.Save(path, cfg))
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Tasks, 3)
	assert.Len(t, loaded.Events, 1)

	sched, err := scheduler.New(loaded.Config)
	require.NoError(t, err)
	b := actions.NewBuilder(sched, loaded.MsToTicks, nil)
	require.NoError(t, b.Install(sched, loaded), "starter workload installs cleanly")
}

func TestParseHelpers(t *testing.T) {
	n, err := parseIndex("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = parseIndex("-1")
	assert.Error(t, err)

	id, err := parseID("event", "65535")
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), id)
	_, err = parseID("event", "65536")
	assert.ErrorContains(t, err, "invalid event id")

	ms, err := parseMs("250")
	require.NoError(t, err)
	assert.Equal(t, uint32(250), ms)
	_, err = parseMs("0")
	assert.Error(t, err)

	assert.Equal(t, "abcdefgh", truncateID("abcdefgh-1234"))
	assert.Equal(t, "long...", truncate("longername", 7))
}

func TestAPIClient(t *testing.T) {
	cfg := config.DefaultConfig()
	sched, err := scheduler.New(cfg.Config)
	require.NoError(t, err)
	require.NoError(t, sched.AddTask(0, "heartbeat", func(any) {}, nil, 100))

	srv := httptest.NewServer(controlplane.NewServer(controlplane.NewService(sched, cfg), "127.0.0.1:0", nil).Handler())
	defer srv.Close()

	old := apiAddr
	apiAddr = srv.URL
	defer func() { apiAddr = old }()

	health, err := CheckHealth(apiClient)
	require.NoError(t, err)
	assert.True(t, health.OK)
	assert.Equal(t, "disabled", health.DB)

	var tasks []controlplane.TaskView
	require.NoError(t, apiGet("/tasks", &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "heartbeat", tasks[0].Name)

	require.NoError(t, apiPost("/tasks/0/sleep", controlplane.DurationRequest{Ms: 40}))
	info, err := sched.Task(0)
	require.NoError(t, err)
	assert.True(t, info.Sleeping)

	require.NoError(t, apiPut("/delays/9", controlplane.DurationRequest{Ms: 5}))
	assert.False(t, sched.DelayDone(9))
	require.NoError(t, apiDelete("/delays/9"))

	err = apiPost("/events/4/trigger", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "404"), err.Error())
}
