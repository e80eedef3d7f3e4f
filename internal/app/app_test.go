package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealwatch/internal/storage"
)

const rainbowBody = `{"Destynacje":[
 {"Panstwo":"Hiszpania","Nazwa":"Majorka","Klucz":"PMI","Cena":"1 299","TerminWyjazdu":"2024-08-12T00:00:00Z",
  "DataLayer":{"name":"Majorka WAW - PMI 12/08/2024","brand":"Rainbow"}},
 {"Panstwo":"Grecja","Nazwa":"Kreta","Klucz":"HER","Cena":999,
  "DataLayer":{"name":"Kreta KTW - HER 01/09/2024","brand":"Rainbow"}},
 {"Panstwo":"Grecja","Klucz":"RHO","Cena":899,
  "DataLayer":{"name":"Rodos WAW - RHO 01/09/2024","brand":"Rainbow"}}
]}`

func writeConfig(t *testing.T, dir, url, policy string) string {
	t.Helper()
	body := fmt.Sprintf(`{
  "logging": {"level": "error"},
  "telegram": {"dry_run": true, "chat_id": 7},
  "notify": {"policy": %q},
  "scheduler": {"enabled": false, "schedule": "1h"},
  "storage": {"driver": "file", "path": %q},
  "providers": [{"kind": "rainbow", "enabled": true, "url": %q, "timeout": "2s"}]
}`, policy, filepath.Join(dir, "offers"), url)
	p := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func rainbowServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, rainbowBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunOnce(t *testing.T) {
	dir := t.TempDir()
	srv := rainbowServer(t)
	a, err := New(context.Background(), writeConfig(t, dir, srv.URL, "cycle"))
	require.NoError(t, err)

	sum, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Fetched)
	assert.Equal(t, 1, sum.Filtered)
	assert.Equal(t, 1, sum.Malformed)
	assert.Equal(t, 1, sum.Activated)
	assert.Equal(t, 1, sum.Candidates)
	assert.Equal(t, 1, sum.BatchesSent)

	// Unchanged listing: retained in storage, and notified again because
	// the cycle policy only dedups within one cycle.
	sum, err = a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Activated)
	assert.Equal(t, 1, sum.Retained)
	assert.Equal(t, 1, sum.Candidates)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	// The file store persisted the offer.
	st, err := storage.Open(context.Background(), storage.Config{Driver: "file", Path: filepath.Join(dir, "offers")}, a.log)
	require.NoError(t, err)
	defer st.Close()
	recs, err := st.Offers(context.Background(), storage.Filter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Majorka", recs[0].Destination)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{},"providers":[]}`), 0o600))
	_, err := New(context.Background(), p)
	require.Error(t, err)
}

func TestStartApplyStop(t *testing.T) {
	dir := t.TempDir()
	srv := rainbowServer(t)
	a, err := New(context.Background(), writeConfig(t, dir, srv.URL, "cycle"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.False(t, a.sched.Started())

	next := *a.Config()
	next.Notify.Policy = "activated"
	next.Scheduler.Enabled = true
	a.applyConfig(&next)

	assert.Equal(t, "activated", a.Config().Notify.Policy)
	assert.True(t, a.sched.Started())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx))
	assert.False(t, a.sched.Started())
}

func TestShutdownSignalKeepsCycleContext(t *testing.T) {
	dir := t.TempDir()
	srv := rainbowServer(t)
	a, err := New(context.Background(), writeConfig(t, dir, srv.URL, "cycle"))
	require.NoError(t, err)

	sigCtx, sigCancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(sigCtx))
	sigCancel()
	<-a.Done()
	assert.NoError(t, a.work.Err(), "signal must not cancel cycle work")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx))
	assert.ErrorIs(t, a.work.Err(), context.Canceled)
}
