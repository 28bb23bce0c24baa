package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsIntervalFlagDefault(t *testing.T) {
	f := rootCmd.PersistentFlags().Lookup("stats-interval")
	require.NotNil(t, f)
	assert.Equal(t, time.Second.String(), f.DefValue)
}

func TestRootFlagsReachConfig(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{
		"--server", "ws://relay:5000/api/ws/signal",
		"--auto",
		"--stats-interval", "750ms",
		"--ice", "stun:a:3478,stun:b:3478",
	}))
	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))

	assert.Equal(t, "ws://relay:5000/api/ws/signal", clientCfg.ServerURL)
	assert.True(t, clientCfg.AutoSelect)
	assert.Equal(t, 750*time.Millisecond, clientCfg.StatsInterval)
	assert.Equal(t, []string{"stun:a:3478", "stun:b:3478"}, clientCfg.ICEServers)
}

func TestStatusCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/items/battery", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","level":73}`))
	})
	mux.HandleFunc("/items/joints", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"joint1","angle":90,"healthy":false}]`))
	})
	mux.HandleFunc("/items/tasks", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"t2","title":"charge","state":"queued"}]`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"status", "--api", ts.URL})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, Execute())
	assert.Contains(t, out.String(), "Battery: healthy 73%")
	assert.Contains(t, out.String(), "joint1")
	assert.Contains(t, out.String(), "FAULT")
	assert.Contains(t, out.String(), "[t2] charge (queued)")
}

func TestViewRejectsExtraArgs(t *testing.T) {
	assert.Error(t, viewCmd.Args(viewCmd, []string{"a", "b"}))
	assert.NoError(t, viewCmd.Args(viewCmd, []string{"a"}))
}
