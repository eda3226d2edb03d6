package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuchuanwang/RedisClient/miniredistest"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}

func TestIsExecutable(t *testing.T) {
	dir := t.TempDir()
	exe := writeExecutable(t, dir, "tool")
	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("data"), 0o644))

	assert.True(t, isExecutable(exe))
	assert.False(t, isExecutable(plain))
	assert.False(t, isExecutable(dir))
	assert.False(t, isExecutable(filepath.Join(dir, "missing")))
}

func TestFindServerExecutableOnPath(t *testing.T) {
	dir := t.TempDir()
	want := writeExecutable(t, dir, serverExecutableName)
	t.Setenv("PATH", dir)

	got, err := findServerExecutable()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindServerExecutableMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, dir := range []string{"/usr/local/bin", "/opt/homebrew/bin"} {
		if isExecutable(filepath.Join(dir, serverExecutableName)) {
			t.Skipf("%s is installed in %s", serverExecutableName, dir)
		}
	}

	_, err := findServerExecutable()
	assert.ErrorContains(t, err, "not found")

	_, err = launchServer(context.Background(), 6399, hclog.NewNullLogger())
	assert.ErrorContains(t, err, "could not find")
}

func TestWaitForPort(t *testing.T) {
	srv := miniredistest.Start(t)
	assert.NoError(t, waitForPort(context.Background(), srv.Addr(), time.Second))

	addr := "127.0.0.1:" + strconv.Itoa(closedPort(t))
	start := time.Now()
	err := waitForPort(context.Background(), addr, 300*time.Millisecond)
	assert.ErrorContains(t, err, "timeout waiting for "+addr)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLaunchedServerStopIsNilSafe(t *testing.T) {
	var srv *launchedServer
	srv.Stop()
}
