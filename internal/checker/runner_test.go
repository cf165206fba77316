package checker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/domain"
)

func TestCheckerCommand(t *testing.T) {
	team := Team{ID: 1, IP: "10.60.1.1"}
	task := TaskSpec{ID: 1, Checker: "/checkers/web/checker"}
	flag := &FlagArgs{PrivateFlagData: "priv", Flag: "FLAG=abc", VulnNumber: 2}

	assert.Equal(t, []string{"/checkers/web/checker", "check", "10.60.1.1"}, checkerCommand(domain.ActionCheck, team, task, nil))
	assert.Equal(t, []string{"/checkers/web/checker", "put", "10.60.1.1", "priv", "FLAG=abc", "2"}, checkerCommand(domain.ActionPut, team, task, flag))
	assert.Equal(t, []string{"/checkers/web/checker", "get", "10.60.1.1", "priv", "FLAG=abc", "2"}, checkerCommand(domain.ActionGet, team, task, flag))
}

func TestRunGenericCommand_SuccessExitCode(t *testing.T) {
	script := filepath.Join(t.TempDir(), "checker.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho ok\nexit 101\n"), 0o755))
	task := TaskSpec{ID: 1, Checker: script, CheckerTimeout: 5 * time.Second}
	team := Team{ID: 1, IP: "127.0.0.1"}

	// The script exits 101 (UP) and prints "ok" as its public message.
	v := runGenericCommand(context.Background(), domain.ActionCheck, team, task, nil)
	assert.Equal(t, domain.StatusUp, v.Status)
	assert.Equal(t, "ok", v.PublicMessage)
}

func TestTruncate(t *testing.T) {
	big := make([]byte, 2000)
	for i := range big {
		big[i] = 'a'
	}
	out := truncate(big)
	assert.Len(t, out, outputLimit)
}

func TestPatchedEnviron(t *testing.T) {
	env := patchedEnviron("/opt/checker/bin")
	found := false
	for _, kv := range env {
		if len(kv) > 5 && kv[:5] == "PATH=" {
			found = true
			assert.Contains(t, kv, "/opt/checker/bin")
		}
	}
	assert.True(t, found)
}
