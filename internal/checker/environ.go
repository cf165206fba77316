package checker

import (
	"fmt"
	"os"
	"strings"
)

// patchedEnviron copies the process environment with envPath prepended to
// PATH, so a checker can be shipped with its own helper binaries alongside
// the main one, matching get_patched_environ's contract.
func patchedEnviron(envPath string) []string {
	env := os.Environ()
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = fmt.Sprintf("PATH=%s:%s", envPath, kv[len("PATH="):])
			return env
		}
	}
	return append(env, "PATH="+envPath)
}
