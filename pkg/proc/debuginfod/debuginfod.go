// Package debuginfod fetches separate debug info files from a debuginfod
// server through the debuginfod-find client.
package debuginfod

import (
	"os"
	"os/exec"
	"strings"
)

const (
	debuginfodMaxtimeEnv = "DEBUGINFOD_MAXTIME"
	debuginfodTimeoutEnv = "DEBUGINFOD_TIMEOUT"
	debuginfodURLsEnv    = "DEBUGINFOD_URLS"
)

// FindCommand is the client executed to query the server.
var FindCommand = "debuginfod-find"

func execFind(args ...string) (string, error) {
	path, err := exec.LookPath(FindCommand)
	if err != nil {
		return "", err
	}
	cmd := exec.Command(path, args...)
	if os.Getenv(debuginfodMaxtimeEnv) == "" || os.Getenv(debuginfodTimeoutEnv) == "" {
		cmd.Env = append(os.Environ(), debuginfodMaxtimeEnv+"=1", debuginfodTimeoutEnv+"=1")
	}
	out, err := cmd.Output() // stderr is discarded
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Enabled reports whether a debuginfod server is configured.
func Enabled() bool {
	return os.Getenv(debuginfodURLsEnv) != ""
}

// GetDebuginfo returns the path of the cached debug info file for the
// object with hex encoded build id buildid, downloading it if needed.
func GetDebuginfo(buildid string) (string, error) {
	return execFind("debuginfo", buildid)
}

// GetExecutable is like GetDebuginfo but returns the object itself.
func GetExecutable(buildid string) (string, error) {
	return execFind("executable", buildid)
}
