// Package rundir implements the PID file and daemon stdout/stderr redirect:
// persisted state is optional, but when requested it lives under
// ~/.corridor/run/.
package rundir

import (
	"fmt"
	"os"
	"path/filepath"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// Dir returns ~/.corridor/run, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", cerrors.NewBootstrapError("rundir_home", err)
	}
	dir := filepath.Join(home, ".corridor", "run")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", cerrors.NewBootstrapError("rundir_mkdir", err)
	}
	return dir, nil
}

// WritePIDFile writes the current process ID to <rundir>/<name>.pid and
// returns the path, for a later caller (or a process manager) to read and
// signal/clean up.
func WritePIDFile(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".pid")
	content := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", cerrors.NewBootstrapError("rundir_pidfile", err)
	}
	return path, nil
}

// RemovePIDFile deletes the PID file written by WritePIDFile. Missing-file
// is not an error: the daemon may already have cleaned up.
func RemovePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// RedirectStdio reopens stdout and stderr onto <rundir>/<name>.log, used
// when --daemonize detaches the process from its controlling terminal.
func RedirectStdio(name string) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return cerrors.NewBootstrapError("rundir_redirect", err)
	}
	os.Stdout = f
	os.Stderr = f
	return nil
}
