package preflight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const executorProbeTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDataDirectory verifies that the data directory can be replaced: its
// parent must be writable, and an existing directory must be accessible.
func CheckDataDirectory(path string) Result {
	const name = "Data directory"
	parent := CheckDirectoryAccess(name, filepath.Dir(path))
	if !parent.Passed {
		parent.Detail = "parent " + parent.Detail
		return parent
	}
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	}
	result := CheckDirectoryAccess(name, path)
	if result.Passed {
		result.Detail = fmt.Sprintf("%s (exists; will be replaced)", path)
	}
	return result
}

// CheckLogDirectory verifies the log directory, which is created on demand.
func CheckLogDirectory(path string) Result {
	const name = "Log directory"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	}
	return CheckDirectoryAccess(name, path)
}

// CheckExecutor probes the GraphQL executor with a trivial query. The
// runtime only listens while serving, so a failure here is expected outside
// a bootstrap run.
func CheckExecutor(ctx context.Context, url, credential string) Result {
	const name = "GraphQL executor"

	url = strings.TrimSpace(url)
	if url == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, executorProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodPost, url, bytes.NewBufferString(`{"query":"{ __typename }"}`))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("probe failed (%v)", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if credential = strings.TrimSpace(credential); credential != "" {
		req.Header.Set("Authorization", credential)
	}

	client := &http.Client{Timeout: executorProbeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeProbeError(url, err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: url + " (reachable)"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: url + " (auth failed; check admin_credential)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("%s (http %d)", url, resp.StatusCode)}
	}
}

func summarizeProbeError(url string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return url + " (timed out)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return url + " (timed out)"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return url + " (not listening; runtime is only up during a run)"
	}
	return fmt.Sprintf("%s (%v)", url, err)
}
