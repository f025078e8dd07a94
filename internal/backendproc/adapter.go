// Package backendproc implements C1, the backend adapter: it spawns the
// VCS backend CLI as a subprocess, sanitizes every argument against
// injection, and parses its text output into typed records. The backend is
// treated as an opaque, occasionally-lying collaborator: it sometimes
// returns exit code 0 on failure and sometimes writes errors to stdout
// instead of stderr, so every invocation scans both streams for known
// error signatures regardless of exit status.
package backendproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/calvinalkan/auxin/internal/fsx"
)

// MinVersion is the minimum supported backend CLI version (major.minor).
const MinVersion = "0.19"

// ErrBackendFailed wraps every error surfaced by a failed backend
// invocation: non-zero exit, a known error-pattern hit in either stream, or
// a version that doesn't meet MinVersion.
var ErrBackendFailed = errors.New("backend command failed")

// CommitRecord is a single parsed commit as returned by Commit and Log.
type CommitRecord struct {
	ID      string
	Message string
}

// StatusResult is the backend's working-tree status, bucketed by state.
type StatusResult struct {
	Staged    []string
	Modified  []string
	Untracked []string
}

// Branch describes one backend branch.
type Branch struct {
	Name      string
	IsCurrent bool
}

// Adapter invokes the backend CLI as a subprocess and parses its output.
type Adapter struct {
	// BinPath is the backend executable, resolved via exec.LookPath rules
	// (a bare name like "oxen" is looked up on PATH).
	BinPath string

	// Verbose routes a one-line trace of every invocation to this func.
	// Nil disables tracing.
	Verbose func(args []string)

	fs fsx.FS
}

// New returns an Adapter that invokes binPath (e.g. "oxen").
func New(binPath string, fs fsx.FS) *Adapter {
	return &Adapter{BinPath: binPath, fs: fs}
}

// Version returns the backend's reported version string.
func (a *Adapter) Version(ctx context.Context) (string, error) {
	out, err := a.run(ctx, "", "--version")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// VerifyVersion fails unless the backend's (major, minor) version is >=
// MinVersion's.
func (a *Adapter) VerifyVersion(ctx context.Context) error {
	version, err := a.Version(ctx)
	if err != nil {
		return err
	}

	fields := strings.Fields(version)
	versionStr := "unknown"
	if len(fields) > 0 {
		versionStr = fields[len(fields)-1]
	}

	if strings.HasPrefix(versionStr, MinVersion) {
		return nil
	}

	major, minor, ok := majorMinor(versionStr)
	minMajor, minMinor, _ := majorMinor(MinVersion)

	compatible := ok && (major > minMajor || (major == minMajor && minor >= minMinor))
	if !compatible {
		return fmt.Errorf("%w: backend version %s is not compatible, requires %s or newer", ErrBackendFailed, versionStr, MinVersion)
	}

	return nil
}

func majorMinor(v string) (major, minor int, ok bool) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}

	maj, err1 := strconv.Atoi(parts[0])
	minVal, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return maj, minVal, true
}

// Init runs the backend's repository-initialization command.
func (a *Adapter) Init(ctx context.Context, repoPath string) error {
	_, err := a.run(ctx, repoPath, "init")
	return err
}

// Add stages the given paths, each sanitized against repoPath.
func (a *Adapter) Add(ctx context.Context, repoPath string, paths []string) error {
	args := []string{"add"}

	for _, p := range paths {
		clean, err := sanitizePath(a.fs, p, repoPath)
		if err != nil {
			return err
		}
		args = append(args, clean)
	}

	_, err := a.run(ctx, repoPath, args...)
	return err
}

// AddAll stages every change in the working tree.
func (a *Adapter) AddAll(ctx context.Context, repoPath string) error {
	_, err := a.run(ctx, repoPath, "add", ".")
	return err
}

// Commit creates a commit with the given message and returns its record.
func (a *Adapter) Commit(ctx context.Context, repoPath, message string) (CommitRecord, error) {
	clean, err := sanitizeMessage(message)
	if err != nil {
		return CommitRecord{}, err
	}

	out, err := a.run(ctx, repoPath, "commit", "-m", clean)
	if err != nil {
		return CommitRecord{}, err
	}

	id, ok := parseCommitID(out)
	if !ok {
		return CommitRecord{}, fmt.Errorf("%w: could not parse commit id from output: %s", ErrBackendFailed, out)
	}

	return CommitRecord{ID: id, Message: clean}, nil
}

// Log returns the most recent commits, newest first. limit <= 0 means no
// limit.
func (a *Adapter) Log(ctx context.Context, repoPath string, limit int) ([]CommitRecord, error) {
	args := []string{"log"}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}

	out, err := a.run(ctx, repoPath, args...)
	if err != nil {
		return nil, err
	}

	return parseLogOutput(out), nil
}

// Status returns the working tree's staged/modified/untracked buckets.
func (a *Adapter) Status(ctx context.Context, repoPath string) (StatusResult, error) {
	out, err := a.run(ctx, repoPath, "status")
	if err != nil {
		return StatusResult{}, err
	}

	return parseStatusOutput(out), nil
}

// Checkout switches to the given branch or revision.
func (a *Adapter) Checkout(ctx context.Context, repoPath, target string) error {
	_, err := a.run(ctx, repoPath, "checkout", target)
	return err
}

// CreateBranch creates and checks out a new branch.
func (a *Adapter) CreateBranch(ctx context.Context, repoPath, name string) error {
	_, err := a.run(ctx, repoPath, "checkout", "-b", name)
	return err
}

// ListBranches returns every local branch.
func (a *Adapter) ListBranches(ctx context.Context, repoPath string) ([]Branch, error) {
	out, err := a.run(ctx, repoPath, "branch")
	if err != nil {
		return nil, err
	}

	return parseBranchesOutput(out), nil
}

// CurrentBranch returns the checked-out branch's name.
func (a *Adapter) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	out, err := a.run(ctx, repoPath, "branch", "--show-current")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// DeleteBranch force-deletes the named branch.
func (a *Adapter) DeleteBranch(ctx context.Context, repoPath, name string) error {
	_, err := a.run(ctx, repoPath, "branch", "-D", name)
	return err
}

// Push pushes the current branch. remote/branch empty means backend
// defaults.
func (a *Adapter) Push(ctx context.Context, repoPath, remote, branch string) error {
	args := []string{"push"}
	if remote != "" {
		args = append(args, remote)
	}
	if branch != "" {
		args = append(args, branch)
	}

	_, err := a.run(ctx, repoPath, args...)
	return err
}

// PushForce force-pushes the given branch to remote.
func (a *Adapter) PushForce(ctx context.Context, repoPath, remote, branch string) error {
	_, err := a.run(ctx, repoPath, "push", "--force", remote, branch)
	return err
}

// Pull pulls from the configured remote. A missing remote/branch is not
// treated specially here; callers that want "missing branch is success"
// semantics (the locks-branch fetch) inspect the returned error themselves.
func (a *Adapter) Pull(ctx context.Context, repoPath string) error {
	_, err := a.run(ctx, repoPath, "pull")
	return err
}

func (a *Adapter) run(ctx context.Context, dir string, args ...string) (string, error) {
	if a.Verbose != nil {
		a.Verbose(args)
	}

	cmd := exec.CommandContext(ctx, a.BinPath, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	return handleOutput(args, stdout.String(), stderr.String(), runErr)
}

var errorPatterns = []string{
	"revision not found", "not found", "error:", "fatal:", "failed to",
}

// handleOutput implements the dual-stream error scan: the backend is known
// to return exit 0 on failure and sometimes write errors to stdout, so both
// streams are scanned for known patterns regardless of runErr.
func handleOutput(args []string, stdout, stderr string, runErr error) (string, error) {
	stdoutLower := strings.ToLower(stdout)
	stderrLower := strings.ToLower(stderr)

	hasErrorPattern := false
	for _, pattern := range errorPatterns {
		if strings.Contains(stdoutLower, pattern) || strings.Contains(stderrLower, pattern) {
			hasErrorPattern = true
			break
		}
	}

	if hasErrorPattern {
		excerpt := strings.TrimSpace(stderr)
		if excerpt == "" {
			excerpt = strings.TrimSpace(stdout)
		}

		return "", fmt.Errorf("%w: %s\n%s", ErrBackendFailed, strings.Join(args, " "), excerpt)
	}

	if runErr != nil {
		return "", fmt.Errorf("%w: %s\nstderr: %s", ErrBackendFailed, strings.Join(args, " "), strings.TrimSpace(stderr))
	}

	return stdout, nil
}
