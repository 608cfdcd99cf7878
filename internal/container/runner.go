// Package container runs agent subprocesses in Docker. Each run gets a
// fresh container with the group's folder and IPC directory bind-mounted,
// receives its input as one JSON line on stdin, and reports its outcome
// as one JSON line on stdout.
package container

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	dockerclient "github.com/moby/moby/client"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

const namePrefix = "nanoclaw-"

const maxOutputLine = 1 * 1024 * 1024

// Config tunes the agent container runtime.
type Config struct {
	Image          string
	GroupsDir      string
	DataDir        string
	MemoryLimit    string
	CPULimit       float64
	PidsLimit      int64
	DefaultTimeout time.Duration
}

// Runner creates and drives agent containers.
type Runner struct {
	client *dockerclient.Client
	cfg    Config
	logger *logger.Logger
}

func NewRunner(cfg Config, log *logger.Logger) (*Runner, error) {
	cli, err := dockerclient.New(dockerclient.WithAPIVersionNegotiation(), dockerclient.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}
	if _, err := cli.Ping(context.Background(), dockerclient.PingOptions{NegotiateAPIVersion: true}); err != nil {
		return nil, fmt.Errorf("Docker daemon not available: %w", err)
	}
	return &Runner{client: cli, cfg: cfg, logger: log}, nil
}

func (r *Runner) Close() error {
	return r.client.Close()
}

// Handle identifies one running agent container for forced termination.
type Handle struct {
	client *dockerclient.Client
	id     string
}

// Terminate stops the container with a short grace period, then removes it.
func (h *Handle) Terminate(ctx context.Context) error {
	timeout := 5
	if _, err := h.client.ContainerStop(ctx, h.id, dockerclient.ContainerStopOptions{Timeout: &timeout}); err != nil {
		return err
	}
	_, err := h.client.ContainerRemove(ctx, h.id, dockerclient.ContainerRemoveOptions{Force: true})
	return err
}

// Run executes one agent invocation and blocks until it finishes, fails,
// or exceeds the timeout. A timeout is an error outcome, never a silent
// success.
func (r *Runner) Run(ctx context.Context, group *store.RegisteredGroup, input AgentInput, onStart StartedFn, timeout time.Duration) (*AgentOutput, error) {
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	name := fmt.Sprintf("%s%s-%d", namePrefix, group.Folder, time.Now().UnixMilli())

	groupDir := filepath.Join(r.cfg.GroupsDir, group.Folder)
	ipcDir := filepath.Join(r.cfg.DataDir, "ipc", group.Folder)
	for _, dir := range []string{groupDir, filepath.Join(ipcDir, "messages"), filepath.Join(ipcDir, "tasks")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	mounts := []mount.Mount{
		{Type: mount.TypeBind, Source: groupDir, Target: "/workspace/group"},
		{Type: mount.TypeBind, Source: ipcDir, Target: "/workspace/ipc"},
	}
	if group.ContainerConfig != nil {
		for _, m := range group.ContainerConfig.AdditionalMounts {
			mounts = append(mounts, mount.Mount{
				Type:     mount.TypeBind,
				Source:   expandHome(m.HostPath),
				Target:   filepath.Join("/workspace", m.ContainerPath),
				ReadOnly: m.ReadOnly,
			})
		}
	}

	created, err := r.client.ContainerCreate(ctx, dockerclient.ContainerCreateOptions{
		Name:  name,
		Image: r.cfg.Image,
		Config: &container.Config{
			Image:        r.cfg.Image,
			OpenStdin:    true,
			StdinOnce:    true,
			AttachStdin:  true,
			AttachStdout: true,
			Env: []string{
				"NANOCLAW_GROUP_FOLDER=" + group.Folder,
				fmt.Sprintf("NANOCLAW_IS_MAIN=%t", input.IsMain),
			},
		},
		HostConfig: &container.HostConfig{
			Resources: container.Resources{
				Memory:    parseMemory(r.cfg.MemoryLimit),
				NanoCPUs:  int64(r.cfg.CPULimit * 1e9),
				PidsLimit: pidsLimit(r.cfg.PidsLimit),
			},
			Mounts:      mounts,
			SecurityOpt: []string{"no-new-privileges"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	id := created.ID

	// The container is always removed, whatever path the run takes.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		stopTimeout := 5
		if _, err := r.client.ContainerStop(cleanupCtx, id, dockerclient.ContainerStopOptions{Timeout: &stopTimeout}); err != nil {
			r.logger.Debug("container stop failed",
				logger.Field{Key: "container", Value: name},
				logger.Field{Key: "error", Value: err})
		}
		if _, err := r.client.ContainerRemove(cleanupCtx, id, dockerclient.ContainerRemoveOptions{Force: true}); err != nil {
			r.logger.Warn("container remove failed",
				logger.Field{Key: "container", Value: name},
				logger.Field{Key: "error", Value: err})
		}
	}()

	attached, err := r.client.ContainerAttach(ctx, id, dockerclient.ContainerAttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container: %w", err)
	}
	hijack := attached.HijackedResponse
	defer hijack.Close()

	if _, err := r.client.ContainerStart(ctx, id, dockerclient.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	r.logger.Info("agent container started",
		logger.Field{Key: "container", Value: name},
		logger.Field{Key: "group", Value: group.Folder},
		logger.Field{Key: "timeout", Value: timeout.String()})

	if onStart != nil {
		onStart(&Handle{client: r.client, id: id}, name)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent input: %w", err)
	}
	if _, err := hijack.Conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write agent input: %w", err)
	}
	if err := hijack.CloseWrite(); err != nil {
		r.logger.Debug("close write failed",
			logger.Field{Key: "container", Value: name},
			logger.Field{Key: "error", Value: err})
	}

	output, err := r.awaitOutput(ctx, hijack.Reader, timeout)
	if err != nil {
		return nil, fmt.Errorf("agent run %s: %w", name, err)
	}
	return output, nil
}

// awaitOutput scans the container's stdout for the one line that parses
// as an AgentOutput. Everything else (agent logging, stream framing) is
// skipped.
func (r *Runner) awaitOutput(ctx context.Context, reader *bufio.Reader, timeout time.Duration) (*AgentOutput, error) {
	type scanResult struct {
		output *AgentOutput
		err    error
	}
	resultCh := make(chan scanResult, 1)

	go func() {
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), maxOutputLine)
		for scanner.Scan() {
			line := scanner.Bytes()
			if idx := bytes.IndexByte(line, '{'); idx >= 0 {
				line = line[idx:]
			}
			var out AgentOutput
			if err := json.Unmarshal(line, &out); err != nil {
				continue
			}
			if out.Status == "" {
				continue
			}
			resultCh <- scanResult{output: &out}
			return
		}
		err := scanner.Err()
		if err == nil {
			err = fmt.Errorf("container exited without producing output")
		}
		resultCh <- scanResult{err: err}
	}()

	select {
	case res := <-resultCh:
		return res.output, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CleanupStale force-removes containers left over from a previous run.
func (r *Runner) CleanupStale(ctx context.Context) {
	listed, err := r.client.ContainerList(ctx, dockerclient.ContainerListOptions{All: true})
	if err != nil {
		r.logger.Warn("stale container listing failed",
			logger.Field{Key: "error", Value: err})
		return
	}

	for _, c := range listed.Items {
		stale := false
		var staleName string
		for _, n := range c.Names {
			if strings.HasPrefix(strings.TrimPrefix(n, "/"), namePrefix) {
				stale = true
				staleName = strings.TrimPrefix(n, "/")
				break
			}
		}
		if !stale {
			continue
		}
		r.logger.Info("removing stale agent container",
			logger.Field{Key: "container", Value: staleName})
		if _, err := r.client.ContainerRemove(ctx, c.ID, dockerclient.ContainerRemoveOptions{Force: true}); err != nil {
			r.logger.Warn("stale container remove failed",
				logger.Field{Key: "container", Value: staleName},
				logger.Field{Key: "error", Value: err})
		}
	}
}

// pidsLimit converts a config value to the Docker resource form, where
// nil means no limit.
func pidsLimit(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	return &n
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func parseMemory(s string) int64 {
	if s == "" {
		return 0
	}
	s = strings.TrimSpace(strings.ToLower(s))

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "g"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "k"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "k")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}
