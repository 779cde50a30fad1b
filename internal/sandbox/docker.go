package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/retry"
)

const outputTruncatedMsg = "\n... output truncated ..."

var _ Manager = (*DockerManager)(nil)

// DockerManager runs containers on a Docker daemon.
type DockerManager struct {
	cli    *client.Client
	logger *zap.Logger
}

// NewDockerClient connects to the daemon described by the environment
// (DOCKER_HOST and friends) and pings it so startup fails fast.
func NewDockerClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: ping docker daemon: %w", domain.ErrRuntimeUnavailable, err)
	}
	return cli, nil
}

// NewDockerManager wraps an existing client. The client is shared by all judges.
func NewDockerManager(cli *client.Client, logger *zap.Logger) *DockerManager {
	return &DockerManager{cli: cli, logger: logger}
}

func (m *DockerManager) RemoveIfExists(ctx context.Context, name string) error {
	err := m.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err == nil || cerrdefs.IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("%w: remove %s: %w", domain.ErrRuntimeUnavailable, name, err)
}

func (m *DockerManager) Create(ctx context.Context, name, image string, env []string) (Handle, error) {
	resp, err := m.cli.ContainerCreate(ctx, &container.Config{
		Image: image,
		Env:   env,
	}, &container.HostConfig{}, nil, nil, name)
	if err != nil {
		wrapped := fmt.Errorf("%w: create %s: %w", domain.ErrRuntimeUnavailable, name, err)
		if cerrdefs.IsNotFound(err) || cerrdefs.IsInvalidArgument(err) {
			// Missing image or bad config will not fix itself.
			return Handle{}, retry.Permanent(wrapped)
		}
		return Handle{}, wrapped
	}
	for _, w := range resp.Warnings {
		m.logger.Warn("Docker create warning", zap.String("container", name), zap.String("warning", w))
	}
	return Handle{ID: resp.ID, Name: name}, nil
}

func (m *DockerManager) Upload(ctx context.Context, h Handle, path string, archive []byte) error {
	err := m.cli.CopyToContainer(ctx, h.ID, path, bytes.NewReader(archive), container.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("%w: upload to %s:%s: %w", domain.ErrRuntimeUnavailable, h.Name, path, err)
	}
	return nil
}

func (m *DockerManager) Start(ctx context.Context, h Handle) error {
	if err := m.cli.ContainerStart(ctx, h.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start %s: %w", domain.ErrRuntimeUnavailable, h.Name, err)
	}
	return nil
}

func (m *DockerManager) Await(ctx context.Context, h Handle) (ExitStatus, error) {
	statusCh, errCh := m.cli.ContainerWait(ctx, h.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return ExitStatus{}, ctx.Err()
		}
		return ExitStatus{}, fmt.Errorf("%w: wait %s: %w", domain.ErrRuntimeUnavailable, h.Name, err)
	case status := <-statusCh:
		exit := ExitStatus{Code: status.StatusCode}
		if status.Error != nil {
			exit.Error = status.Error.Message
		}
		return exit, nil
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	}
}

func (m *DockerManager) Logs(ctx context.Context, h Handle, limit int) ([]byte, error) {
	rc, err := m.cli.ContainerLogs(ctx, h.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("%w: logs %s: %w", domain.ErrRuntimeUnavailable, h.Name, err)
	}
	defer rc.Close()

	buf := &cappedBuffer{limit: limit}
	if _, err := stdcopy.StdCopy(buf, buf, rc); err != nil && err != io.EOF {
		return buf.Bytes(), fmt.Errorf("demultiplex logs %s: %w", h.Name, err)
	}
	return buf.Bytes(), nil
}

func (m *DockerManager) Remove(ctx context.Context, h Handle) error {
	err := m.cli.ContainerRemove(ctx, h.ID, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("%w: remove %s: %w", domain.ErrRuntimeUnavailable, h.Name, err)
	}
	return nil
}

// cappedBuffer keeps the first limit bytes written to it and drops the rest
// while still reporting full writes.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	switch {
	case room <= 0:
		b.truncated = b.truncated || len(p) > 0
	case len(p) > room:
		b.buf.Write(p[:room])
		b.truncated = true
	default:
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	if !b.truncated {
		return b.buf.Bytes()
	}
	out := make([]byte, 0, b.buf.Len()+len(outputTruncatedMsg))
	out = append(out, b.buf.Bytes()...)
	return append(out, outputTruncatedMsg...)
}
