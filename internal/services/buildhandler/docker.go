package buildhandler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/crab-bench/crab-server/internal/common"
)

var (
	dockerOnce sync.Once
	dockerCli  *client.Client
	dockerErr  error
)

// dockerClient returns the process-wide Docker client. All build
// containers share it; each container is owned by one worker.
func dockerClient() (*client.Client, error) {
	dockerOnce.Do(func() {
		dockerCli, dockerErr = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	})
	if dockerErr != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", dockerErr)
	}
	return dockerCli, nil
}

// buildContainer is one long-running build container with the repository
// bind-mounted at /repo. It is kept alive with a tail process and torn
// down with Kill+Remove.
type buildContainer struct {
	logger *common.Logger
	cli    *client.Client
	id     string
}

// startContainer launches image with repo mounted at /repo, running as
// the host uid:gid so created files stay writable after teardown.
func startContainer(ctx context.Context, logger *common.Logger, image, repo string) (*buildContainer, error) {
	cli, err := dockerClient()
	if err != nil {
		return nil, err
	}

	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image: image,
			Cmd:   []string{"tail", "-f", "/dev/null"},
			User:  fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
			Tty:   true,
		},
		&container.HostConfig{
			Binds: []string{repo + ":/repo"},
		},
		nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create %s container: %w", image, err)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start %s container: %w", image, err)
	}

	logger.Debug().
		Str("image", image).
		Str("container_id", created.ID[:12]).
		Str("repo", repo).
		Msg("Build container started")

	return &buildContainer{logger: logger, cli: cli, id: created.ID}, nil
}

// run executes cmd inside the container and returns its combined output
// and exit code. Cancelling ctx aborts the stream and surfaces ctx.Err().
func (c *buildContainer) run(ctx context.Context, cmd []string) (string, int, error) {
	execCreated, err := c.cli.ContainerExecCreate(ctx, c.id, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   "/repo",
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", -1, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := c.cli.ContainerExecAttach(ctx, execCreated.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", -1, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&buf, &buf, attach.Reader)
		done <- copyErr
	}()

	select {
	case <-ctx.Done():
		attach.Close()
		<-done
		return buf.String(), -1, ctx.Err()
	case copyErr := <-done:
		if copyErr != nil {
			return buf.String(), -1, fmt.Errorf("failed to read exec output: %w", copyErr)
		}
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, execCreated.ID)
	if err != nil {
		return buf.String(), -1, fmt.Errorf("failed to inspect exec: %w", err)
	}
	return buf.String(), inspect.ExitCode, nil
}

// teardown kills and removes the container. Runs on a background
// context so it still works when the step context is already dead.
func (c *buildContainer) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.cli.ContainerKill(ctx, c.id, "KILL"); err != nil {
		c.logger.Warn().Err(err).Str("container_id", c.id[:12]).Msg("Failed to kill build container")
	}
	if err := c.cli.ContainerRemove(ctx, c.id, container.RemoveOptions{Force: true}); err != nil {
		c.logger.Warn().Err(err).Str("container_id", c.id[:12]).Msg("Failed to remove build container")
	} else {
		c.logger.Debug().Str("container_id", c.id[:12]).Msg("Build container removed")
	}
}
