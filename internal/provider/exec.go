package provider

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// containerExec runs a command inside an agent container and returns its
// stdout. Non-zero exit codes are errors carrying the tail of stderr.
func containerExec(ctx context.Context, cli *client.Client, containerID string, cmd []string) (string, error) {
	execConfig := container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	}

	resp, err := cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return "", fmt.Errorf("create exec in container %s: %w", containerID, err)
	}

	attachResp, err := cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{})
	if err != nil {
		return "", fmt.Errorf("attach exec in container %s: %w", containerID, err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader); err != nil {
		return "", fmt.Errorf("read exec output from container %s: %w", containerID, err)
	}

	inspect, err := cli.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return "", fmt.Errorf("inspect exec in container %s: %w", containerID, err)
	}
	if inspect.ExitCode != 0 {
		slog.Debug("Container exec failed",
			"container_id", containerID,
			"exit_code", inspect.ExitCode,
			"stderr_tail", tail(stderr.String(), 512))
		return "", fmt.Errorf("command exited with code %d in container %s: %s",
			inspect.ExitCode, containerID, tail(stderr.String(), 512))
	}

	return stdout.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
