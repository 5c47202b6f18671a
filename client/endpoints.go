package client

import (
	"context"
	"net/url"
	"strconv"

	httperrors "github.com/nczempin/enginestream/errors"
	"github.com/nczempin/enginestream/protocol"
	"github.com/nczempin/enginestream/stream"
)

func requireID(kind, id string) error {
	if id == "" {
		return httperrors.NewInvalidArgumentError(kind + " id is empty")
	}
	return nil
}

func boolParam(q url.Values, key string, v bool) {
	if v {
		q.Set(key, "1")
	}
}

// Ping checks that the daemon is reachable. It is not versioned so it works
// against daemons that do not support the client's API version.
func (c *Client) Ping(ctx context.Context) (PingResult, error) {
	env, err := c.Do(ctx, &protocol.HttpRequest{Method: protocol.MethodGet, Path: "/_ping"}, nil)
	if err != nil {
		return PingResult{}, err
	}

	return PingResult{
		APIVersion: env.Header("Api-Version"),
		OSType:     env.Header("Ostype"),
		Status:     string(env.Data),
	}, nil
}

// ContainerInspect returns low-level information about a container.
func (c *Client) ContainerInspect(ctx context.Context, containerID string) (*ContainerJSON, error) {
	if err := requireID("container", containerID); err != nil {
		return nil, err
	}

	var out ContainerJSON
	req := &protocol.HttpRequest{Method: protocol.MethodGet, Path: c.versioned("/containers/%s/json", url.PathEscape(containerID))}
	if _, err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContainerExec creates an exec instance in a running container.
func (c *Client) ContainerExec(ctx context.Context, containerID string, config ExecConfig) (IDResponse, error) {
	if err := requireID("container", containerID); err != nil {
		return IDResponse{}, err
	}
	if len(config.Cmd) == 0 {
		return IDResponse{}, httperrors.NewInvalidArgumentError("exec command is empty")
	}

	req, err := jsonRequest(protocol.MethodPost, c.versioned("/containers/%s/exec", url.PathEscape(containerID)), nil, config)
	if err != nil {
		return IDResponse{}, err
	}

	var out IDResponse
	if _, err := c.Do(ctx, req, &out); err != nil {
		return IDResponse{}, err
	}
	return out, nil
}

// ExecInspect returns the state of an exec instance, including its exit code
// once it has finished.
func (c *Client) ExecInspect(ctx context.Context, execID string) (*ExecInspect, error) {
	if err := requireID("exec", execID); err != nil {
		return nil, err
	}

	var out ExecInspect
	req := &protocol.HttpRequest{Method: protocol.MethodGet, Path: c.versioned("/exec/%s/json", url.PathEscape(execID))}
	if _, err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecResize resizes the TTY of an exec instance.
func (c *Client) ExecResize(ctx context.Context, execID string, size ResizeOptions) error {
	if err := requireID("exec", execID); err != nil {
		return err
	}

	q := url.Values{}
	q.Set("h", strconv.FormatUint(uint64(size.Height), 10))
	q.Set("w", strconv.FormatUint(uint64(size.Width), 10))
	req := &protocol.HttpRequest{Method: protocol.MethodPost, Path: c.versioned("/exec/%s/resize", url.PathEscape(execID)), Query: q}
	_, err := c.Do(ctx, req, nil)
	return err
}

// ExecStart starts an exec instance and streams its output. The decode mode
// follows config.Tty. A detached start returns as soon as the daemon
// accepted it, with a completed Result and no consumer callbacks.
func (c *Client) ExecStart(ctx context.Context, execID string, config ExecStartConfig, opts StreamOptions) (stream.Result, error) {
	if err := requireID("exec", execID); err != nil {
		return stream.Result{}, err
	}

	req, err := jsonRequest(protocol.MethodPost, c.versioned("/exec/%s/start", url.PathEscape(execID)), nil, config)
	if err != nil {
		return stream.Result{}, err
	}

	if config.Detach {
		if _, err := c.Do(ctx, req, nil); err != nil {
			return stream.Result{}, err
		}
		return stream.Result{State: stream.StateCompleted}, nil
	}

	if opts.Stdin != nil {
		// stdin has to travel as the request body
		return stream.Result{}, httperrors.NewInvalidArgumentError("exec start sends its config as the body; attach to send stdin")
	}
	opts.TTY = config.Tty
	return c.Stream(ctx, req, opts)
}

// ContainerLogs streams a container's logs. opts.TTY must match the
// container's Config.Tty.
func (c *Client) ContainerLogs(ctx context.Context, containerID string, options LogsOptions, opts StreamOptions) (stream.Result, error) {
	if err := requireID("container", containerID); err != nil {
		return stream.Result{}, err
	}
	if !options.Stdout && !options.Stderr {
		return stream.Result{}, httperrors.NewInvalidArgumentError("logs need stdout, stderr or both")
	}

	q := url.Values{}
	boolParam(q, "follow", options.Follow)
	boolParam(q, "stdout", options.Stdout)
	boolParam(q, "stderr", options.Stderr)
	boolParam(q, "timestamps", options.Timestamps)
	if options.Since != "" {
		q.Set("since", options.Since)
	}
	if options.Until != "" {
		q.Set("until", options.Until)
	}
	if options.Tail != "" {
		q.Set("tail", options.Tail)
	}

	req := &protocol.HttpRequest{Method: protocol.MethodGet, Path: c.versioned("/containers/%s/logs", url.PathEscape(containerID)), Query: q}
	return c.Stream(ctx, req, opts)
}

// ContainerAttach attaches to a container's streams. When opts.Stdin is set
// it is sent to the container as it is read.
func (c *Client) ContainerAttach(ctx context.Context, containerID string, options AttachOptions, opts StreamOptions) (stream.Result, error) {
	if err := requireID("container", containerID); err != nil {
		return stream.Result{}, err
	}
	if opts.Stdin != nil && !options.Stdin {
		return stream.Result{}, httperrors.NewInvalidArgumentError("stdin reader given without attaching stdin")
	}

	q := url.Values{}
	boolParam(q, "stream", options.Stream)
	boolParam(q, "stdin", options.Stdin)
	boolParam(q, "stdout", options.Stdout)
	boolParam(q, "stderr", options.Stderr)
	boolParam(q, "logs", options.Logs)
	if options.DetachKeys != "" {
		q.Set("detachKeys", options.DetachKeys)
	}

	req := &protocol.HttpRequest{Method: protocol.MethodPost, Path: c.versioned("/containers/%s/attach", url.PathEscape(containerID)), Query: q}
	return c.Stream(ctx, req, opts)
}

// ContainerStats streams resource usage samples as newline separated JSON.
// The body is never multiplexed, so the session always runs in raw mode;
// StatsConsumer turns it back into samples.
func (c *Client) ContainerStats(ctx context.Context, containerID string, options StatsOptions, opts StreamOptions) (stream.Result, error) {
	if err := requireID("container", containerID); err != nil {
		return stream.Result{}, err
	}

	q := url.Values{}
	q.Set("stream", strconv.FormatBool(options.Stream))
	boolParam(q, "one-shot", options.OneShot)

	req := &protocol.HttpRequest{Method: protocol.MethodGet, Path: c.versioned("/containers/%s/stats", url.PathEscape(containerID)), Query: q}
	opts.TTY = true
	return c.Stream(ctx, req, opts)
}
