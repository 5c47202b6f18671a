package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	httperrors "github.com/nczempin/enginestream/errors"
	"github.com/nczempin/enginestream/frame"
	"github.com/nczempin/enginestream/metrics"
	"github.com/nczempin/enginestream/protocol"
	"github.com/nczempin/enginestream/stream"
	"github.com/nczempin/enginestream/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeDaemon serves handler on a unix socket and returns a client for it
func newFakeDaemon(t *testing.T, handler http.Handler, opts ...Option) (*Client, transport.Descriptor) {
	t.Helper()

	dir, err := os.MkdirTemp("", "es")
	require.NoError(t, err)
	path := filepath.Join(dir, "engine.sock")

	listener, err := net.Listen("unix", path)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(handler)
	srv.Listener.Close()
	srv.Listener = listener
	srv.Start()
	t.Cleanup(func() {
		srv.Close()
		os.RemoveAll(dir)
	})

	desc := transport.Descriptor{Kind: transport.KindUnix, Address: path, DialTimeout: time.Second}
	c, err := NewClient(desc, opts...)
	require.NoError(t, err)
	return c, desc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// streamFrames writes each payload as a multiplexed frame and flushes
func streamFrames(w http.ResponseWriter, frames ...frame.Frame) {
	w.Header().Set("Content-Type", "application/vnd.docker.multiplexed-stream")
	w.WriteHeader(http.StatusOK)
	stdout := stdcopy.NewStdWriter(w, stdcopy.Stdout)
	stderr := stdcopy.NewStdWriter(w, stdcopy.Stderr)
	for _, f := range frames {
		if f.Origin == frame.Stderr {
			stderr.Write(f.Payload)
		} else {
			stdout.Write(f.Payload)
		}
		w.(http.Flusher).Flush()
	}
}

// recordingConsumer notes which callbacks ran
type recordingConsumer struct {
	started  bool
	frames   []frame.Frame
	complete bool
	err      error
	reason   *stream.Reason
}

func (r *recordingConsumer) OnStart(stream.CancelFunc) { r.started = true }
func (r *recordingConsumer) OnFrame(f frame.Frame)     { r.frames = append(r.frames, f) }
func (r *recordingConsumer) OnComplete()               { r.complete = true }
func (r *recordingConsumer) OnError(err error)         { r.err = err }
func (r *recordingConsumer) OnCancelled(reason stream.Reason) {
	r.reason = &reason
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(transport.Descriptor{Kind: transport.KindUnix})
	assert.Equal(t, httperrors.ErrorInvalidArgument, httperrors.TypeOf(err))

	_, err = NewClient(transport.Descriptor{Kind: transport.KindUnix, Address: "/x"}, WithAPIVersion(""))
	assert.Equal(t, httperrors.ErrorInvalidArgument, httperrors.TypeOf(err))

	c, err := NewClient(transport.Descriptor{Kind: transport.KindUnix, Address: "/x"}, WithAPIVersion("v1.44"))
	require.NoError(t, err)
	assert.Equal(t, "1.44", c.APIVersion())
	assert.Equal(t, "/v1.44/containers/abc/json", c.versioned("/containers/%s/json", "abc"))
}

func TestClient_Ping(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_ping", r.URL.Path)
		assert.Equal(t, "docker", r.Host)
		w.Header().Set("Api-Version", "1.45")
		w.Header().Set("Ostype", "linux")
		io.WriteString(w, "OK")
	}))

	res, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PingResult{APIVersion: "1.45", OSType: "linux", Status: "OK"}, res)
}

func TestClient_ContainerInspect(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.41/containers/web/json", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"Id":     "4fa6e0f0",
			"Name":   "/web",
			"State":  map[string]any{"Status": "running", "Running": true, "Pid": 42},
			"Config": map[string]any{"Tty": true, "Image": "nginx", "Labels": map[string]string{"a": "b"}},
			"Mounts": []any{},
		})
	}))

	info, err := c.ContainerInspect(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, "4fa6e0f0", info.ID)
	assert.True(t, info.State.Running)
	assert.Equal(t, 42, info.State.Pid)
	assert.True(t, info.Config.Tty)
}

func TestClient_ContainerInspect_NotFound(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No such container: ghost"})
	}))

	_, err := c.ContainerInspect(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, httperrors.IsClientError(err))
	assert.Equal(t, 404, httperrors.StatusCode(err))
	assert.Contains(t, err.Error(), "No such container: ghost")
}

func TestClient_ServerError(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "daemon exploded", http.StatusInternalServerError)
	}))

	_, err := c.ExecInspect(context.Background(), "e1")
	require.Error(t, err)
	assert.True(t, httperrors.IsServerError(err))
	assert.Contains(t, err.Error(), "daemon exploded")
}

func TestClient_ExecFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.41/containers/app/exec", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var cfg ExecConfig
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
		assert.Equal(t, []string{"sh", "-c", "echo hi; echo oops >&2"}, cfg.Cmd)
		assert.True(t, cfg.AttachStdout)
		writeJSON(w, http.StatusCreated, map[string]string{"Id": "exec-1"})
	})
	mux.HandleFunc("/v1.41/exec/exec-1/start", func(w http.ResponseWriter, r *http.Request) {
		var cfg ExecStartConfig
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
		assert.False(t, cfg.Tty)
		streamFrames(w,
			frame.Frame{Origin: frame.Stdout, Payload: []byte("hi\n")},
			frame.Frame{Origin: frame.Stderr, Payload: []byte("oops\n")},
		)
	})
	mux.HandleFunc("/v1.41/exec/exec-1/json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ID": "exec-1", "Running": false, "ExitCode": 0, "ContainerID": "app"})
	})
	mux.HandleFunc("/v1.41/exec/exec-1/resize", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "40", r.URL.Query().Get("h"))
		assert.Equal(t, "120", r.URL.Query().Get("w"))
		w.WriteHeader(http.StatusOK)
	})
	c, _ := newFakeDaemon(t, mux)
	ctx := context.Background()

	created, err := c.ContainerExec(ctx, "app", ExecConfig{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"sh", "-c", "echo hi; echo oops >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "exec-1", created.ID)

	require.NoError(t, c.ExecResize(ctx, created.ID, ResizeOptions{Height: 40, Width: 120}))

	var stdout, stderr bytes.Buffer
	out := stream.NewWriterConsumer(&stdout, &stderr)
	res, err := c.ExecStart(ctx, created.ID, ExecStartConfig{}, StreamOptions{Consumer: out, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, stream.StateCompleted, res.State)
	assert.NoError(t, out.Err())
	assert.Equal(t, "hi\n", stdout.String())
	assert.Equal(t, "oops\n", stderr.String())
	assert.Equal(t, 2, res.Frames)
	assert.Equal(t, int64(8), res.Bytes)

	inspect, err := c.ExecInspect(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, inspect.Running)
	require.NotNil(t, inspect.ExitCode)
	assert.Equal(t, 0, *inspect.ExitCode)
}

func TestClient_ExecStart_Detached(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	consumer := &recordingConsumer{}
	res, err := c.ExecStart(context.Background(), "e1", ExecStartConfig{Detach: true}, StreamOptions{Consumer: consumer})
	require.NoError(t, err)
	assert.Equal(t, stream.StateCompleted, res.State)
	assert.False(t, consumer.started)
}

func TestClient_ContainerLogs_TTY(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v1.41/containers/tty/logs", r.URL.Path)
		assert.Equal(t, "1", q.Get("stdout"))
		assert.Equal(t, "1", q.Get("follow"))
		assert.Equal(t, "10", q.Get("tail"))
		assert.Empty(t, q.Get("stderr"))

		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "\x01 looks like a header but is tty output\r\n")
	}))

	var stdout bytes.Buffer
	res, err := c.ContainerLogs(context.Background(), "tty",
		LogsOptions{Follow: true, Stdout: true, Tail: "10"},
		StreamOptions{TTY: true, Consumer: stream.NewWriterConsumer(&stdout, nil)},
	)
	require.NoError(t, err)
	assert.Equal(t, stream.StateCompleted, res.State)
	assert.Equal(t, "\x01 looks like a header but is tty output\r\n", stdout.String())
}

func TestClient_ContainerLogs_Multiplexed(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var frames []frame.Frame
		for i := 0; i < 50; i++ {
			frames = append(frames, frame.Frame{Origin: frame.Origin(1 + i%2), Payload: []byte(fmt.Sprintf("line %d\n", i))})
		}
		streamFrames(w, frames...)
	}))

	consumer := &recordingConsumer{}
	res, err := c.ContainerLogs(context.Background(), "app", LogsOptions{Stdout: true, Stderr: true}, StreamOptions{Consumer: consumer})
	require.NoError(t, err)

	assert.Equal(t, stream.StateCompleted, res.State)
	assert.True(t, consumer.complete)
	require.Len(t, consumer.frames, 50)
	for i, f := range consumer.frames {
		assert.Equal(t, frame.Origin(1+i%2), f.Origin)
		assert.Equal(t, fmt.Sprintf("line %d\n", i), string(f.Payload))
	}
}

func TestClient_Stream_InformationalNeverDecoded(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		io.WriteString(conn, "HTTP/1.1 101 UPGRADED\r\nContent-Type: application/vnd.docker.raw-stream\r\nConnection: Upgrade\r\nUpgrade: tcp\r\n\r\n")
		conn.Write(frame.AppendFrame(nil, frame.Stdout, []byte("should not be read")))
	}))

	consumer := &recordingConsumer{}
	_, err := c.ContainerAttach(context.Background(), "app", AttachOptions{Stream: true, Stdout: true}, StreamOptions{Consumer: consumer})
	require.Error(t, err)
	assert.True(t, httperrors.IsUnsupportedResponse(err))
	assert.Equal(t, 101, httperrors.StatusCode(err))
	assert.False(t, consumer.started, "consumer must not start for an unsupported response")
	assert.Empty(t, consumer.frames)
}

func TestClient_Stream_ApiErrorBeforeSession(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "container app is not running"})
	}))

	consumer := &recordingConsumer{}
	_, err := c.ContainerLogs(context.Background(), "app", LogsOptions{Stdout: true}, StreamOptions{Consumer: consumer})
	require.Error(t, err)
	assert.True(t, httperrors.IsClientError(err))
	assert.Equal(t, 409, httperrors.StatusCode(err))
	assert.Contains(t, err.Error(), "is not running")
	assert.False(t, consumer.started)
}

func TestClient_ContainerAttach_Stdin(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"chunked"}, r.TransferEncoding)
		assert.Equal(t, "1", r.URL.Query().Get("stdin"))

		input, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var frames []frame.Frame
		for _, line := range strings.SplitAfter(string(input), "\n") {
			if line != "" {
				frames = append(frames, frame.Frame{Origin: frame.Stdout, Payload: []byte(strings.ToUpper(line))})
			}
		}
		streamFrames(w, frames...)
	}))

	var stdout bytes.Buffer
	res, err := c.ContainerAttach(context.Background(), "app",
		AttachOptions{Stream: true, Stdin: true, Stdout: true},
		StreamOptions{Consumer: stream.NewWriterConsumer(&stdout, nil), Stdin: strings.NewReader("hello\nworld\n")},
	)
	require.NoError(t, err)
	assert.Equal(t, stream.StateCompleted, res.State)
	assert.Equal(t, "HELLO\nWORLD\n", stdout.String())
	assert.Equal(t, 2, res.Frames)
}

func TestClient_Stream_StdinLeavesRequestUntouched(t *testing.T) {
	bodies := make(chan string, 2)
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		input, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		bodies <- string(input)
		streamFrames(w)
	}))

	req := &protocol.HttpRequest{Method: protocol.MethodPost, Path: "/v1.41/containers/app/attach"}
	_, err := c.Stream(context.Background(), req, StreamOptions{Consumer: &recordingConsumer{}, Stdin: strings.NewReader("first")})
	require.NoError(t, err)
	assert.Nil(t, req.BodyStream)

	_, err = c.Stream(context.Background(), req, StreamOptions{Consumer: &recordingConsumer{}})
	require.NoError(t, err)
	assert.Equal(t, "first", <-bodies)
	assert.Equal(t, "", <-bodies)
}

func TestClient_ContainerStats(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("stream"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(w, `{"id":"app","memory_stats":{"usage":%d,"limit":1048576},"unknown":true}`+"\n", i*1024)
			w.(http.Flusher).Flush()
		}
	}))

	var samples []Stats
	consumer := &StatsConsumer{OnStats: func(s Stats) { samples = append(samples, s) }}
	res, err := c.ContainerStats(context.Background(), "app", StatsOptions{Stream: true}, StreamOptions{Consumer: consumer})
	require.NoError(t, err)

	assert.Equal(t, stream.StateCompleted, res.State)
	assert.NoError(t, consumer.Err())
	require.Len(t, samples, 3)
	assert.Equal(t, uint64(3072), samples[2].MemoryStats.Usage)
	assert.Equal(t, "app", samples[0].ID)
}

func TestClient_Stream_Timeout(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, frame.Frame{Origin: frame.Stdout, Payload: []byte("first\n")})
		<-r.Context().Done()
	}))

	consumer := &recordingConsumer{}
	start := time.Now()
	res, err := c.ContainerLogs(context.Background(), "app",
		LogsOptions{Follow: true, Stdout: true},
		StreamOptions{Consumer: consumer, Timeout: 200 * time.Millisecond},
	)
	require.NoError(t, err)

	assert.Equal(t, stream.StateTimedOut, res.State)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, consumer.frames, 1)
	require.NotNil(t, consumer.reason)
	assert.Equal(t, stream.ReasonTimeout, *consumer.reason)
}

func TestClient_Stream_CallerCancel(t *testing.T) {
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, frame.Frame{Origin: frame.Stdout, Payload: []byte("tick\n")})
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	consumer := stream.ConsumerFuncs{Frame: func(frame.Frame) { cancel() }}

	res, err := c.ContainerLogs(ctx, "app", LogsOptions{Follow: true, Stdout: true}, StreamOptions{Consumer: consumer})
	require.NoError(t, err)
	assert.Equal(t, stream.StateCancelled, res.State)
	assert.Equal(t, stream.ReasonCaller, res.Reason)
}

func TestClient_Do_RequestTimeout(t *testing.T) {
	_, desc := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	desc.RequestTimeout = 100 * time.Millisecond
	c, err := NewClient(desc)
	require.NoError(t, err)

	_, err = c.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, httperrors.IsTransportCode(err, httperrors.TransportErrorTimeout), "got %v", err)
}

func TestClient_ConnectionError(t *testing.T) {
	c, err := NewClient(transport.Descriptor{Kind: transport.KindUnix, Address: "/nonexistent/engine.sock"})
	require.NoError(t, err)

	_, err = c.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, httperrors.IsConnectionError(err))

	consumer := &recordingConsumer{}
	_, err = c.ContainerLogs(context.Background(), "app", LogsOptions{Stdout: true}, StreamOptions{Consumer: consumer})
	assert.True(t, httperrors.IsConnectionError(err))
	assert.False(t, consumer.started)
}

func TestClient_TransportFactoryAndMetrics(t *testing.T) {
	var dials int32
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector()
	require.NoError(t, collector.Register(reg))
	c, _ := newFakeDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, frame.Frame{Origin: frame.Stdout, Payload: []byte("x")})
	}),
		WithMetrics(collector),
		WithTransportFactory(func(d transport.Descriptor) (transport.Transport, error) {
			atomic.AddInt32(&dials, 1)
			return transport.New(d)
		}),
	)

	for i := 0; i < 3; i++ {
		res, err := c.ContainerLogs(context.Background(), "app", LogsOptions{Stdout: true}, StreamOptions{Consumer: stream.ConsumerFuncs{}})
		require.NoError(t, err)
		assert.Equal(t, stream.StateCompleted, res.State)
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&dials), "one connection per call")
	count, err := testutil.GatherAndCount(reg, "enginestream_sessions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClient_InvalidArguments(t *testing.T) {
	c, err := NewClient(transport.Descriptor{Kind: transport.KindUnix, Address: "/unused.sock"})
	require.NoError(t, err)
	ctx := context.Background()
	consumer := &recordingConsumer{}

	_, err = c.ContainerInspect(ctx, "")
	assert.Equal(t, httperrors.ErrorInvalidArgument, httperrors.TypeOf(err))

	_, err = c.ContainerExec(ctx, "app", ExecConfig{})
	assert.Equal(t, httperrors.ErrorInvalidArgument, httperrors.TypeOf(err))

	_, err = c.ContainerLogs(ctx, "app", LogsOptions{Stdout: true}, StreamOptions{})
	assert.Equal(t, httperrors.ErrorInvalidArgument, httperrors.TypeOf(err), "nil consumer")

	_, err = c.ContainerLogs(ctx, "app", LogsOptions{}, StreamOptions{Consumer: consumer})
	assert.Equal(t, httperrors.ErrorInvalidArgument, httperrors.TypeOf(err), "no streams selected")

	_, err = c.ExecStart(ctx, "e1", ExecStartConfig{}, StreamOptions{Consumer: consumer, Stdin: strings.NewReader("x")})
	assert.Equal(t, httperrors.ErrorInvalidArgument, httperrors.TypeOf(err))

	_, err = c.ContainerAttach(ctx, "app", AttachOptions{Stdout: true}, StreamOptions{Consumer: consumer, Stdin: strings.NewReader("x")})
	assert.Equal(t, httperrors.ErrorInvalidArgument, httperrors.TypeOf(err))

	assert.False(t, consumer.started)
}
