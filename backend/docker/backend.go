// Package docker runs the engine inside a container managed by the
// Docker daemon, spoken to directly over its unix control socket. The
// job workspace is bind-mounted into the container and the engine runs
// privileged, which its threading model requires.
package docker

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spindrive/core/execution"
)

// workspaceMount is where the job workspace appears inside the
// container; the engine command is rewritten against it by the caller.
const workspaceMount = "/workspace"

// DaemonUnavailableError means the daemon's control socket cannot be
// reached at all. It is distinct from a launch failure so callers can
// tell "container runtime not running" apart from a broken run, and it
// is transient: the daemon may come up.
type DaemonUnavailableError struct {
	Socket string
	Err    error
}

func (e *DaemonUnavailableError) Error() string {
	return fmt.Sprintf("docker daemon unreachable at %s: %v", e.Socket, e.Err)
}

func (e *DaemonUnavailableError) Unwrap() error  { return e.Err }
func (e *DaemonUnavailableError) Transient() bool { return true }

type Options struct {
	// Socket is the daemon control socket path.
	Socket string
	// Image is the engine image.
	Image string
	// PullTimeout bounds an image pull triggered by a missing image.
	PullTimeout time.Duration
}

type Backend struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Backend {
	socket := opts.Socket
	return &Backend{
		opts: opts,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
		},
	}
}

func (b *Backend) Name() string { return "docker" }

// Available pings the daemon. This runs before any container is
// created so a missing daemon is reported as such, not as a failed
// simulation.
func (b *Backend) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://docker/_ping", nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return &DaemonUnavailableError{Socket: b.opts.Socket, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("docker daemon ping: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

type containerHandle struct {
	id string
}

func (b *Backend) Start(ctx context.Context, spec execution.Spec) (execution.Handle, error) {
	if len(spec.Args) == 0 {
		return execution.Handle{}, &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("no command provided")}
	}
	if b.opts.Image == "" {
		return execution.Handle{}, &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("image not configured")}
	}

	id, err := b.createContainer(ctx, spec)
	if err != nil {
		return execution.Handle{}, err
	}
	if err := b.apiPost(ctx, "/containers/"+id+"/start", nil); err != nil {
		_ = b.removeContainer(id)
		return execution.Handle{}, &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("start container: %w", err)}
	}
	return execution.Handle{ID: "docker-" + id[:12], BackendHandle: &containerHandle{id: id}}, nil
}

func (b *Backend) createContainer(ctx context.Context, spec execution.Spec) (string, error) {
	body := map[string]any{
		"Image":      b.opts.Image,
		"Cmd":        spec.Args,
		"WorkingDir": workspaceMount,
		"Env":        spec.Env,
		"HostConfig": map[string]any{
			"Binds":      []string{spec.Workdir + ":" + workspaceMount},
			"Privileged": true,
		},
	}

	id, status, err := b.apiCreate(ctx, body)
	if status == http.StatusNotFound {
		// Image not present locally; pull once and retry.
		if pullErr := b.pullImage(ctx); pullErr != nil {
			return "", &execution.LaunchError{Backend: b.Name(),
				Err: fmt.Errorf("image %q not found and pull failed: %w", b.opts.Image, pullErr)}
		}
		id, _, err = b.apiCreate(ctx, body)
	}
	if err != nil {
		return "", &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("create container: %w", err)}
	}
	return id, nil
}

func (b *Backend) apiCreate(ctx context.Context, body map[string]any) (string, int, error) {
	var created struct {
		ID string `json:"Id"`
	}
	status, err := b.doJSON(ctx, http.MethodPost, "/containers/create", body, &created)
	if err != nil {
		return "", status, err
	}
	return created.ID, status, nil
}

func (b *Backend) pullImage(ctx context.Context) error {
	if b.opts.PullTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.PullTimeout)
		defer cancel()
	}
	path := "/images/create?fromImage=" + url.QueryEscape(b.opts.Image)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://docker"+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return &DaemonUnavailableError{Socket: b.opts.Socket, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()
	// The pull endpoint streams progress; drain it so the pull runs to
	// completion before the retry.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("pull %q: status %d", b.opts.Image, resp.StatusCode)
	}
	return nil
}

func (b *Backend) Poll(handle execution.Handle) (execution.PollStatus, error) {
	h, ok := handle.BackendHandle.(*containerHandle)
	if !ok {
		return execution.PollStatus{}, fmt.Errorf("invalid handle")
	}
	var inspect struct {
		State struct {
			Running   bool   `json:"Running"`
			ExitCode  int    `json:"ExitCode"`
			OOMKilled bool   `json:"OOMKilled"`
			Error     string `json:"Error"`
		} `json:"State"`
	}
	if _, err := b.doJSON(context.Background(), http.MethodGet,
		"/containers/"+h.id+"/json", nil, &inspect); err != nil {
		return execution.PollStatus{}, fmt.Errorf("inspect container: %w", err)
	}
	if inspect.State.Running {
		return execution.PollStatus{State: execution.StateRunning}, nil
	}
	if inspect.State.OOMKilled {
		return execution.PollStatus{State: execution.StateCrashed, Signal: "SIGKILL (oom)"}, nil
	}
	return execution.PollStatus{State: execution.StateExited, ExitCode: inspect.State.ExitCode}, nil
}

func (b *Backend) Kill(handle execution.Handle) error {
	h, ok := handle.BackendHandle.(*containerHandle)
	if !ok {
		return fmt.Errorf("invalid handle")
	}
	err := b.apiPost(context.Background(), "/containers/"+h.id+"/kill", nil)
	// 404: already removed; 409: not running. Both mean the target is
	// gone, which is what Kill is for.
	var httpErr *apiError
	if err != nil && errors.As(err, &httpErr) &&
		(httpErr.Status == http.StatusNotFound || httpErr.Status == http.StatusConflict) {
		return nil
	}
	return err
}

func (b *Backend) Logs(handle execution.Handle) string {
	h, ok := handle.BackendHandle.(*containerHandle)
	if !ok {
		return ""
	}
	path := "/containers/" + h.id + "/logs?stdout=1&stderr=1&tail=400"
	req, err := http.NewRequest(http.MethodGet, "http://docker"+path, nil)
	if err != nil {
		return ""
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return demuxLogs(resp.Body)
}

func (b *Backend) Cleanup(handle execution.Handle) error {
	h, ok := handle.BackendHandle.(*containerHandle)
	if !ok {
		return nil
	}
	return b.removeContainer(h.id)
}

func (b *Backend) removeContainer(id string) error {
	err := b.apiDelete(context.Background(), "/containers/"+id+"?force=1")
	var httpErr *apiError
	if err != nil && errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// apiError is a non-2xx daemon response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("docker API status %d: %s", e.Status, e.Body)
}

func (b *Backend) doJSON(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://docker"+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, &DaemonUnavailableError{Socket: b.opts.Socket, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (b *Backend) apiPost(ctx context.Context, path string, body any) error {
	_, err := b.doJSON(ctx, http.MethodPost, path, body, nil)
	return err
}

func (b *Backend) apiDelete(ctx context.Context, path string) error {
	_, err := b.doJSON(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// demuxLogs strips the daemon's stream multiplexing: each frame is an
// 8-byte header (stream type, three zero bytes, big-endian length)
// followed by the payload.
func demuxLogs(r io.Reader) string {
	var out strings.Builder
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			break
		}
		size := binary.BigEndian.Uint32(header[4:8])
		if _, err := io.CopyN(&out, r, int64(size)); err != nil {
			break
		}
	}
	return out.String()
}

func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

var _ execution.Backend = (*Backend)(nil)
