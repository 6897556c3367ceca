package dockerjob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/usecase"
)

const (
	// outputTail bounds how much job output is copied into an error message.
	outputTail = 2048
	// removeTimeout bounds every container removal.
	removeTimeout = 30 * time.Second
	logTailLines  = "50"
)

// ContainerAPI is the subset of *client.Client the runner uses.
type ContainerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

var _ ContainerAPI = (*client.Client)(nil)

// Runner はフォーマット用コンテナを起動し、終了ステータスを待機します。
// コンテナは成功時のみ削除され、失敗時は調査のために残されます。
type Runner struct {
	cfg Config
	api ContainerAPI
}

// RunnerがReformatterを実装していることをコンパイル時に検証します。
var _ usecase.Reformatter = (*Runner)(nil)

// NewRunner は cfg.DockerHost の Docker Engine API に接続する Runner を作成します。
func NewRunner(cfg Config) (*Runner, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.DockerHost != "" {
		opts = append(opts, client.WithHost(cfg.DockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewRunnerWithClient(cfg, cli), nil
}

// NewRunnerWithClient は任意の ContainerAPI を使う Runner を作成します。
func NewRunnerWithClient(cfg Config, api ContainerAPI) *Runner {
	return &Runner{cfg: cfg, api: api}
}

// Reformat は locator（"{bucket}/{symbol}"）を引数としてジョブを実行します。
// 非ゼロ終了、起動失敗、キャンセル、タイムアウトは全て ErrExternalJob になります。
// ジョブのタイムアウトは古いコンテナの削除を含む全ての Docker 呼び出しに適用されます。
func (r *Runner) Reformat(ctx context.Context, locator string) error {
	_, symbol, err := domain.ParseLocator(locator)
	if err != nil {
		return err
	}
	name := r.containerName(symbol)

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	// a container left behind by an earlier failed run would block the name
	if err := r.remove(ctx, name); err != nil {
		if ctx.Err() != nil {
			return r.aborted(ctx, name, false)
		}
		slog.Warn("failed to remove stale formatter container", "container", name, "error", err)
	}

	slog.Info("starting reformatting job", "container", name, "image", r.cfg.Image, "locator", locator)
	start := time.Now()

	created, err := r.api.ContainerCreate(ctx, r.containerConfig(locator), r.hostConfig(), nil, nil, name)
	if err != nil {
		if ctx.Err() != nil {
			return r.aborted(ctx, name, true)
		}
		return fmt.Errorf("%w: create container %s: %v", domain.ErrExternalJob, name, err)
	}
	if err := r.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		if ctx.Err() != nil {
			return r.aborted(ctx, name, true)
		}
		slog.Error("reformatting job did not start", "container", name, "error", err)
		return fmt.Errorf("%w: start container %s: %v", domain.ErrExternalJob, name, err)
	}

	statusCh, errCh := r.api.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return r.aborted(ctx, name, true)
	case err := <-errCh:
		if ctx.Err() != nil {
			return r.aborted(ctx, name, true)
		}
		return fmt.Errorf("%w: wait for container %s: %v", domain.ErrExternalJob, name, err)
	case st := <-statusCh:
		if st.Error != nil {
			return fmt.Errorf("%w: container %s: %s", domain.ErrExternalJob, name, st.Error.Message)
		}
		if st.StatusCode != 0 {
			out := r.logs(ctx, created.ID)
			slog.Error("reformatting job failed", "container", name, "exit_code", st.StatusCode, "output", out)
			return fmt.Errorf("%w: container %s: exit status %d: %s", domain.ErrExternalJob, name, st.StatusCode, out)
		}
	}
	slog.Info("reformatting job finished", "container", name, "duration", time.Since(start))

	r.cleanup(ctx, name)
	return nil
}

// aborted removes the container when one may exist and reports the cancellation.
func (r *Runner) aborted(ctx context.Context, name string, created bool) error {
	if created {
		r.cleanup(ctx, name)
	}
	return fmt.Errorf("%w: container %s aborted: %v", domain.ErrExternalJob, name, ctx.Err())
}

func (r *Runner) containerConfig(locator string) *container.Config {
	env := []string{r.cfg.ArgsEnv + "=" + locator}
	keys := make([]string, 0, len(r.cfg.Env))
	for k := range r.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+r.cfg.Env[k])
	}
	return &container.Config{
		Image: r.cfg.Image,
		Env:   env,
		Tty:   r.cfg.TTY,
	}
}

func (r *Runner) hostConfig() *container.HostConfig {
	hc := &container.HostConfig{}
	if r.cfg.Network != "" {
		hc.NetworkMode = container.NetworkMode(r.cfg.Network)
	}
	return hc
}

// remove force-removes the container under removeTimeout. A missing container is not an error.
func (r *Runner) remove(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, removeTimeout)
	defer cancel()
	err := r.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return err
	}
	return nil
}

// cleanup removes the container even when the run was cancelled.
func (r *Runner) cleanup(ctx context.Context, name string) {
	if err := r.remove(context.WithoutCancel(ctx), name); err != nil {
		slog.Warn("failed to remove formatter container", "container", name, "error", err)
	}
}

// logs returns the tail of the container output. Errors are logged and yield an empty string.
func (r *Runner) logs(ctx context.Context, id string) string {
	rc, err := r.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: logTailLines})
	if err != nil {
		slog.Warn("failed to read formatter logs", "container", id, "error", err)
		return ""
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.Warn("failed to close log stream", "container", id, "error", err)
		}
	}()

	var buf bytes.Buffer
	if r.cfg.TTY {
		_, err = io.Copy(&buf, rc)
	} else {
		// TTY なしのログは stdout/stderr が多重化されている
		_, err = stdcopy.StdCopy(&buf, &buf, rc)
	}
	if err != nil {
		slog.Warn("failed to read formatter logs", "container", id, "error", err)
	}
	return tail(buf.Bytes())
}

// containerName derives a per-symbol container name so that concurrent runs do not collide.
func (r *Runner) containerName(symbol string) string {
	var b strings.Builder
	b.WriteString(r.cfg.ContainerName)
	b.WriteByte('_')
	for _, c := range strings.ToLower(symbol) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > outputTail {
		s = "..." + s[len(s)-outputTail:]
	}
	return s
}
