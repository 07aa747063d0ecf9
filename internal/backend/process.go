package backend

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lightserve/internal/config"
)

// Spawned server parameters read from the descriptor.
const (
	ParamCommand   = "command"
	ParamModelPath = "model_path"
	ParamHost      = "host"
	ParamPort      = "port"
	ParamExtraArgs = "extra_args"
	ParamStopGrace = "stop_grace"
)

const stderrTailBytes = 4096

// NewVLLM builds a backend that runs `vllm serve` and proxies to it. With
// upstream_url set it attaches to an existing server instead.
func NewVLLM(d config.Descriptor, opts Options) (Backend, error) {
	return newSpawned(KindVLLM, d, opts, []string{"vllm", "serve"}, vllmArgs)
}

// NewSGLang builds a backend that runs the sglang launcher and proxies to it.
func NewSGLang(d config.Descriptor, opts Options) (Backend, error) {
	return newSpawned(KindSGLang, d, opts, []string{"python3", "-m", "sglang.launch_server"}, sglangArgs)
}

type argBuilder func(d config.Descriptor, host string, port int) []string

func newSpawned(kind Kind, d config.Descriptor, opts Options, defCmd []string, build argBuilder) (Backend, error) {
	if upstream := strings.TrimRight(d.String(ParamUpstreamURL, ""), "/"); upstream != "" {
		return newProxy(kind, d, opts, upstream, "/health"), nil
	}
	cmd := d.Strings(ParamCommand)
	if len(cmd) == 0 {
		cmd = defCmd
	}
	host := d.String(ParamHost, "127.0.0.1")
	port := d.Int(ParamPort, 0)
	if port == 0 {
		p, err := pickFreePort(host)
		if err != nil {
			return nil, fmt.Errorf("%s: pick port: %w", kind, err)
		}
		port = p
	}
	args := append(append([]string(nil), cmd[1:]...), build(d, host, port)...)
	args = append(args, d.Strings(ParamExtraArgs)...)

	p := newProxy(kind, d, opts, fmt.Sprintf("http://%s:%d", host, port), "/health")
	p.proc = &process{
		name:  cmd[0],
		args:  args,
		grace: d.Duration(ParamStopGrace, 10*time.Second),
	}
	return p, nil
}

// vllmArgs maps the runtime options onto `vllm serve` flags.
func vllmArgs(d config.Descriptor, host string, port int) []string {
	path := d.String(ParamModelPath, d.Model)
	args := []string{path, "--host", host, "--port", strconv.Itoa(port)}
	if path != d.Model {
		args = append(args, "--served-model-name", d.Model)
	}
	if v := d.String(config.KeyDistributedBackend, ""); v != "" {
		args = append(args, "--distributed-executor-backend", v)
	}
	if d.Bool(config.KeyEnforceEager, false) || d.Bool(config.KeyDisableCUDAGraph, false) {
		args = append(args, "--enforce-eager")
	}
	if d.Bool(config.KeyEnablePrefixCaching, false) {
		args = append(args, "--enable-prefix-caching")
	} else {
		args = append(args, "--no-enable-prefix-caching")
	}
	if d.Bool(config.KeyTrustRemoteCode, false) {
		args = append(args, "--trust-remote-code")
	}
	if n := d.Int(config.KeyMaxNumSeqs, 0); n > 0 {
		args = append(args, "--max-num-seqs", strconv.Itoa(n))
	}
	if n := d.Int(config.KeyPipelineParallelSize, 0); n > 1 {
		args = append(args, "--pipeline-parallel-size", strconv.Itoa(n))
	}
	if v := d.String(config.KeyReasoningParser, ""); v != "" {
		args = append(args, "--reasoning-parser", v)
	}
	if d.Bool(config.KeyEnableAutoToolChoice, false) {
		args = append(args, "--enable-auto-tool-choice")
	}
	if v := d.String(config.KeyToolCallParser, ""); v != "" {
		args = append(args, "--tool-call-parser", v)
	}
	if d.Bool(config.KeyEnableExpertParallel, false) {
		args = append(args, "--enable-expert-parallel")
	}
	if d.Bool(config.KeyIsEmbedding, false) {
		args = append(args, "--task", "embed")
	}
	return args
}

// sglangArgs maps the runtime options onto sglang.launch_server flags.
// Options sglang has no equivalent for are ignored.
func sglangArgs(d config.Descriptor, host string, port int) []string {
	path := d.String(ParamModelPath, d.Model)
	args := []string{"--model-path", path, "--host", host, "--port", strconv.Itoa(port), "--served-model-name", d.Model}
	if d.Bool(config.KeyDisableCUDAGraph, false) || d.Bool(config.KeyEnforceEager, false) {
		args = append(args, "--disable-cuda-graph")
	}
	if !d.Bool(config.KeyEnablePrefixCaching, true) {
		args = append(args, "--disable-radix-cache")
	}
	if d.Bool(config.KeyTrustRemoteCode, false) {
		args = append(args, "--trust-remote-code")
	}
	if n := d.Int(config.KeyMaxNumSeqs, 0); n > 0 {
		args = append(args, "--max-running-requests", strconv.Itoa(n))
	}
	if n := d.Int(config.KeyPipelineParallelSize, 0); n > 1 {
		args = append(args, "--pp-size", strconv.Itoa(n))
	}
	if v := d.String(config.KeyReasoningParser, ""); v != "" {
		args = append(args, "--reasoning-parser", v)
	}
	if v := d.String(config.KeyToolCallParser, ""); v != "" {
		args = append(args, "--tool-call-parser", v)
	}
	if d.Bool(config.KeyEnableExpertParallel, false) {
		args = append(args, "--enable-ep-moe")
	}
	if d.Bool(config.KeyIsEmbedding, false) {
		args = append(args, "--is-embedding")
	}
	return args
}

// process supervises one spawned server for the lifetime of the backend.
type process struct {
	name  string
	args  []string
	grace time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	stderr  tailBuffer
	exited  chan struct{}
	waitErr error
}

func (p *process) start(log zerolog.Logger) error {
	cmd := exec.Command(p.name, p.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return ErrDependencyUnavailable(fmt.Sprintf("start %s: %v", p.name, err))
	}
	p.mu.Lock()
	p.cmd = cmd
	p.exited = make(chan struct{})
	p.mu.Unlock()
	log.Info().Str("cmd", p.name).Strs("args", p.args).Int("pid", cmd.Process.Pid).Msg("server process started")

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.exited)
		log.Info().Int("pid", cmd.Process.Pid).AnErr("exit", err).Msg("server process exited")
	}()
	return nil
}

// exitError describes an exit that happened before the server became ready.
func (p *process) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waitErr != nil {
		return fmt.Errorf("%s exited early: %v; stderr tail: %s", p.name, p.waitErr, p.stderr.String())
	}
	return fmt.Errorf("%s exited before ready; stderr tail: %s", p.name, p.stderr.String())
}

// stop sends SIGTERM, then kills the process once grace (or ctx) expires.
func (p *process) stop(ctx context.Context, log zerolog.Logger) error {
	p.mu.Lock()
	cmd, exited := p.cmd, p.exited
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-exited:
		return nil
	default:
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	t := time.NewTimer(p.grace)
	defer t.Stop()
	select {
	case <-exited:
		return nil
	case <-t.C:
	case <-ctx.Done():
	}
	log.Warn().Int("pid", cmd.Process.Pid).Msg("server did not exit after SIGTERM; killing")
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill %s: %w", p.name, err)
	}
	<-exited
	return nil
}

// tailBuffer keeps the last stderrTailBytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - stderrTailBytes; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
