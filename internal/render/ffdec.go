package render

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"fvrip/internal/config"
	"fvrip/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*FFDec)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *FFDec) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// FFDec drives the JPEXS Flash decompiler CLI to export the first frame of a
// page movie as a raster image.
type FFDec struct {
	binary     string
	java       string
	jvmOptions []string
	format     string
	timeout    time.Duration
	exec       Executor
}

// NewFFDec constructs a decompiler client from configuration.
func NewFFDec(cfg config.Renderer, opts ...Option) (*FFDec, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "render", "new ffdec", "renderer.binary required", nil)
	}
	format := strings.ToLower(strings.TrimSpace(cfg.ExportFormat))
	if format == "" {
		format = "png"
	}
	client := &FFDec{
		binary:     binary,
		java:       strings.TrimSpace(cfg.Java),
		jvmOptions: cfg.JVMOptions,
		format:     format,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		exec:       commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Render writes the movie to a scratch file, exports its first frame and
// returns the decoded image bytes.
func (c *FFDec) Render(ctx context.Context, _ string, payload []byte) (*Result, error) {
	workDir, err := os.MkdirTemp("", "fvrip-render-*")
	if err != nil {
		return nil, services.Wrap(services.ErrRenderFailed, "render", "scratch dir", "", err)
	}
	defer os.RemoveAll(workDir)

	moviePath := filepath.Join(workDir, "page.swf")
	if err := os.WriteFile(moviePath, payload, 0o644); err != nil {
		return nil, services.Wrap(services.ErrRenderFailed, "render", "write movie", moviePath, err)
	}
	outDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrRenderFailed, "render", "frame dir", outDir, err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	binary, args := c.command("-cli", "-format", "frame:"+c.format, "-export", "frame", outDir, moviePath)
	var output []string
	err = c.exec.Run(runCtx, binary, args, func(line string) {
		output = append(output, line)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrRenderFailed, "render", "export frame",
			summarizeOutput(output), err)
	}

	framePath, err := firstFrame(outDir, c.format)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(framePath)
	if err != nil {
		return nil, services.Wrap(services.ErrRenderFailed, "render", "read frame", framePath, err)
	}
	format, err := decodeCheck(data)
	if err != nil {
		return nil, services.Wrap(services.ErrRenderFailed, "render", "validate frame", framePath, err)
	}
	return &Result{Format: format, Data: data}, nil
}

// Probe verifies the decompiler can be launched.
func (c *FFDec) Probe(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	binary, args := c.command("-cli", "-help")
	if err := c.exec.Run(runCtx, binary, args, func(string) {}); err != nil {
		return services.Wrap(services.ErrConfiguration, "render", "probe", binary, err)
	}
	return nil
}

// command prefixes the invocation with the JVM when renderer.java is set, so
// a bare ffdec.jar works without a wrapper script.
func (c *FFDec) command(args ...string) (string, []string) {
	if c.java == "" {
		return c.binary, args
	}
	full := make([]string, 0, len(c.jvmOptions)+2+len(args))
	full = append(full, c.jvmOptions...)
	full = append(full, "-jar", c.binary)
	full = append(full, args...)
	return c.java, full
}

// firstFrame picks the lowest-numbered exported frame.
func firstFrame(outDir, format string) (string, error) {
	var frames []string
	err := filepath.WalkDir(outDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), "."+format) {
			frames = append(frames, path)
		}
		return nil
	})
	if err != nil {
		return "", services.Wrap(services.ErrRenderFailed, "render", "scan frames", outDir, err)
	}
	if len(frames) == 0 {
		return "", services.Wrap(services.ErrRenderFailed, "render", "scan frames",
			"decompiler produced no frames", nil)
	}
	sort.Slice(frames, func(i, j int) bool {
		return frameNumber(frames[i]) < frameNumber(frames[j])
	})
	return frames[0], nil
}

func frameNumber(path string) int {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	n, err := strconv.Atoi(base)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

func summarizeOutput(lines []string) string {
	if len(lines) == 0 {
		return "decompiler failed with no output"
	}
	const keep = 5
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.Join(lines, "; ")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onStdout != nil {
				onStdout(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
		return err
	}
	return scanErr
}
