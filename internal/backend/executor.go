package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	streamBufferSize = 32
	readBufferSize   = 4096
)

// CommandRunner is the interface for running commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
	Start(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr io.ReadCloser, wait func() error, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Start starts a command.
func (ExecCommandRunner) Start(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr io.ReadCloser, wait func() error, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.WaitDelay = 2 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	return stdoutPipe, stderrPipe, cmd.Wait, nil
}

// Executor runs a generation binary.
type Executor struct {
	runner     CommandRunner
	binaryPath string
	timeout    time.Duration
}

// NewExecutor creates an executor. Bare names are looked up in PATH.
func NewExecutor(binaryPath string, timeout time.Duration) (*Executor, error) {
	resolved, err := resolveBinary(binaryPath)
	if err != nil {
		return nil, err
	}

	return &Executor{
		binaryPath: resolved,
		timeout:    timeout,
		runner:     ExecCommandRunner{},
	}, nil
}

// NewExecutorWithRunner creates an executor with a custom runner.
func NewExecutorWithRunner(binaryPath string, timeout time.Duration, runner CommandRunner) *Executor {
	return &Executor{
		binaryPath: binaryPath,
		timeout:    timeout,
		runner:     runner,
	}
}

// Execute runs the command and returns output.
func (e *Executor) Execute(ctx context.Context, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	return e.runner.Run(ctx, e.binaryPath, args, stdin)
}

// Stream runs the command and streams stdout as it is read.
//
// Every chunk holds whole UTF-8 sequences; a sequence split across reads is
// carried over to the next chunk. The channel ends with a Done chunk unless
// ctx is cancelled first, in which case it is closed without one once the
// process has exited.
func (e *Executor) Stream(ctx context.Context, args []string, stdin io.Reader) (<-chan StreamChunk, error) {
	runCtx, cancel := e.withTimeout(ctx)

	stdout, stderr, wait, err := e.runner.Start(runCtx, e.binaryPath, args, stdin)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executor: failed to start command: %w", err)
	}

	ch := make(chan StreamChunk, streamBufferSize)

	send := func(c StreamChunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)
		defer cancel()

		stderrBuf := new(bytes.Buffer)
		stderrDone := make(chan struct{})
		go func() {
			defer close(stderrDone)
			if _, err := io.Copy(stderrBuf, stderr); err != nil && !errors.Is(err, os.ErrClosed) {
				slog.Debug("Failed to read stderr", "error", err)
			}
		}()

		readErr := pump(stdout, send)

		<-stderrDone
		waitErr := wait()

		switch {
		case runCtx.Err() != nil:
			send(StreamChunk{Error: runCtx.Err(), Done: true})
		case readErr != nil:
			send(StreamChunk{Error: readErr, Done: true})
		case waitErr != nil:
			if s := strings.TrimSpace(stderrBuf.String()); s != "" {
				waitErr = fmt.Errorf("%w: %s", waitErr, lastLine(s))
			}
			send(StreamChunk{Error: waitErr, Done: true})
		default:
			send(StreamChunk{Done: true})
		}
	}()

	return ch, nil
}

// pump reads r until EOF and forwards complete UTF-8 text through send.
// It returns early, without error, when send reports the consumer is gone.
func pump(r io.Reader, send func(StreamChunk) bool) error {
	buf := make([]byte, readBufferSize)
	var carry []byte

	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			cut := completePrefix(data)
			carry = append([]byte(nil), data[cut:]...)

			if cut > 0 {
				out := make([]byte, cut)
				copy(out, data[:cut])
				if !send(StreamChunk{Data: out}) {
					return nil
				}
			}
		}

		if errors.Is(err, io.EOF) {
			if len(carry) > 0 && !send(StreamChunk{Data: carry}) {
				return nil
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if utf8.FullRune(b[start:]) {
			return len(b)
		}
		return start
	}
	return len(b)
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func resolveBinary(binaryPath string) (string, error) {
	if strings.ContainsRune(binaryPath, os.PathSeparator) {
		if _, err := os.Stat(binaryPath); err != nil {
			return "", fmt.Errorf("executor: binary not found: %w", err)
		}
		return binaryPath, nil
	}

	resolved, err := exec.LookPath(binaryPath)
	if err != nil {
		return "", fmt.Errorf("executor: binary not found: %w", err)
	}
	return resolved, nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
