package system

import (
	"context"
	"io"
	"os/exec"
	"sync"
)

// osExecutor implements CommandExecutor using real OS operations.
type osExecutor struct{}

func (e *osExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func (e *osExecutor) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		cancel()
		pw.Close()
		return nil, err
	}

	s := &processStream{
		pr:     pr,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		s.err = cmd.Wait()
		pw.Close()
		close(s.done)
	}()
	return s, nil
}

// processStream is the read side of a running command's output.
type processStream struct {
	pr     *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	closeOnce sync.Once
}

func (s *processStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

func (s *processStream) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.done:
		default:
			// Still running: stop reading and kill it.
			s.pr.Close()
			s.cancel()
			<-s.done
		}
		s.cancel()
	})
	return s.err
}
