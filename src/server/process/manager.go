// Package process owns the lifecycle of language server subprocesses:
// spawning with stdio pipes, watching for exit, and graceful stop.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"lsmcp/src/internal/common"
	"lsmcp/src/internal/types"
)

// ShutdownTimeout bounds how long StopProcess waits for a server to exit
// after the shutdown/exit sequence before force killing it.
const ShutdownTimeout = 5 * time.Second

// Info holds the handles for one running language server process.
type Info struct {
	Cmd      *exec.Cmd
	Stdin    io.WriteCloser
	Stdout   io.ReadCloser
	Stderr   io.ReadCloser
	StopCh   chan struct{}
	Language string

	// Done is closed by MonitorProcess once the process has been reaped.
	// MonitorProcess is the only caller of Cmd.Wait.
	Done chan struct{}

	// IntentionalStop is set before a deliberate shutdown so the monitor
	// does not report the exit as a crash.
	IntentionalStop bool
}

// ShutdownSender sends the LSP shutdown handshake. Implemented by the
// session, which owns the wire.
type ShutdownSender interface {
	SendShutdownRequest(ctx context.Context) error
	SendExitNotification(ctx context.Context) error
}

// Manager is the process lifecycle interface used by sessions.
type Manager interface {
	StartProcess(config types.ClientConfig, language string) (*Info, error)
	StopProcess(info *Info, sender ShutdownSender) error
	MonitorProcess(info *Info, onExit func(error))
	CleanupProcess(info *Info)
}

// LSPProcessManager implements Manager for stdio language servers.
type LSPProcessManager struct{}

func NewLSPProcessManager() *LSPProcessManager {
	return &LSPProcessManager{}
}

// StartProcess spawns the configured server with stdio pipes attached. The
// working directory is the project root the language resolution layer
// supplied.
func (pm *LSPProcessManager) StartProcess(config types.ClientConfig, language string) (*Info, error) {
	cmd := exec.Command(config.Command, config.Args...)

	if config.WorkingDir != "" {
		cmd.Dir = config.WorkingDir
	} else if wd, err := os.Getwd(); err == nil {
		cmd.Dir = wd
	}

	info := &Info{
		Cmd:      cmd,
		StopCh:   make(chan struct{}),
		Done:     make(chan struct{}),
		Language: language,
	}

	var err error
	info.Stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	info.Stdout, err = cmd.StdoutPipe()
	if err != nil {
		info.Stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	info.Stderr, err = cmd.StderrPipe()
	if err != nil {
		info.Stdin.Close()
		info.Stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		pm.CleanupProcess(info)
		return nil, fmt.Errorf("failed to start language server: %w", err)
	}

	common.LSPLogger.Info("Started %s language server: command=%s, pid=%d", language, config.Command, cmd.Process.Pid)
	return info, nil
}

// StopProcess drives the graceful stop: send shutdown/exit through the
// sender, signal goroutines via StopCh, wait up to ShutdownTimeout, then
// kill.
func (pm *LSPProcessManager) StopProcess(info *Info, sender ShutdownSender) error {
	if info == nil {
		return nil
	}

	info.IntentionalStop = true

	// Handshake first: the read loop must still be running to correlate the
	// shutdown response.
	if sender != nil {
		pm.sendShutdown(sender)
	}

	select {
	case <-info.StopCh:
	default:
		close(info.StopCh)
	}

	// MonitorProcess owns Cmd.Wait; wait for it to observe the exit.
	if info.Cmd != nil && info.Cmd.Process != nil {
		select {
		case <-info.Done:
		case <-time.After(ShutdownTimeout):
			common.LSPLogger.Warn("%s server did not exit within %v, force killing", info.Language, ShutdownTimeout)
			if err := info.Cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				common.LSPLogger.Error("Failed to kill %s server: %v", info.Language, err)
			}
			<-info.Done
		}
	}

	pm.CleanupProcess(info)
	return nil
}

// MonitorProcess blocks until the process exits, then signals StopCh and
// reports the exit to onExit. Run it on its own goroutine.
func (pm *LSPProcessManager) MonitorProcess(info *Info, onExit func(error)) {
	if info == nil || info.Cmd == nil || info.Cmd.Process == nil {
		if info != nil && info.Done != nil {
			close(info.Done)
		}
		if onExit != nil {
			onExit(fmt.Errorf("invalid process info"))
		}
		return
	}

	err := info.Cmd.Wait()
	close(info.Done)

	if !info.IntentionalStop {
		if err != nil {
			common.LSPLogger.Error("%s server exited unexpectedly: %v", info.Language, err)
		} else {
			common.LSPLogger.Warn("%s server exited unexpectedly with status 0", info.Language)
		}
	}

	select {
	case <-info.StopCh:
	default:
		close(info.StopCh)
	}

	if onExit != nil {
		onExit(err)
	}
}

// CleanupProcess closes all pipes.
func (pm *LSPProcessManager) CleanupProcess(info *Info) {
	if info == nil {
		return
	}

	if info.Stdin != nil {
		info.Stdin.Close()
		info.Stdin = nil
	}
	if info.Stdout != nil {
		info.Stdout.Close()
		info.Stdout = nil
	}
	if info.Stderr != nil {
		info.Stderr.Close()
		info.Stderr = nil
	}
}

// sendShutdown sends the LSP shutdown request then the exit notification,
// each bounded by its own short timeout.
func (pm *LSPProcessManager) sendShutdown(sender ShutdownSender) {
	shutdownCtx, shutdownCancel := common.CreateContext(2 * time.Second)
	defer shutdownCancel()
	_ = sender.SendShutdownRequest(shutdownCtx)

	exitCtx, exitCancel := common.CreateContext(1 * time.Second)
	defer exitCancel()
	_ = sender.SendExitNotification(exitCtx)
}
