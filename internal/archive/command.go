package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// CommandSink pipes the log file to an external command's stdin. The label
// is appended as the final argument, so "savelog" becomes "savelog <label>".
type CommandSink struct {
	Command string
	Env     []string
}

func NewCommandSink(command string, env []string) *CommandSink {
	return &CommandSink{Command: command, Env: env}
}

func (s *CommandSink) Store(ctx context.Context, label, logPath string) error {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return errors.New("archive command is empty")
	}
	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log for archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	cmd := buildCommand(ctx, cmdStr, label)
	cmd.Stdin = f
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			slog.Warn("archive command output", "command", cmdStr, "output", msg)
		}
		return fmt.Errorf("archive command failed: %w", err)
	}
	return nil
}

// buildCommand constructs an *exec.Cmd for the archive command string with
// the label appended. It avoids invoking a shell when not necessary; when
// metacharacters are present the whole string runs under /bin/sh -c with
// the label as $0-relative positional argument.
func buildCommand(ctx context.Context, cmdStr, label string) *exec.Cmd {
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr+` "$1"`, "sh", label)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	args := append(parts[1:], label)
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}
