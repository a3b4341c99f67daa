// Package console implements the terminal REPL front-end: a single
// long-lived Agent driven by interactive input, built on
// github.com/chzyer/readline for line editing and history.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/satibot/satibot/pkg/agent"
)

// historyFileName is stored under the workspace directory so history
// survives across console sessions for the same workspace.
const historyFileName = ".satibot_history"

// REPL drives one Agent from stdin/stdout until the user exits.
type REPL struct {
	agent *agent.Agent
	rl    *readline.Instance
}

// New builds a REPL over a already-constructed Agent, with readline history
// persisted at workspace/.satibot_history.
func New(a *agent.Agent, workspace string) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "satibot> ",
		HistoryFile:     filepath.Join(workspace, historyFileName),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("console: init readline: %w", err)
	}
	return &REPL{agent: a, rl: rl}, nil
}

// Close releases the underlying readline instance.
func (r *REPL) Close() error {
	return r.rl.Close()
}

// Run reads lines until EOF or Ctrl-D, feeding each non-empty line to the
// Agent and printing its streamed reply incrementally. A blank line is
// ignored; "exit" or "quit" ends the session, as does an agent run that
// returns agent.ErrInterrupted. ctx is passed to each agent run; the read
// loop itself does not watch it.
func (r *REPL) Run(ctx context.Context) error {
	for {
		line, err := r.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("console: readline: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := r.handle(ctx, line); err != nil {
			if errors.Is(err, agent.ErrInterrupted) {
				fmt.Fprintln(os.Stdout)
				return nil
			}
			fmt.Fprintf(os.Stdout, "error: %v\n", err)
		}
	}
}

// handle runs one line through the agent, streaming each delta straight to
// stdout as it arrives and finishing with a newline.
func (r *REPL) handle(ctx context.Context, line string) error {
	streamedAny := false
	err := r.agent.Run(ctx, line, func(delta string) {
		streamedAny = true
		fmt.Fprint(os.Stdout, delta)
	})
	if streamedAny {
		fmt.Fprintln(os.Stdout)
	}
	return err
}
