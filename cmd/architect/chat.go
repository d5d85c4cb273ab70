package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neboloop/architect/internal/agent/orchestrator"
	"github.com/neboloop/architect/internal/agent/runner"
	"github.com/neboloop/architect/internal/agent/session"
	"github.com/neboloop/architect/internal/logging"
)

// ChatCmd creates the chat command
func ChatCmd() *cobra.Command {
	var interactive bool
	var modeArg string
	var personaArg string

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with the agent about the current project",
		Long: `Send a message to the agent and print its reply. The agent can read and
edit files, run allow-listed commands and tests, search the web and use git.

With --mode apply|run|auto the reply is post-processed: a diff in it is
applied, tests are run, and in auto mode the result is committed and a PR
is opened.

Examples:
  architect chat "Why does the release build crash on startup?"
  architect chat --mode run "Fix the failing ViewModel test"
  architect chat -i --persona mobile_pentester`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				logging.Disable()
			}
			cfg, err := loadAgentConfig()
			if err != nil {
				return err
			}
			mode, err := resolveMode(modeArg, cfg.Mode)
			if err != nil {
				return err
			}
			stack, err := buildAgent(cfg, personaArg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			c := &chatLoop{
				stack: stack,
				mode:  mode,
				sess:  session.New(stack.persona.ID, stack.persona.SystemPrompt()),
				out:   cmd.OutOrStdout(),
			}
			if interactive || len(args) == 0 {
				c.interactive(ctx, cmd.InOrStdin())
				return nil
			}
			if !c.send(ctx, strings.Join(args, " ")) {
				return errors.New("chat failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "start interactive chat session")
	cmd.Flags().StringVarP(&modeArg, "mode", "m", "", "post-processing mode: chat, apply, run or auto (default from config)")
	cmd.Flags().StringVarP(&personaArg, "persona", "p", "", "persona ID (see 'architect personas')")

	return cmd
}

type chatLoop struct {
	stack *agentStack
	mode  orchestrator.Mode
	sess  *session.Session
	out   io.Writer
}

// send runs one foreground turn and prints the reply. Failures are shown as
// a single error line; the session stays usable.
func (c *chatLoop) send(ctx context.Context, text string) bool {
	result, err := c.stack.runner.Send(ctx, c.sess, text)
	if err != nil {
		fmt.Fprintf(c.out, "\033[31mError: %v\033[0m\n", err)
		return false
	}

	fmt.Fprintf(c.out, "\033[32m%s\033[0m\n", strings.TrimSpace(result.Reply))
	if result.CutOff {
		fmt.Fprintln(c.out, "\033[33m[stopped after the tool iteration limit]\033[0m")
	}
	if result.StillUncertain {
		fmt.Fprintln(c.out, "\033[33m[still uncertain after web search]\033[0m")
	}

	if c.mode != orchestrator.ModeChat {
		report := c.stack.orch.Process(ctx, c.mode, result.Reply)
		fmt.Fprintf(c.out, "\n%s\n", report.Summary())
	}
	return true
}

func (c *chatLoop) interactive(ctx context.Context, in io.Reader) {
	fmt.Fprintf(c.out, "\033[1mArchitect\033[0m  persona=%s mode=%s\n", c.stack.persona.ID, c.mode)
	fmt.Fprintln(c.out, "Type your message and press Enter. Use /help for commands, Ctrl+C to exit.")
	fmt.Fprintln(c.out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(c.out, "\033[36m> \033[0m")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.handleCommand(line); quit {
				return
			}
			continue
		}
		c.send(ctx, line)
		fmt.Fprintln(c.out)
		if ctx.Err() != nil {
			return
		}
	}
}

// handleCommand handles interactive commands and reports whether to exit
func (c *chatLoop) handleCommand(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		fmt.Fprintln(c.out, `Commands:
  /help            - Show this help
  /reset           - Start a new conversation
  /persona <id>    - Switch persona (starts a new conversation)
  /mode <mode>     - Switch post-processing mode (chat, apply, run, auto)
  /quit            - Exit`)

	case "/reset":
		if err := c.sess.Reset(c.stack.persona.ID, c.stack.persona.SystemPrompt()); err != nil {
			fmt.Fprintf(c.out, "\033[31mError: %v\033[0m\n", err)
			break
		}
		fmt.Fprintln(c.out, "Conversation cleared.")

	case "/persona":
		if len(fields) < 2 {
			for _, p := range runner.Personas() {
				fmt.Fprintf(c.out, "  %-20s %s\n", p.ID, p.Title)
			}
			break
		}
		p, err := runner.LookupPersona(fields[1])
		if err != nil {
			fmt.Fprintf(c.out, "\033[31mError: %v\033[0m\n", err)
			break
		}
		if err := c.sess.Reset(p.ID, p.SystemPrompt()); err != nil {
			fmt.Fprintf(c.out, "\033[31mError: %v\033[0m\n", err)
			break
		}
		c.stack.persona = p
		fmt.Fprintf(c.out, "Persona: %s\n", p.Title)

	case "/mode":
		if len(fields) < 2 {
			for _, m := range orchestrator.Modes {
				fmt.Fprintf(c.out, "  %-6s %s\n", m, m.Hint())
			}
			break
		}
		mode, err := orchestrator.ParseMode(fields[1])
		if err != nil {
			fmt.Fprintf(c.out, "\033[31mError: %v\033[0m\n", err)
			break
		}
		c.mode = mode
		fmt.Fprintf(c.out, "Mode: %s (%s)\n", mode, mode.Hint())

	case "/quit", "/exit":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command %s, try /help\n", fields[0])
	}
	return false
}
