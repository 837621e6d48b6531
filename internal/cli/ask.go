// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question with the reply on stdout.
//
// On a terminal the reply is collected and rendered as Markdown once it
// is complete. Piped output, or --raw, streams the text as it arrives.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/molihua12345/KubeAgent/internal/chat"
	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/stream"
)

type askOptions struct {
	noStream bool
	raw      bool
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	ask := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask one question and print the reply",
		Example: `  kubewizard-chat ask "why is my pod in CrashLoopBackOff?"
  kubectl describe pod web-0 | kubewizard-chat ask -`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := questionText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.ErrOrStderr(), opts, logToStderr)
			if err != nil {
				return err
			}
			defer a.Close()
			return runAsk(cmd, a, ask, text)
		},
	}
	cmd.Flags().BoolVar(&ask.noStream, "no-stream", false, "use the non-streaming endpoint")
	cmd.Flags().BoolVar(&ask.raw, "raw", false, "print the reply text as received, without rendering")
	return cmd
}

// questionText joins args into the question. A single "-" reads stdin.
func questionText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read question from stdin: %w", err)
		}
		args = []string{string(data)}
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return "", NewUsageError("ask: the question is empty")
	}
	return text, nil
}

func runAsk(cmd *cobra.Command, a *app, opts *askOptions, text string) error {
	ctx := cmd.Context()
	out := newPrinter(cmd.OutOrStdout())
	out.markdown = true
	out.raw = opts.raw
	stderr := cmd.ErrOrStderr()

	if opts.noStream {
		msg, err := a.facade.AskSync(ctx, text)
		if chat.IsGuard(err) {
			return err
		}
		return printReply(out, stderr, msg, err)
	}

	// Stream deltas straight through unless the reply will be rendered.
	live := opts.raw || !out.color
	var final model.Message
	sink := stream.SinkFuncs{
		OnRaw: func(delta string) {
			if live {
				fmt.Fprint(out.w, delta)
			}
		},
		OnFinal: func(msg model.Message, _ format.Document) {
			final = msg
		},
	}

	err := a.facade.Ask(ctx, text, sink)
	if chat.IsGuard(err) {
		return err
	}

	if live {
		fmt.Fprintln(out.w)
		if final.IsError {
			return printReply(out, stderr, final, err)
		}
		return nil
	}
	return printReply(out, stderr, final, err)
}

// printReply prints a finished reply. Error replies go to stderr and fail
// the command with cause as the exit code source.
func printReply(out *printer, stderr io.Writer, msg model.Message, cause error) error {
	if msg.IsError {
		fmt.Fprintln(stderr, msg.Content)
		return &replyError{Cause: cause}
	}
	fmt.Fprintln(out.w, out.reply(msg.Content))
	return nil
}
