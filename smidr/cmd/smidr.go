// Command smidr is a terminal client for a smidr server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"smidr/smidr/services/provider"
	"smidr/smidr/utils/color"
	"smidr/smidr/utils/jsonutils"
)

type cliOptions struct {
	server   string
	user     string
	password string
	interval time.Duration
	attempts int
	timeout  time.Duration
	asJSON   bool
	noColor  bool
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.ColorError(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "smidr",
		Short:         "Talk to a smidr server from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.Disable()
			}
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("SMIDR_SERVER", "http://localhost:8080"), "server base url")
	flags.StringVarP(&opts.user, "user", "u", os.Getenv("SMIDR_USER"), "username or email")
	flags.StringVar(&opts.password, "password", os.Getenv("SMIDR_PASSWORD"), "password (prompted when empty)")
	flags.DurationVar(&opts.interval, "interval", time.Second, "poll interval while waiting for a reply")
	flags.IntVar(&opts.attempts, "attempts", 60, "polls before giving up on a run")
	flags.DurationVar(&opts.timeout, "timeout", 90*time.Second, "per-request timeout")
	flags.BoolVar(&opts.asJSON, "json", false, "print raw JSON results")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newLoginCmd(opts), newChatCmd(opts), newAskCmd(opts))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connect logs in and returns a client holding the session cookie.
func connect(ctx context.Context, cmd *cobra.Command, opts *cliOptions, lines *bufio.Scanner) (*apiClient, error) {
	client, err := newAPIClient(opts.server, opts.timeout)
	if err != nil {
		return nil, err
	}
	user, password := opts.user, opts.password
	if user == "" {
		if user, err = prompt(cmd.OutOrStdout(), lines, "user: "); err != nil {
			return nil, err
		}
	}
	if password == "" {
		if password, err = prompt(cmd.OutOrStdout(), lines, "password: "); err != nil {
			return nil, err
		}
	}
	resp, err := client.Login(ctx, user, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.ColorInfo("signed in as "+resp.User.Username))
	return client, nil
}

func prompt(out io.Writer, lines *bufio.Scanner, label string) (string, error) {
	fmt.Fprint(out, color.ColorPrompt(label))
	if !lines.Scan() {
		if err := lines.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(lines.Text()), nil
}

func newLoginCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check credentials and show the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			lines := bufio.NewScanner(cmd.InOrStdin())
			client, err := connect(ctx, cmd, opts, lines)
			if err != nil {
				return err
			}
			info, err := client.Session(ctx)
			if err != nil {
				return err
			}
			if opts.asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), jsonutils.ToJSON(info))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pages: %s\n", strings.Join(info.AllowedPages, ", "))
			return nil
		},
	}
}

func newChatCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Thread-mode conversation: submit each line and wait for the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			lines := bufio.NewScanner(cmd.InOrStdin())
			client, err := connect(ctx, cmd, opts, lines)
			if err != nil {
				return err
			}
			defer client.Logout(context.Background())
			return repl(ctx, cmd.OutOrStdout(), lines, func(line string) error {
				return threadTurn(ctx, cmd.OutOrStdout(), client, opts, line)
			})
		},
	}
}

func threadTurn(ctx context.Context, out io.Writer, client *apiClient, opts *cliOptions, line string) error {
	sub, err := client.Submit(ctx, line)
	if err != nil {
		return err
	}
	res, err := client.WaitReply(ctx, sub.RunID, opts.interval, opts.attempts)
	if err != nil {
		return err
	}
	if opts.asJSON {
		fmt.Fprintln(out, jsonutils.ToJSON(res))
		return nil
	}
	if res.Reply != nil {
		fmt.Fprintln(out, color.ColorReply(*res.Reply))
		return nil
	}
	msg := "run ended: " + color.ColorStatus(string(res.Status))
	if res.LastError != "" {
		msg += " (" + res.LastError + ")"
	}
	fmt.Fprintln(out, msg)
	return nil
}

func newAskCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [message]",
		Short: "Stateless conversation; with a message, ask once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			lines := bufio.NewScanner(cmd.InOrStdin())
			client, err := connect(ctx, cmd, opts, lines)
			if err != nil {
				return err
			}
			defer client.Logout(context.Background())

			var history []provider.InputMessage
			turn := func(line string) error {
				res, err := client.Chat(ctx, history, line)
				if err != nil {
					return err
				}
				history = res.Conversation
				if opts.asJSON {
					fmt.Fprintln(cmd.OutOrStdout(), jsonutils.ToJSON(res))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), color.ColorReply(res.Reply))
				}
				return nil
			}
			if len(args) > 0 {
				return turn(strings.Join(args, " "))
			}
			return repl(ctx, cmd.OutOrStdout(), lines, turn)
		},
	}
}

// repl feeds each non-empty input line to turn until EOF, "exit" or ctx ends.
// Server-side errors are printed and the loop continues; auth errors end it.
func repl(ctx context.Context, out io.Writer, lines *bufio.Scanner, turn func(string) error) error {
	fmt.Fprintln(out, color.ColorInfo("type 'exit' to quit"))
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := prompt(out, lines, "smidr> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := turn(line); err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == 401 {
				return err
			}
			fmt.Fprintln(out, color.ColorWarning(err.Error()))
		}
	}
}
