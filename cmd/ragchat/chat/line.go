package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

const lineHelp = `Commands:
  /new        start a new conversation
  /history    print this conversation so far
  /topk <n>   set how many chunks to retrieve
  /help       show this help
  /exit       leave the chat
Press Ctrl+C while an answer streams to stop it.`

// lineChat is the plain, line-oriented front end: one question per line,
// answers printed as they stream in.
type lineChat struct {
	session *session
	in      io.Reader
	out     io.Writer

	// trapInterrupts makes Ctrl+C stop the running stream instead of the
	// process.
	trapInterrupts bool
}

func (l *lineChat) run(ctx context.Context) error {
	conv := l.session.conversation()
	if n := conv.Transcript().Len() / 2; n > 0 {
		exchanges := "exchanges"
		if n == 1 {
			exchanges = "exchange"
		}
		fmt.Fprintf(l.out, "%s %s %s\n\n",
			cliui.DimStyle.Render("Resuming conversation"),
			cliui.IDStyle.Render(conv.Transcript().ID()),
			cliui.DimStyle.Render(fmt.Sprintf("(%d %s)", n, exchanges)),
		)
	}

	scanner := bufio.NewScanner(l.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(l.out, cliui.UserPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(l.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := l.command(line)
			if err != nil {
				fmt.Fprintf(l.out, "%s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
			}
			if done {
				return nil
			}
			continue
		}

		if err := l.ask(ctx, line); err != nil {
			return err
		}
	}
}

// command runs a slash command. It reports whether the chat should end.
func (l *lineChat) command(line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/new":
		if err := l.session.reset(); err != nil {
			return false, err
		}
		fmt.Fprintf(l.out, "%s %s\n", cliui.SuccessMark, cliui.DimStyle.Render("Started a new conversation"))

	case "/history":
		cliui.WriteTurns(l.out, l.session.conversation().Transcript().Turns())

	case "/topk":
		k, err := strconv.Atoi(arg)
		if err != nil || k <= 0 {
			return false, errors.New("usage: /topk <n>, with n > 0")
		}
		l.session.setTopK(k)
		fmt.Fprintf(l.out, "%s %s\n", cliui.SuccessMark, cliui.DimStyle.Render("top_k = "+strconv.Itoa(k)))

	case "/help":
		fmt.Fprintln(l.out, lineHelp)

	default:
		return false, fmt.Errorf("unknown command %s; try /help", name)
	}

	return false, nil
}

// ask streams one answer to the terminal. Stream failures are reported inline
// and do not end the chat.
func (l *lineChat) ask(ctx context.Context, query string) error {
	printed := 0
	var final transcript.Turn

	fmt.Fprint(l.out, cliui.AssistantPrompt)
	h, err := l.session.ask(ctx, query, client.ObserverFuncs{
		Update: func(turn transcript.Turn) {
			if len(turn.Content) > printed {
				fmt.Fprint(l.out, turn.Content[printed:])
				printed = len(turn.Content)
			}
		},
		Terminal: func(turn transcript.Turn, _ client.Outcome) {
			final = turn
		},
	})
	if err != nil {
		if errors.Is(err, client.ErrBusy) {
			fmt.Fprintf(l.out, "\n%s\n", cliui.ErrorStyle.Render(err.Error()))
			return nil
		}
		return err
	}

	var interrupts chan os.Signal
	if l.trapInterrupts {
		interrupts = make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		defer signal.Stop(interrupts)
	}

	for waiting := true; waiting; {
		select {
		case <-h.Done():
			waiting = false
		case <-interrupts:
			h.Cancel()
		}
	}

	fmt.Fprint(l.out, "\n\n")
	if len(final.Sources) > 0 {
		cliui.WriteSources(l.out, final.Sources)
		fmt.Fprintln(l.out)
	}
	if final.State != transcript.StateCompleted {
		fmt.Fprintf(l.out, "  %s\n\n", cliui.TurnStatus(final))
	}

	return nil
}
