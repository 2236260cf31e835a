package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/blockberries/encounter"
	"github.com/blockberries/encounter/pkg/router"
)

// errQuit ends the run loop without reporting an error.
var errQuit = errors.New("quit")

// session is the node surface the REPL drives.
type session interface {
	SendMessage(text string) error
	SendSystem(wire string) error
	BeginSession() (encounter.SessionMetrics, error)
	Disconnect() error
	StartDiscovery() error
	RefreshBlockList(ctx context.Context) error
	DumpStateString() string
}

// reloader is the store surface used by /refresh.
type reloader interface {
	Reload() error
}

type repl struct {
	node session
	book reloader
	out  io.Writer
}

const helpText = `commands:
  /begin         start counting the current session
  /act <n>       announce an act change to the peer
  /status        print node state
  /disconnect    end the current connection
  /discover      resume discovery
  /refresh       reload the blocklist from disk
  /quit          exit
anything else is sent as a message`

// run reads lines until ctx ends, input closes or /quit.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := r.handle(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return r.node.SendMessage(line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/begin":
		m, err := r.node.BeginSession()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "session %s started\n", m.SessionID)
	case "/act":
		act, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return fmt.Errorf("usage: /act <number>")
		}
		return r.node.SendSystem(router.FormatActChange(act))
	case "/status":
		fmt.Fprint(r.out, r.node.DumpStateString())
	case "/disconnect":
		return r.node.Disconnect()
	case "/discover":
		return r.node.StartDiscovery()
	case "/refresh":
		if err := r.book.Reload(); err != nil {
			return err
		}
		return r.node.RefreshBlockList(ctx)
	case "/quit", "/exit":
		return errQuit
	case "/help":
		fmt.Fprintln(r.out, helpText)
	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return nil
}

// printEvents writes the node's event stream until ctx ends.
func printEvents(ctx context.Context, node *encounter.Node, out io.Writer) error {
	events := node.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if line := formatEvent(ev); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}
}

func formatEvent(ev encounter.Event) string {
	switch ev.Kind {
	case encounter.EventConnectionStateChanged:
		line := fmt.Sprintf("* %s: %s", ev.Peer, ev.State)
		if ev.Role != "" {
			line += " (" + ev.Role + ")"
		}
		if ev.Error != nil {
			line += ": " + ev.Error.Error()
		}
		return line
	case encounter.EventHandshakeComplete:
		return fmt.Sprintf("* secure channel with %s ready, /begin to start the session", ev.Peer)
	case encounter.EventSessionStarted:
		return fmt.Sprintf("* session %s started", ev.Session.SessionID)
	case encounter.EventUserMessage:
		return fmt.Sprintf("<%s> %s", ev.Peer, ev.Text)
	case encounter.EventSystemMessage:
		if ev.System == nil {
			return ""
		}
		return fmt.Sprintf("* %s: %s %s", ev.Peer, ev.System.Name, ev.System.Value)
	case encounter.EventMeaningfulInteraction:
		return fmt.Sprintf("* meaningful interaction with %s after %s", ev.Peer, ev.Session.Duration.Round(time.Second))
	case encounter.EventConnectionQualityChanged:
		return fmt.Sprintf("* link quality %s", ev.Quality)
	default:
		return ""
	}
}
