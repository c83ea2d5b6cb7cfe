// ABOUTME: Terminal chat client for a parley relay over WebSocket
// ABOUTME: Sends the identity, forwards stdin lines as commands and prints decoded frames

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
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/parley/internal/protocol"
	"github.com/2389/parley/internal/transport"
)

func main() {
	url := pflag.StringP("url", "u", "ws://localhost:8080/ws", "relay WebSocket URL")
	name := pflag.StringP("name", "n", os.Getenv("USER"), "identity to connect as")
	pflag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *url, *name, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, url, name string, in io.Reader, out io.Writer) error {
	conn, err := transport.Dial(ctx, url, transport.Options{})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer conn.Close(nil)

	if err := conn.Send(ctx, []byte(name)); err != nil {
		return fmt.Errorf("sending identity: %w", err)
	}

	fmt.Fprintf(out, "parley-chat connected to %s as %s\n", url, name)
	fmt.Fprintln(out, "Commands: TO|name|text, HISTORY|name, /to name text, /history name, /quit")
	fmt.Fprintln(out)

	readErr := make(chan error, 1)
	go func() {
		readErr <- readFrames(ctx, conn, out)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "connection closed by relay")
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			frame, quit := translate(line)
			if quit {
				return nil
			}
			if frame == "" {
				continue
			}
			if err := conn.Send(ctx, []byte(frame)); err != nil {
				return fmt.Errorf("sending: %w", err)
			}
		}
	}
}

// translate turns an input line into a wire frame. Slash shortcuts are
// expanded; anything else is sent verbatim.
func translate(line string) (frame string, quit bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return "", false
	case trimmed == "/quit":
		return "", true
	case strings.HasPrefix(trimmed, "/to "):
		to, text, _ := strings.Cut(strings.TrimPrefix(trimmed, "/to "), " ")
		return protocol.FormatSend(to, text), false
	case strings.HasPrefix(trimmed, "/history "):
		return protocol.FormatHistory(strings.TrimPrefix(trimmed, "/history ")), false
	default:
		return line, false
	}
}

func readFrames(ctx context.Context, conn *transport.Conn, out io.Writer) error {
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			return err
		}

		frame, err := protocol.Decode([]byte(data))
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "! %v\n", err)
			continue
		}
		render(out, frame)
	}
}

func render(out io.Writer, frame any) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	switch f := frame.(type) {
	case *protocol.UsersFrame:
		online := make(map[string]bool, len(f.Online))
		for _, name := range f.Online {
			online[name] = true
		}
		gray.Fprint(out, "users:")
		for _, name := range f.All {
			if online[name] {
				green.Fprintf(out, " %s", name)
			} else {
				gray.Fprintf(out, " %s", name)
			}
		}
		fmt.Fprintln(out)

	case *protocol.MessageFrame:
		gray.Fprintf(out, "[%s] ", f.Time)
		cyan.Fprintf(out, "%s: ", f.From)
		fmt.Fprintln(out, f.Message)

	case *protocol.HistoryFrame:
		gray.Fprintf(out, "--- history with %s (%d) ---\n", f.With, len(f.Messages))
		for _, m := range f.Messages {
			gray.Fprintf(out, "[%s %s] ", m.Date, m.Time)
			cyan.Fprintf(out, "%s: ", m.From)
			fmt.Fprintln(out, m.Text)
		}
		gray.Fprintln(out, "---")
	}
}
