// Command register fills in the registration form from a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"signup-portal/internal/client"
)

var prompts = map[client.Field]string{
	client.FieldUsername: "Username",
	client.FieldName:     "Name",
	client.FieldLastName: "Last name",
	client.FieldEmail:    "Email",
	client.FieldPassword: "Password",
}

type terminalNotifier struct {
	in  *bufio.Reader
	out io.Writer
}

func (n terminalNotifier) Success(ctx context.Context, message string) error {
	fmt.Fprintf(n.out, "\n%s\nPress Enter to continue.", message)
	done := make(chan error, 1)
	// On cancellation this reader stays blocked on stdin; run returns and the process exits.
	go func() {
		_, err := n.in.ReadString('\n')
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		fmt.Fprintln(n.out)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
}

func (n terminalNotifier) Error(message string) {
	fmt.Fprintf(n.out, "\nerror: %s\n", message)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080/", "registration page URL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *baseURL, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, baseURL string, stdin *os.File, out io.Writer) error {
	in := bufio.NewReader(stdin)
	form, err := client.NewForm(baseURL, terminalNotifier{in: in, out: out}, nil)
	if err != nil {
		return err
	}
	if err := form.Load(ctx); err != nil {
		return err
	}

	for {
		if err := fill(in, int(stdin.Fd()), out, form); err != nil {
			return err
		}
		res, err := form.Submit(ctx)
		if err != nil {
			return err
		}
		if res.Success {
			return nil
		}
		fmt.Fprintln(out, "Please correct the form and try again.")
	}
}

// fill prompts for every field, keeping the current value when the answer is empty.
func fill(in *bufio.Reader, fd int, out io.Writer, form *client.Form) error {
	current := form.Draft()
	existing := map[client.Field]string{
		client.FieldUsername: current.Username,
		client.FieldName:     current.Name,
		client.FieldLastName: current.LastName,
		client.FieldEmail:    current.Email,
		client.FieldPassword: current.Password,
	}

	for _, field := range client.Fields {
		value, err := ask(in, fd, out, field, existing[field])
		if err != nil {
			return err
		}
		if value == "" {
			value = existing[field]
		}
		if err := form.Set(field, value); err != nil {
			return err
		}
	}
	return nil
}

func ask(in *bufio.Reader, fd int, out io.Writer, field client.Field, current string) (string, error) {
	label := prompts[field]

	if field == client.FieldPassword {
		fmt.Fprintf(out, "%s: ", label)
		if term.IsTerminal(fd) {
			pw, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", fmt.Errorf("read password: %w", err)
			}
			return string(pw), nil
		}
	} else if current != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}

	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", field, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
