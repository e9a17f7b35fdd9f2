package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/stash/internal/printer"
)

// Command is one parsed shell line.
type Command struct {
	Name string
	Args []string
}

const shellHelp = `Commands:
  list                       show all bookmarks
  search <text>              show bookmarks whose description contains text
  add <url> [description]    add a bookmark
  help                       show this help
  quit                       leave the shell
`

// ParseCommand splits a shell line into a command and its arguments.
// Blank lines parse to a zero Command.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, nil
	}

	cmd := Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}
	switch cmd.Name {
	case "list", "refresh", "help", "quit", "exit":
		return cmd, nil
	case "search":
		return cmd, nil
	case "add":
		if len(cmd.Args) == 0 {
			return Command{}, fmt.Errorf("usage: add <url> [description]")
		}
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q (type 'help')", cmd.Name)
	}
}

// RunShell reads commands from in and turns them into controller actions
// until in is exhausted, a quit command is read or ctx is cancelled.
// Responses are rendered by the controller's Run loop, not here.
func RunShell(ctx context.Context, in io.Reader, out io.Writer, c *Controller) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		cmd, err := ParseCommand(scanner.Text())
		if err != nil {
			printer.FailureTo(out, "%v\n", err)
			continue
		}

		switch cmd.Name {
		case "":
		case "list", "refresh":
			c.Refresh()
		case "search":
			c.Search(strings.Join(cmd.Args, " "))
		case "add":
			if _, err := c.Add(cmd.Args[0], strings.Join(cmd.Args[1:], " ")); err != nil {
				printer.FailureTo(out, "%v\n", err)
			}
		case "help":
			fmt.Fprint(out, shellHelp)
		case "quit", "exit":
			return nil
		}
	}
	return scanner.Err()
}
