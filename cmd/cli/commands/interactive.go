package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// errExit ends an interactive session
var errExit = errors.New("exit")

// sessionOnly commands are not offered inside an interactive session
var sessionOnly = map[string]bool{
	"interactive": true,
	"completion":  true,
	"help":        true,
	"serve":       true,
}

// InteractiveCmd creates the interactive command
func InteractiveCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session (load config once, run multiple commands)",
		Long: `Start an interactive session where you can run multiple commands against the same
storage connection. Type 'as <email>' to change the acting user, 'help' to see the available
commands and 'exit' or 'quit' to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("\n🚀 Starting interactive session...")
			if app.ActingAs != "" {
				fmt.Printf("Acting as %s\n", app.ActingAs)
			}
			fmt.Println("Type 'help' for available commands, 'exit' or 'quit' to leave")

			commands := sessionCommands(cmd.Parent())
			return runSession(app, commands, os.Stdin, os.Stdout)
		},
	}
}

func sessionCommands(root *cobra.Command) map[string]*cobra.Command {
	commands := make(map[string]*cobra.Command)
	for _, sub := range root.Commands() {
		if !sessionOnly[sub.Name()] {
			commands[sub.Name()] = sub
		}
	}
	return commands
}

func runSession(app *AppContext, commands map[string]*cobra.Command, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		err := runLine(app, commands, scanner.Text(), out)
		if errors.Is(err, errExit) {
			fmt.Fprintln(out, "👋 Goodbye!")
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "❌ Error: %v\n\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// runLine executes one session line through the matching command's RunE, skipping the root
// PersistentPreRunE so storage is not reopened
func runLine(app *AppContext, commands map[string]*cobra.Command, line string, out io.Writer) error {
	parts, err := parseCommandLine(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("parsing command: %w", err)
	}
	if len(parts) == 0 {
		return nil
	}
	name, args := parts[0], parts[1:]

	switch name {
	case "exit", "quit":
		return errExit
	case "help":
		printInteractiveHelp(commands, out)
		return nil
	case "as":
		if len(args) != 1 {
			return fmt.Errorf("usage: as <email>")
		}
		app.ActingAs = args[0]
		fmt.Fprintf(out, "Acting as %s\n\n", app.ActingAs)
		return nil
	}

	target, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", name)
	}

	target.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
		// Slice values append on Set once used, so they are emptied instead
		if sv, ok := flag.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
			return
		}
		_ = flag.Value.Set(flag.DefValue)
	})

	if err := target.ParseFlags(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	args = target.Flags().Args()

	if target.Args != nil {
		if err := target.Args(target, args); err != nil {
			return err
		}
	}

	switch {
	case target.RunE != nil:
		return target.RunE(target, args)
	case target.Run != nil:
		target.Run(target, args)
	}
	return nil
}

func printInteractiveHelp(commands map[string]*cobra.Command, out io.Writer) {
	fmt.Fprintln(out, "\nAvailable commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(out, "  %-44s %s\n", cmd.Use, cmd.Short)
	}

	fmt.Fprintf(out, "\n  %-44s %s\n", "as <email>", "Change the acting user")
	fmt.Fprintf(out, "  %-44s %s\n", "help", "Show this help message")
	fmt.Fprintf(out, "  %-44s %s\n\n", "exit, quit", "Exit the interactive session")
}

// parseCommandLine splits a command line into arguments. Single and double quotes group words.
func parseCommandLine(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	var inQuote rune
	quoted := false

	for _, r := range line {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			inQuote = r
			quoted = true
		case unicode.IsSpace(r):
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteRune(r)
		}
	}

	if inQuote != 0 {
		return nil, fmt.Errorf("unclosed quote: %c", inQuote)
	}
	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}

	return args, nil
}
