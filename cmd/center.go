package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/mwantia/vfs/v2/data"
	"github.com/spf13/pflag"
)

// CommandCenter holds the registered commands and dispatches to them.
type CommandCenter struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewCommandCenter() *CommandCenter {
	return &CommandCenter{
		commands: make(map[string]Command),
	}
}

// Register adds command, failing if its name is already taken.
func (cc *CommandCenter) Register(command Command) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	name := command.Name()
	if name == "" {
		return data.ErrInvalid
	}
	if _, exists := cc.commands[name]; exists {
		return fmt.Errorf("command '%s': %w", name, data.ErrExist)
	}
	cc.commands[name] = command
	return nil
}

func (cc *CommandCenter) Get(name string) (Command, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	command, ok := cc.commands[name]
	return command, ok
}

// Commands returns the registered commands sorted by name.
func (cc *CommandCenter) Commands() []Command {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	commands := make([]Command, 0, len(cc.commands))
	for _, command := range cc.commands {
		commands = append(commands, command)
	}
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name() < commands[j].Name()
	})
	return commands
}

// Execute parses raw for the named command and runs it.
// A help request prints the usage of the command and exits with 0.
func (cc *CommandCenter) Execute(ctx context.Context, api API, name string, raw []string, writer io.Writer) (int, error) {
	command, ok := cc.Get(name)
	if !ok {
		return 127, fmt.Errorf("unknown command '%s': %w", name, data.ErrNotSupported)
	}

	args, err := NewParser(name, command.GetFlags()).Parse(raw)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			cc.PrintUsage(writer, command)
			return 0, nil
		}
		return 2, err
	}
	return command.Execute(ctx, api, args, writer)
}

// PrintUsage writes the usage and flags of command.
func (cc *CommandCenter) PrintUsage(w io.Writer, command Command) {
	fmt.Fprintf(w, "Usage: %s\n\n", command.Usage())
	if desc := command.Description(); desc != "" {
		fmt.Fprintf(w, "%s\n\n", desc)
	}

	fs, _ := NewParser(command.Name(), command.GetFlags()).FlagSet(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

// PrintHelp writes a summary of every registered command.
func (cc *CommandCenter) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, command := range cc.Commands() {
		fmt.Fprintf(w, "  %-8s %s\n", command.Name(), command.Description())
	}
}
