package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/pflag"
)

// Parser parses user-defined arguments into flags
type Parser struct {
	name    string
	flagSet *CommandFlagSet
}

func NewParser(name string, flagSet *CommandFlagSet) *Parser {
	if flagSet == nil {
		flagSet = &CommandFlagSet{}
	}
	return &Parser{
		name:    name,
		flagSet: flagSet,
	}
}

// FlagSet builds the pflag set for this command, with -h/--help added.
// Values are read back through the returned getters.
func (cp *Parser) FlagSet(output io.Writer) (*pflag.FlagSet, map[string]func() any) {
	fs := pflag.NewFlagSet(cp.name, pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.SortFlags = true
	fs.BoolP("help", "h", false, "show help")

	getters := make(map[string]func() any, len(cp.flagSet.Flags))
	for _, key := range cp.names() {
		flag := cp.flagSet.Flags[key]
		name := flag.Name
		if name == "" {
			name = key
		}

		switch flag.Type {
		case "bool":
			def, _ := flag.Default.(bool)
			v := fs.BoolP(name, flag.Short, def, flag.Description)
			getters[key] = func() any { return *v }
		case "int":
			def, _ := flag.Default.(int)
			v := fs.IntP(name, flag.Short, def, flag.Description)
			getters[key] = func() any { return *v }
		case "stringSlice":
			def, _ := flag.Default.([]string)
			v := fs.StringSliceP(name, flag.Short, def, flag.Description)
			getters[key] = func() any { return *v }
		default:
			def, _ := flag.Default.(string)
			v := fs.StringP(name, flag.Short, def, flag.Description)
			getters[key] = func() any { return *v }
		}
	}
	return fs, getters
}

// Parse returns pflag.ErrHelp when help was requested.
func (cp *Parser) Parse(raw []string) (*CommandArgs, error) {
	fs, getters := cp.FlagSet(io.Discard)
	if err := fs.Parse(raw); err != nil {
		return nil, err
	}
	if help, _ := fs.GetBool("help"); help {
		return nil, pflag.ErrHelp
	}

	args := &CommandArgs{
		Args:  fs.Args(),
		Flags: make(map[string]any, len(getters)),
		Raw:   raw,
	}
	for key, get := range getters {
		flag := cp.flagSet.Flags[key]
		name := flag.Name
		if name == "" {
			name = key
		}
		if flag.Required && !fs.Changed(name) {
			if flag.Short != "" {
				return nil, fmt.Errorf("required flag: -%s / --%s", flag.Short, name)
			}
			return nil, fmt.Errorf("required flag: --%s", name)
		}
		args.Flags[key] = get()
	}
	return args, nil
}

func (cp *Parser) names() []string {
	names := make([]string, 0, len(cp.flagSet.Flags))
	for name := range cp.flagSet.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
