package cmd

// CommandArgs contains parsed command arguments
type CommandArgs struct {
	// Positional arguments (command-specific)
	Args []string

	// Parsed flags, keyed by the flag name
	Flags map[string]any

	// Raw unparsed arguments
	Raw []string
}

// CommandFlagSet defines the expected flags for a command
type CommandFlagSet struct {
	Flags map[string]*CommandFlag
}

// CommandFlag represents a single command-line flag
type CommandFlag struct {
	Name        string `json:"name"`              // e.g. "type"
	Short       string `json:"short"`             // Single-char shorthand (e.g. "t")
	Type        string `json:"type"`              // "string", "bool", "int", "stringSlice"
	Default     any    `json:"default,omitempty"` // Default value
	Required    bool   `json:"required"`          // Must be provided
	Description string `json:"description"`       // Help text
	Multiple    bool   `json:"multiple"`          // Can be specified multiple times
}

func (a *CommandArgs) String(name string) string {
	if v, ok := a.Flags[name].(string); ok {
		return v
	}
	return ""
}

func (a *CommandArgs) Bool(name string) bool {
	if v, ok := a.Flags[name].(bool); ok {
		return v
	}
	return false
}

func (a *CommandArgs) Int(name string) int {
	if v, ok := a.Flags[name].(int); ok {
		return v
	}
	return 0
}

func (a *CommandArgs) Strings(name string) []string {
	if v, ok := a.Flags[name].([]string); ok {
		return v
	}
	return nil
}

// Arg returns the positional argument at i, or fallback if there is none.
func (a *CommandArgs) Arg(i int, fallback string) string {
	if i < len(a.Args) {
		return a.Args[i]
	}
	return fallback
}
