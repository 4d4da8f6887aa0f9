package cmd

import (
	"errors"
	"slices"
	"testing"

	"github.com/spf13/pflag"
)

func testFlagSet() *CommandFlagSet {
	return &CommandFlagSet{
		Flags: map[string]*CommandFlag{
			"all":   {Name: "all", Short: "a", Type: "bool"},
			"type":  {Name: "type", Short: "t", Type: "string", Default: "zip"},
			"level": {Name: "level", Short: "L", Type: "int", Default: 3},
			"tag":   {Name: "tag", Type: "stringSlice", Multiple: true},
		},
	}
}

func TestParser_Parse(t *testing.T) {
	tests := map[string]struct {
		raw   []string
		all   bool
		typ   string
		level int
		tags  []string
		args  []string
	}{
		"defaults": {
			raw:   []string{"uri"},
			typ:   "zip",
			level: 3,
			args:  []string{"uri"},
		},
		"short": {
			raw:   []string{"-a", "-t", "copy", "-L1", "uri"},
			all:   true,
			typ:   "copy",
			level: 1,
			args:  []string{"uri"},
		},
		"long": {
			raw:   []string{"--type=expanded", "--tag", "x", "--tag", "y", "uri", "path"},
			typ:   "expanded",
			level: 3,
			tags:  []string{"x", "y"},
			args:  []string{"uri", "path"},
		},
		"terminator": {
			raw:   []string{"--", "-a"},
			typ:   "zip",
			level: 3,
			args:  []string{"-a"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			args, err := NewParser("test", testFlagSet()).Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if args.Bool("all") != tt.all {
				t.Errorf("Expected all %t, got %t", tt.all, args.Bool("all"))
			}
			if args.String("type") != tt.typ {
				t.Errorf("Expected %q, got %q", tt.typ, args.String("type"))
			}
			if args.Int("level") != tt.level {
				t.Errorf("Expected level %d, got %d", tt.level, args.Int("level"))
			}
			if !slices.Equal(args.Strings("tag"), tt.tags) {
				t.Errorf("Expected %q, got %q", tt.tags, args.Strings("tag"))
			}
			if !slices.Equal(args.Args, tt.args) {
				t.Errorf("Expected %q, got %q", tt.args, args.Args)
			}
		})
	}
}

func TestParser_Errors(t *testing.T) {
	flags := testFlagSet()
	flags.Flags["name"] = &CommandFlag{Name: "name", Short: "n", Type: "string", Required: true}

	if _, err := NewParser("test", flags).Parse([]string{"-n", "x", "-h"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("Expected ErrHelp, got %v", err)
	}
	if _, err := NewParser("test", flags).Parse([]string{"uri"}); err == nil {
		t.Error("Expected an error for a missing required flag")
	}
	if _, err := NewParser("test", flags).Parse([]string{"-n", "x", "--unknown"}); err == nil {
		t.Error("Expected an error for an unknown flag")
	}
	if _, err := NewParser("test", nil).Parse([]string{"uri"}); err != nil {
		t.Errorf("Expected no error without flags, got %v", err)
	}
}
