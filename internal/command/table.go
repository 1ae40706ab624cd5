package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Event describes the invocation handed to an action
type Event struct {
	Nick    string
	User    *User // nil when the sender is not authenticated
	Channel string
	Args    string
}

// Action runs a matched entry. params holds one string per capturing group.
type Action func(ctx context.Context, ev *Event, params ...string) error

// Item is one element of a command definition: either a Run entry or a Usage string.
type Item interface {
	item()
}

// Run is an executable entry. An empty Requires means RequireAnybody.
type Run struct {
	Pattern  string
	Requires string
	Do       Action
}

// Usage is the guidance sent when no entry matches
type Usage string

func (Run) item()   {}
func (Usage) item() {}

// Definition declares a command and its items in priority order
type Definition struct {
	Name  string
	Items []Item
}

// ConstructionError reports an invalid command definition
type ConstructionError struct {
	Command string
	Reason  string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("command %q: %s", e.Command, e.Reason)
}

type entry struct {
	pattern *Pattern
	policy  Policy
	action  Action
}

// Command is a registered command
type Command struct {
	Name    string
	Usage   string
	entries []entry
}

// Table maps command names to commands. It is read-only once built.
type Table struct {
	commands map[string]*Command
}

// NewTable validates and compiles defs
func NewTable(policies PolicySet, defs ...Definition) (*Table, error) {
	t := &Table{commands: make(map[string]*Command, len(defs))}
	for _, def := range defs {
		cmd, err := build(policies, def)
		if err != nil {
			return nil, err
		}
		if _, dup := t.commands[cmd.Name]; dup {
			return nil, &ConstructionError{Command: cmd.Name, Reason: "registered twice"}
		}
		t.commands[cmd.Name] = cmd
	}
	return t, nil
}

func build(policies PolicySet, def Definition) (*Command, error) {
	if strings.TrimSpace(def.Name) == "" || strings.ContainsAny(def.Name, " \t") {
		return nil, &ConstructionError{Command: def.Name, Reason: "name must be a single non-empty word"}
	}

	cmd := &Command{Name: def.Name}
	hasUsage := false
	for i, it := range def.Items {
		switch v := it.(type) {
		case Usage:
			if hasUsage {
				return nil, &ConstructionError{Command: def.Name, Reason: "found multiple usage strings"}
			}
			hasUsage = true
			cmd.Usage = string(v)
		case Run:
			if v.Do == nil {
				return nil, &ConstructionError{Command: def.Name, Reason: fmt.Sprintf("entry %d has no action", i)}
			}
			requires := v.Requires
			if requires == "" {
				requires = RequireAnybody
			}
			policy, ok := policies[requires]
			if !ok {
				return nil, &ConstructionError{
					Command: def.Name,
					Reason:  fmt.Sprintf("entry %d requires %q, must be one of: %s", i, requires, strings.Join(policies.names(), " / ")),
				}
			}
			p, err := Compile(v.Pattern)
			if err != nil {
				return nil, &ConstructionError{Command: def.Name, Reason: err.Error()}
			}
			cmd.entries = append(cmd.entries, entry{pattern: p, policy: policy, action: v.Do})
		default:
			return nil, &ConstructionError{Command: def.Name, Reason: fmt.Sprintf("entry %d has unsupported type %T", i, it)}
		}
	}

	if len(cmd.entries) == 0 {
		return nil, &ConstructionError{Command: def.Name, Reason: "contains no callable entries"}
	}
	return cmd, nil
}

// Lookup returns the command registered under name
func (t *Table) Lookup(name string) (*Command, bool) {
	cmd, ok := t.commands[name]
	return cmd, ok
}

// Names returns the registered command names, sorted
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.commands))
	for name := range t.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
