package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Directory resolves nicknames to services identities
type Directory interface {
	// Resolve returns nil (and no error) when nick is not authenticated.
	Resolve(ctx context.Context, nick string) (*User, error)
}

// Notifier delivers private messages to users
type Notifier interface {
	Notify(nick, text string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(nick, text string)

func (f NotifierFunc) Notify(nick, text string) { f(nick, text) }

var (
	ErrNotAuthenticated = errors.New("You don't have permission to perform this command. You will need to be authed before you can try!")
	ErrNotAuthorized    = errors.New("You don't have permission to perform this command.")
)

// Kind classifies dispatch failures
type Kind int

const (
	KindResolve Kind = iota + 1
	KindPermission
	KindAction
)

func (k Kind) String() string {
	switch k {
	case KindResolve:
		return "resolve"
	case KindPermission:
		return "permission"
	case KindAction:
		return "action"
	}
	return "unknown"
}

// DispatchError is returned by Handle after the failure was reported to the sender
type DispatchError struct {
	Kind    Kind
	Command string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// AuditFunc observes every message that names a registered command
type AuditFunc func(nick, channel, message string, err error)

// Dispatcher routes messages to command entries
type Dispatcher struct {
	table  *Table
	users  Directory
	notify Notifier

	// Audit, when set, is called after each dispatch of a registered command.
	Audit AuditFunc
}

// NewDispatcher creates a dispatcher over a built table
func NewDispatcher(table *Table, users Directory, notify Notifier) *Dispatcher {
	return &Dispatcher{table: table, users: users, notify: notify}
}

// Split separates a message into command name and argument text
func Split(message string) (name, args string) {
	if i := strings.IndexAny(message, " \t"); i >= 0 {
		return message[:i], message[i+1:]
	}
	return message, ""
}

// Handle runs message on behalf of nick in channel. Unknown commands are ignored.
// Failures are reported to nick; the returned error is informational only.
func (d *Dispatcher) Handle(ctx context.Context, nick, channel, message string) error {
	name, args := Split(message)
	cmd, ok := d.table.Lookup(name)
	if !ok {
		return nil
	}

	err := d.dispatch(ctx, cmd, nick, channel, args)
	if d.Audit != nil {
		d.Audit(nick, channel, message, err)
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *Command, nick, channel, args string) error {
	for _, e := range cmd.entries {
		params, ok := e.pattern.Match(args)
		if !ok {
			continue
		}

		user, err := d.users.Resolve(ctx, nick)
		if err != nil {
			return d.fail(nick, &DispatchError{Kind: KindResolve, Command: cmd.Name, Err: err})
		}

		if !e.policy(user, channel) {
			denied := ErrNotAuthorized
			if user == nil {
				denied = ErrNotAuthenticated
			}
			return d.fail(nick, &DispatchError{Kind: KindPermission, Command: cmd.Name, Err: denied})
		}

		ev := &Event{Nick: nick, User: user, Channel: channel, Args: args}
		if err := invoke(ctx, e.action, ev, params); err != nil {
			return d.fail(nick, &DispatchError{Kind: KindAction, Command: cmd.Name, Err: err})
		}
		return nil
	}

	if cmd.Usage != "" {
		d.notify.Notify(nick, cmd.Usage)
	}
	return nil
}

func (d *Dispatcher) fail(nick string, err *DispatchError) error {
	d.notify.Notify(nick, fmt.Sprintf("Sorry, but I can't do that. %v", err.Err))
	return err
}

func invoke(ctx context.Context, action Action, ev *Event, params []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return action(ctx, ev, params...)
}
