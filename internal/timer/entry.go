// Package timer keeps pending timed moderation actions and fires them when due.
package timer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind names an action that can be scheduled
type Kind string

// Scheduled action kinds. These reverse a time-boxed grant.
const (
	Deop    Kind = "deop"
	Devoice Kind = "devoice"
	Unquiet Kind = "unquiet"
	Unban   Kind = "unban"
)

// Kinds lists every schedulable kind
var Kinds = []Kind{Deop, Devoice, Unquiet, Unban}

var ErrUnknownAction = errors.New("unknown scheduled action")

// Valid reports whether k is one of Kinds
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Entry is one pending action. Within a Store an entry is identified by its pointer;
// ID identifies it across persistence.
type Entry struct {
	ID      string    `yaml:"id"`
	FireAt  time.Time `yaml:"fire_at"`
	Action  Kind      `yaml:"action"`
	Target  string    `yaml:"target"`
	Channel string    `yaml:"channel"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s in %s at %s", e.Action, e.Target, e.Channel, e.FireAt.Format(time.RFC3339))
}

// Func performs a scheduled action
type Func func(ctx context.Context, target, channel string) error

// Actions binds every Kind to its implementation
type Actions map[Kind]Func

// Validate checks that exactly the known kinds are bound
func (a Actions) Validate() error {
	for _, k := range Kinds {
		if a[k] == nil {
			return fmt.Errorf("action %q is not bound", k)
		}
	}
	for k := range a {
		if !k.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownAction, k)
		}
	}
	return nil
}
