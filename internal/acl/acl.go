// Package acl answers who may moderate where, from the admins and operators
// lists in the config file.
package acl

import (
	"strings"
	"sync"

	"github.com/dalnet/opbot/internal/command"
)

// List is a command.Authority backed by configured services accounts.
// Account and channel names compare case-insensitively.
type List struct {
	mu        sync.RWMutex
	admins    map[string]bool
	operators map[string]map[string]bool
}

// New builds a list from admins and per-channel operators
func New(admins []string, operators map[string][]string) *List {
	l := &List{}
	l.Reload(admins, operators)
	return l
}

// Reload replaces both lists
func (l *List) Reload(admins []string, operators map[string][]string) {
	a := make(map[string]bool, len(admins))
	for _, acct := range admins {
		if acct = fold(acct); acct != "" {
			a[acct] = true
		}
	}

	o := make(map[string]map[string]bool, len(operators))
	for channel, accts := range operators {
		set := o[fold(channel)]
		if set == nil {
			set = make(map[string]bool, len(accts))
			o[fold(channel)] = set
		}
		for _, acct := range accts {
			if acct = fold(acct); acct != "" {
				set[acct] = true
			}
		}
	}

	l.mu.Lock()
	l.admins = a
	l.operators = o
	l.mu.Unlock()
}

func (l *List) IsAdmin(u *command.User) bool {
	if u == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.admins[fold(u.Account)]
}

func (l *List) IsOperator(u *command.User, channel string) bool {
	if u == nil || channel == "" {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.operators[fold(channel)][fold(u.Account)]
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
