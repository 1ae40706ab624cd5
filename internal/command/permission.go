package command

import "sort"

// User is the resolved services identity of a message sender.
// A nil *User means the sender is not authenticated.
type User struct {
	Account string
}

// Authority answers rights questions about resolved users
type Authority interface {
	IsAdmin(u *User) bool
	IsOperator(u *User, channel string) bool
}

// Policy decides whether u may run an entry in channel
type Policy func(u *User, channel string) bool

// PolicySet maps policy names (as used in Run.Requires) to policies
type PolicySet map[string]Policy

// Policy names
const (
	RequireOperator = "operator"
	RequireAdmin    = "admin"
	RequireAnybody  = "anybody"
)

// Policies returns the standard policy set backed by auth
func Policies(auth Authority) PolicySet {
	isAdmin := func(u *User, _ string) bool {
		return u != nil && auth.IsAdmin(u)
	}
	return PolicySet{
		RequireOperator: func(u *User, channel string) bool {
			if u == nil {
				return false
			}
			return auth.IsAdmin(u) || auth.IsOperator(u, channel)
		},
		RequireAdmin: isAdmin,
		RequireAnybody: func(*User, string) bool {
			return true
		},
	}
}

func (s PolicySet) names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
