package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dalnet/opbot/internal/command"
)

func TestList(t *testing.T) {
	t.Parallel()

	l := New([]string{"Root"}, map[string][]string{"#Ops": {"carol"}})

	assert.True(t, l.IsAdmin(&command.User{Account: "root"}))
	assert.False(t, l.IsAdmin(&command.User{Account: "carol"}))
	assert.False(t, l.IsAdmin(nil))

	assert.True(t, l.IsOperator(&command.User{Account: "CAROL"}, "#ops"))
	assert.False(t, l.IsOperator(&command.User{Account: "carol"}, "#other"))
	assert.False(t, l.IsOperator(&command.User{Account: "carol"}, ""))
	assert.False(t, l.IsOperator(nil, "#ops"))
}

func TestListReload(t *testing.T) {
	t.Parallel()

	l := New([]string{"root"}, nil)
	l.Reload([]string{"erin"}, map[string][]string{"#ops": {"dave"}})

	assert.False(t, l.IsAdmin(&command.User{Account: "root"}))
	assert.True(t, l.IsAdmin(&command.User{Account: "erin"}))
	assert.True(t, l.IsOperator(&command.User{Account: "dave"}, "#ops"))
}

func TestListWithPolicies(t *testing.T) {
	t.Parallel()

	policies := command.Policies(New([]string{"root"}, map[string][]string{"#ops": {"carol"}}))

	assert.True(t, policies[command.RequireOperator](&command.User{Account: "root"}, "#anything"))
	assert.True(t, policies[command.RequireOperator](&command.User{Account: "carol"}, "#ops"))
	assert.False(t, policies[command.RequireAdmin](&command.User{Account: "carol"}, "#ops"))
}
