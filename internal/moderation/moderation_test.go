package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalnet/opbot/internal/acl"
	"github.com/dalnet/opbot/internal/command"
	"github.com/dalnet/opbot/internal/timer"
)

type fakeBot struct {
	mu       sync.Mutex
	calls    []string
	present  map[string]bool
	failMode error
}

func (b *fakeBot) record(format string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
	return b.failMode
}

func (b *fakeBot) GiveOp(_ context.Context, n, c string) error    { return b.record("+o %s %s", c, n) }
func (b *fakeBot) TakeOp(_ context.Context, n, c string) error    { return b.record("-o %s %s", c, n) }
func (b *fakeBot) GiveVoice(_ context.Context, n, c string) error { return b.record("+v %s %s", c, n) }
func (b *fakeBot) TakeVoice(_ context.Context, n, c string) error { return b.record("-v %s %s", c, n) }
func (b *fakeBot) GiveQuiet(_ context.Context, m, c string) error { return b.record("+q %s %s", c, m) }
func (b *fakeBot) TakeQuiet(_ context.Context, m, c string) error { return b.record("-q %s %s", c, m) }
func (b *fakeBot) GiveBan(_ context.Context, m, c string) error   { return b.record("+b %s %s", c, m) }
func (b *fakeBot) TakeBan(_ context.Context, m, c string) error   { return b.record("-b %s %s", c, m) }
func (b *fakeBot) Kick(_ context.Context, n, c string) error      { return b.record("kick %s %s", c, n) }
func (b *fakeBot) CurrentNick() string                            { return "opbot" }

func (b *fakeBot) ExpandHostmask(_ context.Context, target string) (string, error) {
	return "*!*@" + target + ".users.example", nil
}

func (b *fakeBot) IsInChannel(_ context.Context, nick, _ string) (bool, error) {
	return b.present[nick], nil
}

func (b *fakeBot) history() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

type memPersister struct {
	mu      sync.Mutex
	entries []timer.Entry
	fail    bool
}

func (m *memPersister) Load(context.Context) ([]timer.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]timer.Entry(nil), m.entries...), nil
}

func (m *memPersister) Save(_ context.Context, entries []timer.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.entries = append([]timer.Entry(nil), entries...)
	return nil
}

type directory map[string]*command.User

func (d directory) Resolve(_ context.Context, nick string) (*command.User, error) {
	return d[nick], nil
}

type notes struct {
	mu   sync.Mutex
	sent []string
}

func (n *notes) Notify(nick, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, nick+": "+text)
}

func (n *notes) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type harness struct {
	now     time.Time
	bot     *fakeBot
	store   *memPersister
	notes   *notes
	sched   *timer.Scheduler
	handler *command.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		now:   time.Now().UTC().Truncate(time.Second),
		bot:   &fakeBot{present: map[string]bool{"bob": true}},
		store: &memPersister{},
		notes: &notes{},
	}

	store, err := timer.OpenStore(context.Background(), h.store)
	require.NoError(t, err)
	h.sched, err = timer.NewScheduler(store, Actions(h.bot), timer.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(h.sched.Stop)

	p := &Plugin{Bot: h.bot, Notify: h.notes, Timers: h.sched, Version: "1.2.3", Now: func() time.Time { return h.now }}
	table, err := command.NewTable(
		command.Policies(acl.New([]string{"root"}, map[string][]string{"#ops": {"carol"}})),
		p.Commands()...,
	)
	require.NoError(t, err)

	users := directory{
		"carol": {Account: "carol"},
		"root":  {Account: "root"},
		"dave":  {Account: "dave"},
	}
	h.handler = command.NewDispatcher(table, users, h.notes)
	return h
}

func (h *harness) run(t *testing.T, nick, message string) {
	t.Helper()
	_ = h.handler.Handle(context.Background(), nick, "#ops", message)
}

func TestOpWithoutDuration(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "op bob")

	assert.Equal(t, []string{"+o #ops bob"}, h.bot.history())
	assert.Equal(t, []string{"carol: bob was opped."}, h.notes.messages())
	assert.Empty(t, h.sched.Pending())
}

func TestOpDefaultsToCaller(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "op")

	assert.Equal(t, []string{"+o #ops carol"}, h.bot.history())
	assert.Equal(t, []string{"carol: carol was opped."}, h.notes.messages())
}

func TestOpWithDurationSchedulesDeop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "op bob 10m")

	assert.Equal(t, []string{"+o #ops bob"}, h.bot.history())
	assert.Equal(t, []string{"carol: bob was opped for 10 minutes."}, h.notes.messages())

	pending := h.sched.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, timer.Deop, pending[0].Action)
	assert.Equal(t, "bob", pending[0].Target)
	assert.Equal(t, "#ops", pending[0].Channel)
	assert.WithinDuration(t, h.now.Add(10*time.Minute), pending[0].FireAt, 0)

	// persisted as well
	assert.Len(t, h.store.entries, 1)
}

func TestOpWithTwoWordDuration(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "voice bob 2 hours")

	assert.Equal(t, []string{"carol: bob was voiced for 2 hours."}, h.notes.messages())
	pending := h.sched.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, timer.Devoice, pending[0].Action)
	assert.WithinDuration(t, h.now.Add(2*time.Hour), pending[0].FireAt, 0)
}

func TestTimedCommandWithoutDuration(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "op bob soon")

	assert.Empty(t, h.bot.history())
	assert.Equal(t, []string{`carol: Sorry, but I can't do that. I couldn't find a duration in "soon".`}, h.notes.messages())
	assert.Empty(t, h.sched.Pending())
}

func TestZeroDurationIsRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "op bob 0")
	h.run(t, "carol", "voice bob 0 minutes")

	assert.Empty(t, h.bot.history())
	assert.Empty(t, h.sched.Pending())
	assert.Equal(t, []string{
		`carol: Sorry, but I can't do that. "0" is too short, use at least one second.`,
		`carol: Sorry, but I can't do that. "0 minutes" is too short, use at least one second.`,
	}, h.notes.messages())
}

func TestChannelCommandsOutsideChannelAreRefused(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, message := range []string{"ban bob 10m", "op bob 10m", "flex", "kick bob", "unban bob"} {
		_ = h.handler.Handle(context.Background(), "root", "", message)
	}

	assert.Empty(t, h.bot.history())
	assert.Empty(t, h.sched.Pending())
	assert.Empty(t, h.store.entries)
	msgs := h.notes.messages()
	require.Len(t, msgs, 5)
	for _, m := range msgs {
		assert.Equal(t, "root: Sorry, but I can't do that. "+ErrNeedsChannel.Error(), m)
	}

	// admin commands still answer in private
	_ = h.handler.Handle(context.Background(), "root", "", "timers")
	assert.Equal(t, "root: No pending timers.", h.notes.messages()[5])
}

func TestTimedCommandReportsStorageFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.fail = true

	h.run(t, "carol", "op bob 10m")

	msgs := h.notes.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "bob was opped, but the timer could not be saved")
	assert.Empty(t, h.sched.Pending())
}

func TestKickByNonOperatorIsDenied(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "dave", "kick bob")

	assert.Empty(t, h.bot.history())
	assert.Equal(t, []string{"dave: Sorry, but I can't do that. " + command.ErrNotAuthorized.Error()}, h.notes.messages())
}

func TestKickOpsItselfAroundTheKick(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "kick bob")

	assert.Equal(t, []string{"+o #ops opbot", "kick #ops bob", "-o #ops opbot"}, h.bot.history())
	assert.Equal(t, []string{"carol: bob has been kicked."}, h.notes.messages())
}

func TestKickTargetNotInChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "kick mallory")

	assert.Empty(t, h.bot.history())
	assert.Equal(t, []string{"carol: Sorry, but I can't do that. Not in channel"}, h.notes.messages())
}

func TestBanExpandsNickname(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "ban bob")

	assert.Equal(t, []string{"+b #ops *!*@bob.users.example"}, h.bot.history())
	assert.Equal(t, []string{"carol: bob has been banned."}, h.notes.messages())
}

func TestTimedQuietStoresMask(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "quiet bob 1h")

	assert.Equal(t, []string{"+q #ops *!*@bob.users.example"}, h.bot.history())
	assert.Equal(t, []string{"carol: bob has been quieted for 1 hour."}, h.notes.messages())
	pending := h.sched.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, timer.Unquiet, pending[0].Action)
	assert.Equal(t, "*!*@bob.users.example", pending[0].Target)
}

func TestModeFailureIsReported(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.bot.failMode = errors.New("not connected")

	h.run(t, "carol", "devoice bob")

	assert.Equal(t, []string{"carol: Sorry, but I can't do that. not connected"}, h.notes.messages())
}

func TestUsageOnMalformedArguments(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "deop bob extra")

	assert.Empty(t, h.bot.history())
	assert.Equal(t, []string{"carol: Usage: deop [TARGET_NICK]"}, h.notes.messages())
}

func TestFlexSchedulesShortDeop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "flex")

	assert.Equal(t, []string{"+o #ops carol"}, h.bot.history())
	pending := h.sched.Pending()
	require.Len(t, pending, 1)
	assert.WithinDuration(t, h.now.Add(flexDuration), pending[0].FireAt, 0)
}

func TestTimersIsAdminOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "carol", "timers")
	h.run(t, "root", "timers")
	h.run(t, "carol", "op bob 3d")
	h.run(t, "root", "timers")

	assert.Equal(t, []string{
		"carol: Sorry, but I can't do that. " + command.ErrNotAuthorized.Error(),
		"root: No pending timers.",
		"carol: bob was opped for 3 days.",
		"root: 1 pending timers:",
		"root: deop bob on #ops in 3 days",
	}, h.notes.messages())
}

func TestVersion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.run(t, "stranger", "version")

	assert.Equal(t, []string{"stranger: opbot version 1.2.3"}, h.notes.messages())
}

func TestActionsUndoGrants(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{}
	actions := Actions(bot)
	require.NoError(t, actions.Validate())

	ctx := context.Background()
	require.NoError(t, actions[timer.Deop](ctx, "bob", "#ops"))
	require.NoError(t, actions[timer.Unban](ctx, "*!*@host", "#ops"))

	assert.Equal(t, []string{"-o #ops bob", "-b #ops *!*@host"}, bot.history())
}
