// Package moderation defines the channel moderation commands (op, voice, quiet,
// ban, kick and their reversals) and the scheduled actions that undo timed grants.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalnet/opbot/internal/command"
	"github.com/dalnet/opbot/internal/timer"
)

// Moderator performs channel moderation on the network
type Moderator interface {
	GiveOp(ctx context.Context, nick, channel string) error
	TakeOp(ctx context.Context, nick, channel string) error
	GiveVoice(ctx context.Context, nick, channel string) error
	TakeVoice(ctx context.Context, nick, channel string) error
	GiveQuiet(ctx context.Context, mask, channel string) error
	TakeQuiet(ctx context.Context, mask, channel string) error
	GiveBan(ctx context.Context, mask, channel string) error
	TakeBan(ctx context.Context, mask, channel string) error
	Kick(ctx context.Context, nick, channel string) error

	// ExpandHostmask turns a nickname into a ban mask; masks are returned unchanged.
	ExpandHostmask(ctx context.Context, target string) (string, error)
	IsInChannel(ctx context.Context, nick, channel string) (bool, error)
	CurrentNick() string
}

// Scheduler stores timed reversals
type Scheduler interface {
	Schedule(ctx context.Context, fireAt time.Time, kind timer.Kind, target, channel string) (*timer.Entry, error)
	Pending() []timer.Entry
}

// flexDuration is how long flex keeps the caller opped
const flexDuration = 5 * time.Second

var (
	ErrNotInChannel = errors.New("Not in channel")
	ErrNeedsChannel = errors.New("This command must be used in a channel.")
)

// Actions binds every scheduled kind to bot
func Actions(bot Moderator) timer.Actions {
	return timer.Actions{
		timer.Deop:    bot.TakeOp,
		timer.Devoice: bot.TakeVoice,
		timer.Unquiet: bot.TakeQuiet,
		timer.Unban:   bot.TakeBan,
	}
}

// Plugin holds what the moderation commands act on
type Plugin struct {
	Bot     Moderator
	Notify  command.Notifier
	Timers  Scheduler
	Version string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (p *Plugin) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

const (
	optionalNick = `^({{nickname}}?)$`
	timedNick    = `^({{nickname}}) (\S+) *(\S*)$`
	mask         = `^({{hostmask}})$`
	timedMask    = `^({{hostmask}}) (\S+) *(\S*)$`
)

// Commands returns the command definitions served by the plugin
func (p *Plugin) Commands() []command.Definition {
	op := command.RequireOperator
	return []command.Definition{
		{Name: "op", Items: []command.Item{
			command.Run{Pattern: optionalNick, Requires: op, Do: inChannel(p.grantNick(p.Bot.GiveOp, "opped"))},
			command.Run{Pattern: timedNick, Requires: op, Do: inChannel(p.grantNickFor(p.Bot.GiveOp, timer.Deop, "opped"))},
			command.Usage("Usage: op TARGET_NICK [TIME_STAMP]"),
		}},
		{Name: "deop", Items: []command.Item{
			command.Run{Pattern: optionalNick, Requires: op, Do: inChannel(p.grantNick(p.Bot.TakeOp, "deopped"))},
			command.Usage("Usage: deop [TARGET_NICK]"),
		}},
		{Name: "flex", Items: []command.Item{
			command.Run{Pattern: "", Requires: op, Do: inChannel(p.flex)},
		}},
		{Name: "voice", Items: []command.Item{
			command.Run{Pattern: optionalNick, Requires: op, Do: inChannel(p.grantNick(p.Bot.GiveVoice, "voiced"))},
			command.Run{Pattern: timedNick, Requires: op, Do: inChannel(p.grantNickFor(p.Bot.GiveVoice, timer.Devoice, "voiced"))},
			command.Usage("Usage: voice [TARGET_NICK]"),
		}},
		{Name: "devoice", Items: []command.Item{
			command.Run{Pattern: optionalNick, Requires: op, Do: inChannel(p.grantNick(p.Bot.TakeVoice, "devoiced"))},
			command.Usage("Usage: devoice [TARGET_NICK]"),
		}},
		{Name: "quiet", Items: []command.Item{
			command.Run{Pattern: mask, Requires: op, Do: inChannel(p.grantMask(p.Bot.GiveQuiet, "quieted"))},
			command.Run{Pattern: timedMask, Requires: op, Do: inChannel(p.grantMaskFor(p.Bot.GiveQuiet, timer.Unquiet, "quieted"))},
			command.Usage("Usage: quiet [TARGET_NICK]"),
		}},
		{Name: "unquiet", Items: []command.Item{
			command.Run{Pattern: mask, Requires: op, Do: inChannel(p.grantMask(p.Bot.TakeQuiet, "unquieted"))},
			command.Usage("Usage: unquiet [TARGET_NICK]"),
		}},
		{Name: "kick", Items: []command.Item{
			command.Run{Pattern: `^({{nickname}})$`, Requires: op, Do: inChannel(p.kick)},
			command.Usage("Usage: kick [TARGET_NICK]"),
		}},
		{Name: "ban", Items: []command.Item{
			command.Run{Pattern: mask, Requires: op, Do: inChannel(p.grantMask(p.Bot.GiveBan, "banned"))},
			command.Run{Pattern: timedMask, Requires: op, Do: inChannel(p.grantMaskFor(p.Bot.GiveBan, timer.Unban, "banned"))},
			command.Usage("Usage: ban [TARGET_NICK]"),
		}},
		{Name: "unban", Items: []command.Item{
			command.Run{Pattern: mask, Requires: op, Do: inChannel(p.grantMask(p.Bot.TakeBan, "unbanned"))},
			command.Usage("Usage: unban [TARGET_NICK]"),
		}},
		{Name: "timers", Items: []command.Item{
			command.Run{Pattern: `^$`, Requires: command.RequireAdmin, Do: p.listTimers},
		}},
		{Name: "version", Items: []command.Item{
			command.Run{Pattern: `^$`, Do: p.version},
		}},
	}
}

type modeFunc func(ctx context.Context, target, channel string) error

// inChannel rejects private-message use before the action touches any mode or timer
func inChannel(action command.Action) command.Action {
	return func(ctx context.Context, ev *command.Event, params ...string) error {
		if ev.Channel == "" {
			return ErrNeedsChannel
		}
		return action(ctx, ev, params...)
	}
}

// duration reads the duration from the words after the target
func duration(params []string) (time.Duration, error) {
	rest := strings.TrimSpace(strings.Join(params[1:], " "))
	d, ok := timer.ParseDuration(rest)
	if !ok {
		return 0, fmt.Errorf("I couldn't find a duration in %q.", rest)
	}
	if d < time.Second {
		return 0, fmt.Errorf("%q is too short, use at least one second.", rest)
	}
	return d, nil
}

func (p *Plugin) grantNick(mode modeFunc, verb string) command.Action {
	return func(ctx context.Context, ev *command.Event, params ...string) error {
		target := params[0]
		if target == "" {
			target = ev.Nick
		}
		if err := mode(ctx, target, ev.Channel); err != nil {
			return err
		}
		p.Notify.Notify(ev.Nick, fmt.Sprintf("%s was %s.", target, verb))
		return nil
	}
}

func (p *Plugin) grantNickFor(mode modeFunc, undo timer.Kind, verb string) command.Action {
	return func(ctx context.Context, ev *command.Event, params ...string) error {
		target := params[0]
		if target == "" {
			target = ev.Nick
		}
		d, err := duration(params)
		if err != nil {
			return err
		}
		fireAt := p.now().Add(d)
		if err := mode(ctx, target, ev.Channel); err != nil {
			return err
		}
		if _, err := p.Timers.Schedule(ctx, fireAt, undo, target, ev.Channel); err != nil {
			return fmt.Errorf("%s was %s, but the timer could not be saved: %w", target, verb, err)
		}
		p.Notify.Notify(ev.Nick, fmt.Sprintf("%s was %s for %s.", target, verb, timer.Humanize(d)))
		return nil
	}
}

func (p *Plugin) grantMask(mode modeFunc, verb string) command.Action {
	return func(ctx context.Context, ev *command.Event, params ...string) error {
		target := params[0]
		hostmask, err := p.Bot.ExpandHostmask(ctx, target)
		if err != nil {
			return err
		}
		if err := mode(ctx, hostmask, ev.Channel); err != nil {
			return err
		}
		p.Notify.Notify(ev.Nick, fmt.Sprintf("%s has been %s.", target, verb))
		return nil
	}
}

// grantMaskFor stores the reversal before applying the mode, so a timed ban
// is never left without its unban.
func (p *Plugin) grantMaskFor(mode modeFunc, undo timer.Kind, verb string) command.Action {
	return func(ctx context.Context, ev *command.Event, params ...string) error {
		target := params[0]
		d, err := duration(params)
		if err != nil {
			return err
		}
		fireAt := p.now().Add(d)
		hostmask, err := p.Bot.ExpandHostmask(ctx, target)
		if err != nil {
			return err
		}
		if _, err := p.Timers.Schedule(ctx, fireAt, undo, hostmask, ev.Channel); err != nil {
			return err
		}
		if err := mode(ctx, hostmask, ev.Channel); err != nil {
			return err
		}
		p.Notify.Notify(ev.Nick, fmt.Sprintf("%s has been %s for %s.", target, verb, timer.Humanize(d)))
		return nil
	}
}

func (p *Plugin) flex(ctx context.Context, ev *command.Event, _ ...string) error {
	if err := p.Bot.GiveOp(ctx, ev.Nick, ev.Channel); err != nil {
		return err
	}
	_, err := p.Timers.Schedule(ctx, p.now().Add(flexDuration), timer.Deop, ev.Nick, ev.Channel)
	return err
}

func (p *Plugin) kick(ctx context.Context, ev *command.Event, params ...string) error {
	target := params[0]
	present, err := p.Bot.IsInChannel(ctx, target, ev.Channel)
	if err != nil {
		return err
	}
	if !present {
		return ErrNotInChannel
	}

	self := p.Bot.CurrentNick()
	if err := p.Bot.GiveOp(ctx, self, ev.Channel); err != nil {
		return err
	}
	if err := p.Bot.Kick(ctx, target, ev.Channel); err != nil {
		return err
	}
	if err := p.Bot.TakeOp(ctx, self, ev.Channel); err != nil {
		return err
	}
	p.Notify.Notify(ev.Nick, fmt.Sprintf("%s has been kicked.", target))
	return nil
}

func (p *Plugin) listTimers(_ context.Context, ev *command.Event, _ ...string) error {
	pending := p.Timers.Pending()
	if len(pending) == 0 {
		p.Notify.Notify(ev.Nick, "No pending timers.")
		return nil
	}

	now := p.now()
	p.Notify.Notify(ev.Nick, fmt.Sprintf("%d pending timers:", len(pending)))
	for _, e := range pending {
		when := "overdue"
		if left := e.FireAt.Sub(now); left > 0 {
			when = "in " + timer.Humanize(left)
		}
		p.Notify.Notify(ev.Nick, fmt.Sprintf("%s %s on %s %s", e.Action, e.Target, e.Channel, when))
	}
	return nil
}

func (p *Plugin) version(_ context.Context, ev *command.Event, _ ...string) error {
	p.Notify.Notify(ev.Nick, fmt.Sprintf("opbot version %s", p.Version))
	return nil
}
