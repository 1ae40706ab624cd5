package irc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
)

// Channel modes go through ChanServ so the bot does not need to sit opped.

func (c *Client) chanserv(verb, channel, target string) error {
	return c.conn.Privmsg(c.cfg.ChanServ, fmt.Sprintf("%s %s %s", verb, channel, target))
}

func (c *Client) GiveOp(ctx context.Context, nick, channel string) error {
	if foldNick(nick) != foldNick(c.CurrentNick()) {
		return c.chanserv("OP", channel, nick)
	}
	return c.opSelf(ctx, channel)
}

func (c *Client) TakeOp(_ context.Context, nick, channel string) error {
	return c.chanserv("DEOP", channel, nick)
}

func (c *Client) GiveVoice(_ context.Context, nick, channel string) error {
	return c.chanserv("VOICE", channel, nick)
}

func (c *Client) TakeVoice(_ context.Context, nick, channel string) error {
	return c.chanserv("DEVOICE", channel, nick)
}

func (c *Client) GiveQuiet(_ context.Context, mask, channel string) error {
	return c.chanserv("QUIET", channel, mask)
}

func (c *Client) TakeQuiet(_ context.Context, mask, channel string) error {
	return c.chanserv("UNQUIET", channel, mask)
}

// GiveBan and TakeBan set the mode directly; ChanServ would rewrite the mask.
func (c *Client) GiveBan(ctx context.Context, mask, channel string) error {
	return c.withOps(ctx, channel, func() error {
		return c.conn.Send("MODE", channel, "+b", mask)
	})
}

func (c *Client) TakeBan(ctx context.Context, mask, channel string) error {
	return c.withOps(ctx, channel, func() error {
		return c.conn.Send("MODE", channel, "-b", mask)
	})
}

func (c *Client) Kick(_ context.Context, nick, channel string) error {
	return c.conn.Send("KICK", channel, nick, "Requested by a channel operator")
}

// ExpandHostmask returns target unchanged when it already looks like a mask,
// otherwise *!*@host of the nick it names.
func (c *Client) ExpandHostmask(ctx context.Context, target string) (string, error) {
	if strings.ContainsAny(target, "!@$") {
		return target, nil
	}
	reply, err := c.whois.lookup(ctx, target)
	if err != nil {
		return "", fmt.Errorf("cannot find %s: %w", target, err)
	}
	if reply.Host == "" {
		return "", fmt.Errorf("cannot find a host for %s", target)
	}
	return "*!*@" + reply.Host, nil
}

func (c *Client) IsInChannel(ctx context.Context, nick, channel string) (bool, error) {
	reply, err := c.whois.lookup(ctx, nick)
	switch {
	case errors.Is(err, ErrNoSuchNick):
		return false, nil
	case err != nil:
		return false, err
	}
	return reply.in(channel), nil
}

func (c *Client) CurrentNick() string {
	return c.conn.CurrentNick()
}

// withOps runs fn opped, dropping ops afterwards when it had to take them.
// Calls for the same channel run one at a time so one caller's DEOP never
// lands between another's OP and its mode change.
func (c *Client) withOps(ctx context.Context, channel string, fn func() error) error {
	lock := c.channelLock(channel)
	lock.Lock()
	defer lock.Unlock()

	if c.isOpped(channel) {
		return fn()
	}
	if err := c.opSelf(ctx, channel); err != nil {
		return err
	}
	err := fn()
	if derr := c.chanserv("DEOP", channel, c.CurrentNick()); err == nil {
		err = derr
	}
	// the next caller asks again instead of trusting ops that are on their way out
	c.mu.Lock()
	delete(c.opped, foldNick(channel))
	c.mu.Unlock()
	return err
}

func (c *Client) channelLock(channel string) *sync.Mutex {
	key := foldNick(channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.modeLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.modeLocks[key] = lock
	}
	return lock
}

// opSelf asks ChanServ for ops and waits until the server confirms them
func (c *Client) opSelf(ctx context.Context, channel string) error {
	key := foldNick(channel)

	c.mu.Lock()
	if c.opped[key] {
		c.mu.Unlock()
		return nil
	}
	wait, ok := c.opWait[key]
	if !ok {
		wait = make(chan struct{})
		c.opWait[key] = wait
	}
	c.mu.Unlock()

	if !ok {
		if err := c.chanserv("OP", channel, c.CurrentNick()); err != nil {
			return err
		}
	}

	t := time.NewTimer(c.cfg.WhoisTimeout)
	defer t.Stop()
	select {
	case <-wait:
		return nil
	case <-t.C:
		c.mu.Lock()
		if c.opWait[key] == wait {
			delete(c.opWait, key)
		}
		c.mu.Unlock()
		return fmt.Errorf("ChanServ did not op me in %s", channel)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) isOpped(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opped[foldNick(channel)]
}

// onMode tracks the bot's own channel operator status.
// MODE <channel> <modes> [args...]
func (c *Client) onMode(e ircmsg.Message) {
	if len(e.Params) < 3 || !strings.HasPrefix(e.Params[0], "#") {
		return
	}
	channel := foldNick(e.Params[0])
	self := foldNick(c.CurrentNick())

	adding := true
	args := e.Params[2:]
	for _, m := range e.Params[1] {
		switch m {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}
		if !takesArg(m, adding) {
			continue
		}
		if len(args) == 0 {
			return
		}
		arg := args[0]
		args = args[1:]
		if m != 'o' || foldNick(arg) != self {
			continue
		}

		c.mu.Lock()
		c.opped[channel] = adding
		if wait, ok := c.opWait[channel]; ok && adding {
			close(wait)
			delete(c.opWait, channel)
		}
		c.mu.Unlock()
	}
}

// takesArg reports whether a channel mode letter consumes a parameter
func takesArg(m rune, adding bool) bool {
	switch m {
	case 'o', 'v', 'h', 'b', 'q', 'e', 'I', 'k':
		return true
	case 'l', 'j', 'f':
		return adding
	}
	return false
}
