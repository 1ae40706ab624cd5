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

var (
	ErrNoSuchNick   = errors.New("no such nick")
	ErrWhoisTimeout = errors.New("timed out waiting for WHOIS")
)

// whoisReply is what the server told us about one nick
type whoisReply struct {
	Nick       string
	User       string
	Host       string
	Account    string
	Identified bool
	Channels   []string
}

type whoisCall struct {
	done  chan struct{}
	reply whoisReply
	err   error
}

// whoisTracker runs WHOIS queries and collects their numerics.
// Concurrent lookups for the same nick share one query.
type whoisTracker struct {
	send    func(nick string) error
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*whoisCall

	// nicks whose query ended on 401; the 318 that trails it belongs to no lookup
	trailing map[string]bool
}

func newWhoisTracker(send func(nick string) error, timeout time.Duration) *whoisTracker {
	return &whoisTracker{
		send:     send,
		timeout:  timeout,
		pending:  make(map[string]*whoisCall),
		trailing: make(map[string]bool),
	}
}

func (w *whoisTracker) lookup(ctx context.Context, nick string) (whoisReply, error) {
	key := foldNick(nick)

	w.mu.Lock()
	call, shared := w.pending[key]
	if !shared {
		call = &whoisCall{done: make(chan struct{}), reply: whoisReply{Nick: nick}}
		w.pending[key] = call
	}
	w.mu.Unlock()

	if !shared {
		if err := w.send(nick); err != nil {
			w.finish(key, call, fmt.Errorf("whois %s: %w", nick, err))
		}
	}

	t := time.NewTimer(w.timeout)
	defer t.Stop()

	select {
	case <-call.done:
		return call.reply, call.err
	case <-t.C:
		w.finish(key, call, ErrWhoisTimeout)
		<-call.done
		return call.reply, call.err
	case <-ctx.Done():
		return whoisReply{}, ctx.Err()
	}
}

// finish completes call once, unless a newer query already replaced it
func (w *whoisTracker) finish(key string, call *whoisCall, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[key] != call {
		return
	}
	delete(w.pending, key)
	call.err = err
	close(call.done)
}

// update applies fn to the pending call for nick, if any
func (w *whoisTracker) update(nick string, fn func(r *whoisReply)) {
	key := foldNick(nick)
	w.mu.Lock()
	defer w.mu.Unlock()
	// a fresh reply means the server moved past any trailing 318
	delete(w.trailing, key)
	if call := w.pending[key]; call != nil {
		fn(&call.reply)
	}
}

func (w *whoisTracker) complete(nick string, err error) {
	key := foldNick(nick)
	w.mu.Lock()
	call := w.pending[key]
	if call != nil && errors.Is(err, ErrNoSuchNick) {
		w.trailing[key] = true
	}
	w.mu.Unlock()
	if call != nil {
		w.finish(key, call, err)
	}
}

// 311 <me> <nick> <user> <host> * :<realname>
func (w *whoisTracker) onUser(e ircmsg.Message) {
	if len(e.Params) < 4 {
		return
	}
	w.update(e.Params[1], func(r *whoisReply) {
		r.Nick = e.Params[1]
		r.User = e.Params[2]
		r.Host = e.Params[3]
	})
}

// 319 <me> <nick> :{[@+]<channel> }
func (w *whoisTracker) onChannels(e ircmsg.Message) {
	if len(e.Params) < 3 {
		return
	}
	w.update(e.Params[1], func(r *whoisReply) {
		for _, ch := range strings.Fields(e.Params[2]) {
			if i := strings.IndexByte(ch, '#'); i >= 0 {
				ch = ch[i:]
			}
			r.Channels = append(r.Channels, ch)
		}
	})
}

// 330 <me> <nick> <account> :is logged in as
func (w *whoisTracker) onAccount(e ircmsg.Message) {
	if len(e.Params) < 3 {
		return
	}
	w.update(e.Params[1], func(r *whoisReply) {
		r.Account = e.Params[2]
	})
}

// 307 <me> <nick> :has identified for this nick
func (w *whoisTracker) onRegistered(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	w.update(e.Params[1], func(r *whoisReply) {
		r.Identified = true
	})
}

// 318 <me> <nick> :End of /WHOIS list
func (w *whoisTracker) onEnd(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	key := foldNick(e.Params[1])
	w.mu.Lock()
	stale := w.trailing[key]
	delete(w.trailing, key)
	w.mu.Unlock()
	if stale {
		return
	}
	w.complete(e.Params[1], nil)
}

// 401 <me> <nick> :No such nick/channel
func (w *whoisTracker) onNoSuchNick(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	w.complete(e.Params[1], ErrNoSuchNick)
}

// account returns the services account of the reply, empty when unauthenticated
func (r whoisReply) account() string {
	if r.Account != "" {
		return r.Account
	}
	if r.Identified {
		return r.Nick
	}
	return ""
}

func (r whoisReply) in(channel string) bool {
	for _, ch := range r.Channels {
		if foldNick(ch) == foldNick(channel) {
			return true
		}
	}
	return false
}

// foldNick applies rfc1459 case mapping
func foldNick(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '[':
			return '{'
		case r == ']':
			return '}'
		case r == '\\':
			return '|'
		case r == '~':
			return '^'
		}
		return r
	}, s)
}
