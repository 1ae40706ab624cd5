package irc

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	noticeBurst   = 4
	noticeBacklog = 256
)

type notice struct {
	target string
	text   string
}

// noticeQueue sends notices no faster than the configured rate so long
// replies do not get the bot flooded off the network.
type noticeQueue struct {
	send    func(target, text string) error
	limiter *rate.Limiter
	out     chan notice
	log     zerolog.Logger
}

func newNoticeQueue(perSecond float64, send func(target, text string) error, log zerolog.Logger) *noticeQueue {
	return &noticeQueue{
		send:    send,
		limiter: rate.NewLimiter(rate.Limit(perSecond), noticeBurst),
		out:     make(chan notice, noticeBacklog),
		log:     log,
	}
}

// Notify queues text for nick, one notice per line. Full queues drop the message.
func (q *noticeQueue) Notify(nick, text string) {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimRight(line, "\r"); line == "" {
			continue
		}
		select {
		case q.out <- notice{target: nick, text: line}:
		default:
			q.log.Warn().Str("nick", nick).Msg("Notice queue full, dropping reply")
			return
		}
	}
}

func (q *noticeQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-q.out:
			if err := q.limiter.Wait(ctx); err != nil {
				return
			}
			if err := q.send(n.target, n.text); err != nil {
				q.log.Debug().Err(err).Str("nick", n.target).Msg("Failed to send notice")
			}
		}
	}
}
