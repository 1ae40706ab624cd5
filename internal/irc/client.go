package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/rs/zerolog"

	"github.com/dalnet/opbot/internal/command"
	"github.com/dalnet/opbot/internal/config"
	"github.com/dalnet/opbot/internal/storage"
)

// Version information (set at build time or here)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Handler runs a command message said by nick in channel ("" for private messages)
type Handler interface {
	Handle(ctx context.Context, nick, channel, message string) error
}

// Client represents the IRC bot client
type Client struct {
	conn  *ircevent.Connection
	cfg   *config.Config
	log   zerolog.Logger
	stats *storage.Stats

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	handler Handler

	// Channel operator tracking for the bot itself, keyed by folded channel
	opped     map[string]bool
	opWait    map[string]chan struct{}
	modeLocks map[string]*sync.Mutex

	whois   *whoisTracker
	notices *noticeQueue

	readyOnce sync.Once
	// OnReady runs once, after the first successful registration
	OnReady func()
}

// NewClient creates a new IRC client
func NewClient(cfg *config.Config, stats *storage.Stats, log zerolog.Logger) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		log:    log,
		stats:  stats,
		ctx:    ctx,
		cancel: cancel,
		opped:     make(map[string]bool),
		opWait:    make(map[string]chan struct{}),
		modeLocks: make(map[string]*sync.Mutex),
	}

	conn := &ircevent.Connection{
		Server:       fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
		Nick:         cfg.Nick,
		User:         cfg.Username,
		RealName:     cfg.IRCName,
		Password:     cfg.ServerPass,
		QuitMessage:  "Shutting down",
		UseTLS:       cfg.UseTLS,
		UseSASL:      cfg.SASLLogin != "",
		SASLLogin:    cfg.SASLLogin,
		SASLPassword: cfg.SASLPassword,
	}
	if cfg.UseTLS {
		conn.TLSConfig = &tls.Config{ServerName: cfg.Server}
	}
	c.conn = conn

	c.whois = newWhoisTracker(func(nick string) error {
		return c.conn.Send("WHOIS", nick)
	}, cfg.WhoisTimeout)
	c.notices = newNoticeQueue(cfg.NotifyRate, c.conn.Notice, log)

	c.registerHandlers()

	return c, nil
}

func (c *Client) registerHandlers() {
	// Connected (end of MOTD)
	c.conn.AddCallback("376", c.onConnect)
	c.conn.AddCallback("422", c.onConnect) // MOTD missing is also "connected"

	c.conn.AddCallback("PRIVMSG", c.onPrivMsg)
	c.conn.AddCallback("MODE", c.onMode)

	// WHOIS responses
	c.conn.AddCallback("311", c.whois.onUser)       // RPL_WHOISUSER
	c.conn.AddCallback("319", c.whois.onChannels)   // RPL_WHOISCHANNELS
	c.conn.AddCallback("330", c.whois.onAccount)    // RPL_WHOISACCOUNT
	c.conn.AddCallback("307", c.whois.onRegistered) // RPL_WHOISREGNICK
	c.conn.AddCallback("318", c.whois.onEnd)        // RPL_ENDOFWHOIS
	c.conn.AddCallback("401", c.whois.onNoSuchNick) // ERR_NOSUCHNICK

	// Nick issues
	c.conn.AddCallback("432", c.onNickHeld)  // ERR_ERRONEUSNICKNAME
	c.conn.AddCallback("433", c.onNickInUse) // ERR_NICKNAMEINUSE

	c.conn.AddCallback("CTCP_VERSION", c.onCtcpVersion)
}

// SetHandler installs the command handler; messages before this are ignored
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect initiates the IRC connection
func (c *Client) Connect() error {
	if err := c.conn.Connect(); err != nil {
		return err
	}
	go c.notices.run(c.ctx)
	return nil
}

// Loop runs the IRC event loop (blocking)
func (c *Client) Loop() {
	c.conn.Loop()
}

// Quit disconnects from IRC
func (c *Client) Quit(message string) {
	c.conn.QuitMessage = message
	c.conn.Quit()
	c.cancel()
}

// Notify sends text to nick as rate-limited notices
func (c *Client) Notify(nick, text string) {
	c.notices.Notify(nick, text)
}

// Resolve looks nick up with WHOIS and returns its services account.
// Nicks that are gone or not identified resolve to nil.
func (c *Client) Resolve(ctx context.Context, nick string) (*command.User, error) {
	reply, err := c.whois.lookup(ctx, nick)
	if errors.Is(err, ErrNoSuchNick) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if acct := reply.account(); acct != "" {
		return &command.User{Account: acct}, nil
	}
	return nil, nil
}

func (c *Client) onConnect(e ircmsg.Message) {
	c.log.Info().Str("server", c.conn.Server).Msg("Connected to IRC server")

	// Identify to NickServ unless SASL already did
	if c.cfg.NickPass != "" && c.cfg.SASLLogin == "" {
		c.conn.Privmsg("NickServ", fmt.Sprintf("IDENTIFY %s %s", c.cfg.Nick, c.cfg.NickPass))
	}

	c.mu.Lock()
	clear(c.opped)
	c.mu.Unlock()

	for _, channel := range c.cfg.Channels {
		if err := c.conn.Join(channel); err != nil {
			c.log.Error().Err(err).Str("channel", channel).Msg("Failed to join channel")
		}
	}

	c.readyOnce.Do(func() {
		if c.OnReady != nil {
			c.OnReady()
		}
	})
	c.log.Info().Strs("channels", c.cfg.Channels).Msg("Bot initialization complete")
}

func (c *Client) onPrivMsg(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}

	channel, message, ok := route(e.Params[0], e.Params[1], c.conn.CurrentNick(), c.cfg.Prefix)
	if !ok {
		return
	}

	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return
	}

	nick := e.Nick()
	go func() {
		if err := h.Handle(c.ctx, nick, channel, message); err != nil {
			c.log.Debug().Err(err).Str("nick", nick).Str("channel", channel).Msg("Command failed")
		}
	}()
}

// route decides whether a PRIVMSG is a command. Channel messages need the
// prefix; private messages to the bot may omit it and carry no channel.
func route(target, text, self, prefix string) (channel, message string, ok bool) {
	if strings.HasPrefix(text, "\x01") {
		return "", "", false
	}
	switch {
	case strings.HasPrefix(target, "#"):
		if !strings.HasPrefix(text, prefix) {
			return "", "", false
		}
		channel = target
		text = strings.TrimPrefix(text, prefix)
	case foldNick(target) == foldNick(self):
		text = strings.TrimPrefix(text, prefix)
	default:
		return "", "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", false
	}
	return channel, text, true
}

// RecordCommand appends a dispatched command to the stats log
func (c *Client) RecordCommand(nick, channel, message string, err error) {
	timestamp := time.Now().UTC().Format("Mon Jan 02, 2006 at 15:04:05 GMT")
	where := channel
	if where == "" {
		where = "private"
	}
	entry := fmt.Sprintf("%s: %s in %s -> %s", timestamp, nick, where, message)
	if err != nil {
		entry += " (failed)"
	}

	if serr := c.stats.Append(entry); serr != nil {
		c.log.Error().Err(serr).Msg("Error saving stats")
	}
}

func (c *Client) onNickHeld(e ircmsg.Message) {
	c.recoverNick("RELEASE")
}

func (c *Client) onNickInUse(e ircmsg.Message) {
	c.recoverNick("GHOST")
}

// recoverNick switches to the alternate nick and asks NickServ to free the main one
func (c *Client) recoverNick(verb string) {
	if c.cfg.Alternate == "" || c.conn.CurrentNick() == c.cfg.Alternate {
		return
	}
	c.log.Warn().Str("alternate", c.cfg.Alternate).Str("verb", verb).Msg("Nick unavailable, switching to alternate")
	c.conn.SetNick(c.cfg.Alternate)

	if c.cfg.NickPass == "" {
		return
	}
	go func() {
		select {
		case <-time.After(15 * time.Second):
		case <-c.ctx.Done():
			return
		}
		c.conn.Privmsg("NickServ", fmt.Sprintf("%s %s %s", verb, c.cfg.Nick, c.cfg.NickPass))
		time.Sleep(2 * time.Second)
		c.conn.SetNick(c.cfg.Nick)
	}()
}

func (c *Client) onCtcpVersion(e ircmsg.Message) {
	nick := e.Nick()
	reply := fmt.Sprintf("opbot %s (built %s, commit %s)", Version, BuildDate, GitCommit)
	c.conn.SendRaw(fmt.Sprintf("NOTICE %s :\x01VERSION %s\x01", nick, reply))
}
