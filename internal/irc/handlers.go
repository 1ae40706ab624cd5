package irc

// Handlers live next to what they serve:
// - client.go: connection lifecycle, command messages, nick recovery, CTCP
// - whois.go: WHOIS lookups used for identity, hostmasks and channel presence
// - moderation.go: channel modes through ChanServ and the bot's own op status
// - notify.go: rate-limited replies

/*
Handler Summary:

Connection Events:
- 376/422 (onConnect): End of MOTD / MOTD missing - bot is connected
  - Identifies to NickServ when SASL is not configured
  - Joins the configured channels
  - Runs OnReady once (the scheduler starts here)

Messages:
- PRIVMSG (onPrivMsg): channel lines starting with the prefix, or private
  messages to the bot, are handed to the command handler on their own goroutine

Channel Modes:
- MODE (onMode): tracks +o/-o on the bot so ban changes can wait for ops

WHOIS Responses (whoisTracker):
- 311 RPL_WHOISUSER: user and host
- 319 RPL_WHOISCHANNELS: channel list
- 330 RPL_WHOISACCOUNT: services account
- 307 RPL_WHOISREGNICK: identified to the nick itself
- 318 RPL_ENDOFWHOIS: completes the lookup
- 401 ERR_NOSUCHNICK: fails the lookup

Nick Issues:
- 432 (onNickHeld): switches to the alternate nick, then RELEASE and retake
- 433 (onNickInUse): switches to the alternate nick, then GHOST and retake

CTCP:
- CTCP_VERSION: Responds with bot version information
*/
