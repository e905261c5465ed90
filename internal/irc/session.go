// Package irc maintains the chat session: registration, keepalive, channel
// membership and reconnection. Line framing is delegated to ircmsg.
package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/metrics"
	"github.com/JakeFAU/archivebot/internal/policy/ratelimit"
)

// Numeric replies handled by the session.
const (
	rplWelcome      = "001"
	rplNamReply     = "353"
	rplEndOfNames   = "366"
	rplEndOfMOTD    = "376"
	errNoMOTD       = "422"
	errNicknameUsed = "433"
)

const (
	writeTimeout = 30 * time.Second
	outboxSize   = 128
)

var (
	// ErrNotConnected is returned when sending without a live connection.
	ErrNotConnected = errors.New("irc: not connected")
	// ErrOutboxFull is returned when too many replies are waiting on flood
	// control.
	ErrOutboxFull = errors.New("irc: outbox full")
)

// Config describes the server and the channels to join.
type Config struct {
	Host           string
	Port           int
	TLS            bool
	Nick           string
	RealName       string
	Channels       []string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// SendRate and SendBurst bound PRIVMSG lines per target. A zero rate
	// disables flood control.
	SendRate  float64
	SendBurst int
}

// Message is a channel line addressed to the bot.
type Message struct {
	Channel string
	Nick    string
	Text    string
}

// Handler processes addressed messages. It runs on the session's event loop,
// so membership is not updated while it executes.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message)

// HandleMessage implements Handler.
func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) {
	f(ctx, msg)
}

type outgoing struct {
	target string
	text   string
}

// DialFunc opens the transport connection.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Session is a reconnecting IRC client.
type Session struct {
	cfg    Config
	roster *Roster
	dial   DialFunc
	flood  *ratelimit.Limiter
	logger *zap.Logger

	mu     sync.Mutex
	conn   net.Conn
	outbox chan outgoing
	nick   string

	connected  atomic.Bool
	registered bool
	joinSent   bool
}

// New constructs a Session dialing cfg.Host:cfg.Port.
func New(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		cfg:    cfg,
		roster: NewRoster(cfg.Channels),
		flood:  ratelimit.New(ratelimit.Config{PerSecond: cfg.SendRate, Burst: cfg.SendBurst}),
		logger: logger,
		nick:   cfg.Nick,
	}
	s.dial = s.defaultDial
	return s
}

// WithDialer replaces the transport, mainly for tests.
func (s *Session) WithDialer(dial DialFunc) *Session {
	s.dial = dial
	return s
}

// Roster returns the membership mirror.
func (s *Session) Roster() *Roster {
	return s.roster
}

// Nick returns the nick currently in use.
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// Connected reports whether the session completed registration.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Lookup returns the live record of nick in channel.
func (s *Session) Lookup(channel, nick string) User {
	return s.roster.Lookup(channel, nick)
}

// Say queues a PRIVMSG to target. Line breaks are folded into spaces. Say
// never waits for flood control; the connection's writer does. Lines still
// queued when the connection drops are discarded.
func (s *Session) Say(target, text string) error {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outbox == nil {
		return ErrNotConnected
	}
	select {
	case s.outbox <- outgoing{target: target, text: text}:
		return nil
	default:
		return fmt.Errorf("say to %s: %w", target, ErrOutboxFull)
	}
}

// Run connects and serves until ctx ends, reconnecting after a fixed delay
// whenever the connection drops.
func (s *Session) Run(ctx context.Context, handler Handler) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.ObserveReconnect()
			s.logger.Info("reconnect", zap.Int("attempt", attempt))
		}
		err := s.serve(ctx, handler)
		s.connected.Store(false)
		metrics.SetConnected(false)
		s.roster.Clear()
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("disconnect", zap.Error(err), zap.Duration("retry_in", s.cfg.ReconnectDelay))

		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Session) defaultDial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
	if s.cfg.TLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial tls %s: %w", addr, err)
		}
		return conn, nil
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// serve runs one connection. A single reader goroutine feeds parsed lines to
// this goroutine, which handles them one at a time.
func (s *Session) serve(ctx context.Context, handler Handler) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	outbox := make(chan outgoing, outboxSize)
	s.mu.Lock()
	s.conn = conn
	s.outbox = outbox
	s.nick = s.cfg.Nick
	s.mu.Unlock()
	s.registered = false
	s.joinSent = false

	connCtx, cancel := context.WithCancel(ctx)
	lines := make(chan ircmsg.Message)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(conn, lines, readErr, done)
	}()
	go func() {
		defer wg.Done()
		s.writeLoop(connCtx, outbox)
	}()
	defer func() {
		close(done)
		cancel()
		s.mu.Lock()
		s.conn = nil
		s.outbox = nil
		s.mu.Unlock()
		_ = conn.Close()
		wg.Wait()
	}()

	s.logger.Info("connect", zap.String("nick", s.cfg.Nick), zap.String("host", s.cfg.Host))
	if err := s.register(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = s.send("QUIT", "shutting down")
			return ctx.Err()
		case err := <-readErr:
			return err
		case msg := <-lines:
			if err := s.handle(ctx, handler, msg); err != nil {
				return err
			}
		}
	}
}

func (s *Session) register() error {
	nick := s.Nick()
	if err := s.send("NICK", nick); err != nil {
		return err
	}
	return s.send("USER", nick, "0", "*", s.cfg.RealName)
}

func (s *Session) readLoop(conn net.Conn, lines chan<- ircmsg.Message, readErr chan<- error, done <-chan struct{}) {
	reader := bufio.NewReader(conn)
	for {
		raw, err := reader.ReadString('\n')
		if err != nil {
			readErr <- fmt.Errorf("read: %w", err)
			return
		}
		raw = strings.TrimRight(raw, "\r\n")
		if raw == "" {
			continue
		}
		msg, err := ircmsg.ParseLine(raw)
		if err != nil {
			s.logger.Debug("unparseable line", zap.String("line", raw), zap.Error(err))
			continue
		}
		select {
		case lines <- msg:
		case <-done:
			return
		}
	}
}

// writeLoop delivers queued lines in order, waiting on each target's flood
// control bucket.
func (s *Session) writeLoop(ctx context.Context, outbox <-chan outgoing) {
	for {
		select {
		case <-ctx.Done():
			if n := len(outbox); n > 0 {
				s.logger.Info("dropping queued lines", zap.Int("count", n))
			}
			return
		case out := <-outbox:
			if err := s.flood.Wait(ctx, out.target); err != nil {
				return
			}
			if err := s.send("PRIVMSG", out.target, out.text); err != nil {
				s.logger.Warn("send failed", zap.String("target", out.target), zap.Error(err))
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, handler Handler, msg ircmsg.Message) error {
	source := sourceNick(msg.Source)
	switch msg.Command {
	case "PING":
		return s.send("PONG", msg.Params...)
	case "ERROR":
		s.logger.Warn("server error", zap.Strings("params", msg.Params))
	case rplWelcome:
		s.registered = true
		if len(msg.Params) > 0 {
			s.setNick(msg.Params[0])
		}
	case rplEndOfMOTD, errNoMOTD:
		return s.joinChannels()
	case errNicknameUsed:
		if !s.registered {
			nick := s.Nick() + "_"
			s.setNick(nick)
			s.logger.Info("nick in use, retrying", zap.String("nick", nick))
			return s.send("NICK", nick)
		}
	case rplNamReply:
		if len(msg.Params) >= 4 {
			s.roster.AddNames(msg.Params[2], strings.Fields(msg.Params[3]))
		}
	case rplEndOfNames:
		if len(msg.Params) >= 2 {
			s.roster.EndNames(msg.Params[1])
		}
	case "JOIN":
		if len(msg.Params) > 0 {
			s.onJoin(source, msg.Params[0])
		}
	case "PART":
		if len(msg.Params) > 0 {
			s.onLeave(source, msg.Params[0])
		}
	case "KICK":
		if len(msg.Params) >= 2 {
			s.onLeave(msg.Params[1], msg.Params[0])
		}
	case "QUIT":
		s.roster.Quit(source)
	case "NICK":
		if len(msg.Params) > 0 {
			if s.isSelf(source) {
				s.setNick(msg.Params[0])
			} else {
				s.roster.Rename(source, msg.Params[0])
			}
		}
	case "MODE":
		if len(msg.Params) >= 2 && s.roster.Configured(msg.Params[0]) {
			s.roster.ApplyMode(msg.Params[0], msg.Params[1], msg.Params[2:])
		}
	case "PRIVMSG":
		if len(msg.Params) >= 2 {
			s.onPrivmsg(ctx, handler, source, msg.Params[0], msg.Params[1])
		}
	}
	return nil
}

func (s *Session) joinChannels() error {
	if s.joinSent {
		return nil
	}
	s.joinSent = true
	s.connected.Store(true)
	metrics.SetConnected(true)
	for _, channel := range s.cfg.Channels {
		s.logger.Info("join", zap.String("channel", channel))
		if err := s.send("JOIN", channel); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) onJoin(nick, channel string) {
	if !s.roster.Configured(channel) {
		return
	}
	if s.isSelf(nick) {
		s.roster.JoinSelf(channel)
		s.logger.Info("joined", zap.String("channel", channel))
		return
	}
	s.roster.Join(channel, nick)
}

func (s *Session) onLeave(nick, channel string) {
	if !s.roster.Configured(channel) {
		return
	}
	if s.isSelf(nick) {
		s.roster.LeaveSelf(channel)
		s.logger.Warn("left channel", zap.String("channel", channel))
		return
	}
	s.roster.Part(channel, nick)
}

func (s *Session) onPrivmsg(ctx context.Context, handler Handler, nick, target, text string) {
	if handler == nil || !s.roster.Joined(target) {
		return
	}
	if !strings.HasPrefix(text, s.Nick()) {
		return
	}
	handler.HandleMessage(ctx, Message{Channel: target, Nick: nick, Text: text})
}

func (s *Session) isSelf(nick string) bool {
	return strings.EqualFold(nick, s.Nick())
}

func (s *Session) setNick(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nick = nick
}

func (s *Session) send(command string, params ...string) error {
	msg := ircmsg.MakeMessage(nil, "", command, params...)
	line, err := msg.Line()
	if err != nil {
		return fmt.Errorf("encode %s: %w", command, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := s.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("write %s: %w", command, err)
	}
	return nil
}

// sourceNick extracts the nick from a "nick!user@host" prefix.
func sourceNick(source string) string {
	nick, _, _ := strings.Cut(source, "!")
	return nick
}
