// Package chatbot turns addressed chat lines into scheduler operations and
// renders the results as replies.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/command"
	"github.com/JakeFAU/archivebot/internal/irc"
	"github.com/JakeFAU/archivebot/internal/job"
	"github.com/JakeFAU/archivebot/internal/metrics"
	"github.com/JakeFAU/archivebot/internal/scheduler"
)

// Reply texts.
const (
	msgNeedVoice    = "Sorry, you must have voice to use this command."
	msgNotRunning   = "This job is not running."
	msgShuttingDown = "Sorry, I am shutting down and not accepting new jobs."
	msgInternal     = "Sorry, something went wrong. Please try again later."
)

// Chat is the session surface the bot needs.
type Chat interface {
	Nick() string
	Lookup(channel, nick string) irc.User
	Say(target, text string) error
}

// Scheduler is the job surface the bot needs.
type Scheduler interface {
	Submit(ctx context.Context, params job.Params, owner string, reply job.ReplyFunc) (job.Job, error)
	Status(ctx context.Context, jobID string) (job.Job, error)
	Abort(ctx context.Context, jobID, user string) (job.Job, error)
}

// Request is one parsed command together with where it came from.
type Request struct {
	Channel string
	Nick    string
	Command command.Command
	Reply   job.ReplyFunc
}

type handlerFunc func(ctx context.Context, req Request)

// Bot dispatches chat commands.
type Bot struct {
	chat   Chat
	sched  Scheduler
	logger *zap.Logger
}

// New constructs a Bot.
func New(chat Chat, sched Scheduler, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{chat: chat, sched: sched, logger: logger}
}

// HandleMessage implements irc.Handler. The first token is the bot's nick;
// the remaining tokens form the command.
func (b *Bot) HandleMessage(ctx context.Context, msg irc.Message) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}
	tokens := fields[1:]
	req := Request{
		Channel: msg.Channel,
		Nick:    msg.Nick,
		Reply:   b.replyTo(msg.Channel, msg.Nick),
	}

	cmd, err := command.NewParser(b.chat.Nick()).Parse(tokens)
	var perr *command.ParseError
	switch {
	case errors.Is(err, command.ErrEmpty):
		metrics.ObserveCommand("", metrics.OutcomeEmpty)
		req.Reply(fmt.Sprintf("Sorry, I don't understand %q", tokens))
		return
	case errors.As(err, &perr):
		metrics.ObserveCommand(firstToken(tokens), metrics.OutcomeParseError)
		req.Reply(perr.Error())
		return
	case err != nil:
		b.logger.Error("parse command failed", zap.Error(err))
		return
	}
	req.Command = cmd
	b.logger.Debug("command", zap.String("user", msg.Nick), zap.String("channel", msg.Channel), zap.String("command", cmd.Name()))
	b.route(cmd)(ctx, req)
}

func (b *Bot) route(cmd command.Command) handlerFunc {
	switch cmd.(type) {
	case command.Archive:
		return b.requireVoice(b.archive)
	case command.Status:
		return b.requireJob(b.status)
	case command.Abort:
		return b.requireVoice(b.requireJob(b.abort))
	default:
		return func(context.Context, Request) {}
	}
}

func (b *Bot) archive(ctx context.Context, req Request) {
	cmd := req.Command.(command.Archive)
	_, err := b.sched.Submit(ctx, cmd.Params(), req.Nick, req.Reply)
	switch {
	case err == nil:
		metrics.ObserveCommand(cmd.Name(), metrics.OutcomeOK)
	case errors.Is(err, scheduler.ErrClosed):
		req.Reply(msgShuttingDown)
	default:
		b.logger.Error("submit job failed", zap.String("user", req.Nick), zap.Error(err))
		req.Reply(msgInternal)
	}
}

func (b *Bot) status(_ context.Context, req Request, j job.Job) {
	metrics.ObserveCommand(command.TokenStatus, metrics.OutcomeOK)
	req.Reply(job.FormatStatus(j))
}

func (b *Bot) abort(ctx context.Context, req Request, j job.Job) {
	_, err := b.sched.Abort(ctx, j.ID, req.Nick)
	switch {
	case err == nil:
		metrics.ObserveCommand(command.TokenAbort, metrics.OutcomeOK)
	case errors.Is(err, job.ErrNotRunning):
		metrics.ObserveCommand(command.TokenAbort, metrics.OutcomeNotRunning)
		req.Reply(msgNotRunning)
	default:
		b.logger.Error("abort job failed", zap.String("job_id", j.ID), zap.Error(err))
		req.Reply(msgInternal)
	}
}

// replyTo addresses every reply to nick in channel.
func (b *Bot) replyTo(channel, nick string) job.ReplyFunc {
	return func(message string) {
		if err := b.chat.Say(channel, nick+": "+message); err != nil {
			b.logger.Warn("reply dropped", zap.String("channel", channel), zap.String("user", nick), zap.Error(err))
		}
	}
}

func firstToken(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	switch tokens[0] {
	case command.TokenArchive, command.TokenStatus, command.TokenAbort:
		return tokens[0]
	default:
		return "unknown"
	}
}
