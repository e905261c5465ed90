package chatbot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/command"
	"github.com/JakeFAU/archivebot/internal/irc"
	"github.com/JakeFAU/archivebot/internal/job"
	"github.com/JakeFAU/archivebot/internal/metrics"
)

// requireVoice runs next only for channel operators or voiced users, using
// the sender's live membership record.
func (b *Bot) requireVoice(next handlerFunc) handlerFunc {
	return func(ctx context.Context, req Request) {
		user := b.chat.Lookup(req.Channel, req.Nick)
		if !user.Has(irc.Operator) && !user.Has(irc.Voice) {
			metrics.ObserveCommand(req.Command.Name(), metrics.OutcomeDenied)
			req.Reply(msgNeedVoice)
			return
		}
		next(ctx, req)
	}
}

// requireJob resolves the job id of a status or abort command before
// calling next.
func (b *Bot) requireJob(next func(ctx context.Context, req Request, j job.Job)) handlerFunc {
	return func(ctx context.Context, req Request) {
		var id string
		switch cmd := req.Command.(type) {
		case command.Status:
			id = cmd.ID
		case command.Abort:
			id = cmd.ID
		default:
			return
		}
		j, err := b.sched.Status(ctx, id)
		switch {
		case errors.Is(err, job.ErrUnknownJob):
			metrics.ObserveCommand(req.Command.Name(), metrics.OutcomeUnknownJob)
			req.Reply(fmt.Sprintf("Job %s is unknown", id))
			return
		case err != nil:
			b.logger.Error("load job failed", zap.String("job_id", id), zap.Error(err))
			req.Reply(msgInternal)
			return
		}
		next(ctx, req, j)
	}
}
