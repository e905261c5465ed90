package chatbot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/archivebot/internal/irc"
	"github.com/JakeFAU/archivebot/internal/job"
	"github.com/JakeFAU/archivebot/internal/scheduler"
	"github.com/JakeFAU/archivebot/internal/storage/memory"
)

const channel = "#archive"

func TestArchiveLifecycleForVoicedUser(t *testing.T) {
	t.Parallel()

	env := newBotEnv(t)
	env.chat.grant("alice", irc.Voice)

	env.say("alice", "archivebot: a -j 2 http://example.org")
	queued := env.chat.waitLines(t, 1)[0]
	id := env.ids.last()
	require.Equal(t, fmt.Sprintf("#archive alice: http://example.org has been queued as %s with concurrency=2, recursive=0", id), queued)

	env.runner.waitStarted(t, id)
	env.say("carol", "archivebot: s "+id)
	status := env.chat.waitLines(t, 2)[1]
	require.Equal(t, fmt.Sprintf(
		"#archive carol: http://example.org (%s) running. 3 pages finished, 1 pending; 0 crashed, 10 requests, 1 failed, 1.5 KiB received.", id),
		status)

	env.runner.release(id)
	final := env.chat.waitLines(t, 3)[2]
	require.True(t, strings.HasPrefix(final, fmt.Sprintf("#archive alice: http://example.org (%s) finished.", id)), final)
}

func TestUnprivilegedUsersAreRefused(t *testing.T) {
	t.Parallel()

	env := newBotEnv(t)
	env.chat.grant("alice", irc.Operator)
	env.say("alice", "archivebot: a http://example.org")
	env.chat.waitLines(t, 1)
	id := env.ids.last()
	env.runner.waitStarted(t, id)

	env.say("mallory", "archivebot: a http://example.com")
	env.say("mallory", "archivebot: r "+id)
	env.say("mallory", "archivebot: r no-such-job")
	lines := env.chat.waitLines(t, 4)
	require.Equal(t, []string{
		"#archive mallory: Sorry, you must have voice to use this command.",
		"#archive mallory: Sorry, you must have voice to use this command.",
		"#archive mallory: Sorry, you must have voice to use this command.",
	}, lines[1:4])

	jobs, err := env.sched.Jobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1, "refused archive creates no job")
	require.Equal(t, job.StatusRunning, jobs[0].Status)
}

func TestAbortRunningJob(t *testing.T) {
	t.Parallel()

	env := newBotEnv(t)
	env.chat.grant("alice", irc.Voice)
	env.chat.grant("bob", irc.Voice)
	env.say("alice", "archivebot: a http://example.org")
	env.chat.waitLines(t, 1)
	id := env.ids.last()
	env.runner.waitStarted(t, id)

	env.say("bob", "archivebot: r "+id)
	final := env.chat.waitLines(t, 2)[1]
	require.True(t, strings.HasPrefix(final, fmt.Sprintf("#archive alice: http://example.org (%s) aborted.", id)), final)

	env.say("bob", "archivebot: r "+id)
	require.Equal(t, "#archive bob: This job is not running.", env.chat.waitLines(t, 3)[2])
}

func TestUnknownJob(t *testing.T) {
	t.Parallel()

	env := newBotEnv(t)
	env.chat.grant("bob", irc.Voice)
	env.say("carol", "archivebot: s 1234")
	env.say("bob", "archivebot: r 1234")
	require.Equal(t, []string{
		"#archive carol: Job 1234 is unknown",
		"#archive bob: Job 1234 is unknown",
	}, env.chat.waitLines(t, 2))

	jobs, err := env.sched.Jobs(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestParseErrorsAndEmptyCommands(t *testing.T) {
	t.Parallel()

	env := newBotEnv(t)
	env.chat.grant("alice", irc.Voice)
	env.say("alice", "archivebot:")
	env.say("alice", "archivebot: a ftp://example.org")
	env.say("alice", "archivebot: x")
	require.Equal(t, []string{
		"#archive alice: Sorry, I don't understand []",
		"#archive alice: argument URL: invalid URL value: 'ftp://example.org' -- usage: archivebot: a [--concurrency {1,2,3,4}] [--recursive {0,1,prefix}] URL",
		"#archive alice: argument command: invalid choice: 'x' (choose from 'a', 's', 'r') -- usage: archivebot: {a,s,r} ...",
	}, env.chat.waitLines(t, 3))
}

type botEnv struct {
	bot    *Bot
	chat   *fakeChat
	sched  *scheduler.Scheduler
	runner *fakeRunner
	ids    *seqIDs
}

func newBotEnv(t *testing.T) *botEnv {
	t.Helper()
	reg := memory.NewRegistry()
	runner := &fakeRunner{reg: reg, gates: map[string]chan struct{}{}, started: map[string]chan struct{}{}}
	ids := &seqIDs{}
	sched := scheduler.New(scheduler.Config{MaxConcurrent: 2}, reg, runner, ids, wallClock{}, nil, nil)
	chat := &fakeChat{nick: "archivebot", users: map[string]irc.User{}}
	env := &botEnv{bot: New(chat, sched, zaptest.NewLogger(t)), chat: chat, sched: sched, runner: runner, ids: ids}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, sched.Shutdown(ctx))
	})
	return env
}

func (e *botEnv) say(nick, text string) {
	e.bot.HandleMessage(context.Background(), irc.Message{Channel: channel, Nick: nick, Text: text})
}

type fakeChat struct {
	nick  string
	mu    sync.Mutex
	users map[string]irc.User
	lines []string
}

func (c *fakeChat) Nick() string { return c.nick }

func (c *fakeChat) grant(nick string, p irc.Privilege) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[nick] = irc.User{Name: nick, Privileges: p}
}

func (c *fakeChat) Lookup(_, nick string) irc.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[nick]; ok {
		return u
	}
	return irc.User{Name: nick}
}

func (c *fakeChat) Say(target, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, target+" "+text)
	return nil
}

func (c *fakeChat) waitLines(t *testing.T, n int) []string {
	t.Helper()
	var out []string
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		out = append([]string(nil), c.lines...)
		return len(out) >= n
	}, 5*time.Second, 5*time.Millisecond)
	return out
}

// fakeRunner reports progress like a worker would and blocks until released
// or terminated.
type fakeRunner struct {
	reg     *memory.Registry
	mu      sync.Mutex
	gates   map[string]chan struct{}
	started map[string]chan struct{}
}

func (r *fakeRunner) chans(id string) (chan struct{}, chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gates[id]; !ok {
		r.gates[id] = make(chan struct{})
		r.started[id] = make(chan struct{})
	}
	return r.gates[id], r.started[id]
}

func (r *fakeRunner) Run(ctx context.Context, j job.Job) error {
	gate, started := r.chans(j.ID)
	if err := r.reg.Attach(ctx, j.ID, &gateProcess{release: func() { r.release(j.ID) }}); err != nil {
		return nil
	}
	defer r.reg.Detach(ctx, j.ID)
	if _, err := r.reg.MarkRunning(ctx, j.ID, time.Now()); err != nil {
		return err
	}
	if err := r.reg.SetStats(ctx, j.ID, job.Counters{job.StatRequests: 10, job.StatFailed: 1, job.StatBytesRcv: 1536}); err != nil {
		return err
	}
	if err := r.reg.SetRecursionStats(ctx, j.ID, job.Counters{job.RStatHave: 3, job.RStatPending: 1}); err != nil {
		return err
	}
	close(started)
	<-gate
	return nil
}

func (r *fakeRunner) waitStarted(t *testing.T, id string) {
	t.Helper()
	_, started := r.chans(id)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s never started", id)
	}
}

func (r *fakeRunner) release(id string) {
	gate, _ := r.chans(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-gate:
	default:
		close(gate)
	}
}

type gateProcess struct {
	release func()
}

func (p *gateProcess) Terminate() error {
	p.release()
	return nil
}

func (p *gateProcess) Pid() int { return 1 }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", s.n), nil
}

func (s *seqIDs) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", s.n)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
