// Package control implements the worker's own row as a control-message
// channel (spec §4.5): a background poller reads and clears
// Client.message on its own DB connection, parses newline-separated
// commands, and exposes them through a bounded domain.CommandSource the
// Main Loop drains once per iteration. Grounded on
// original_source/src/messages.cc's message_thread/process_messages.
package control

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// PollInterval is the fixed sleep between message checks
// (original_source's MESSAGE_WAIT_TIME).
const PollInterval = 2 * time.Second

// QueueCapacity bounds the in-memory command queue (spec §4.5 "bounded
// thread-safe queue"); a slow-draining Main Loop applies backpressure by
// blocking the poller rather than growing unboundedly.
const QueueCapacity = 256

// Channel is the DB-backed control channel. It satisfies domain.CommandSource.
type Channel struct {
	Methods  domain.Methods
	ClientID int

	queue  chan domain.Command
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Channel ready to Start.
func New(methods domain.Methods, clientID int) *Channel {
	return &Channel{
		Methods:  methods,
		ClientID: clientID,
		queue:    make(chan domain.Command, QueueCapacity),
	}
}

// Start launches the background poller goroutine. Its lifetime is
// bounded by the context passed here and by Stop, which is the
// cooperative-task replacement for the original's pthread_create/
// pthread_join pair (SPEC_FULL.md §9 "Background threads").
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop signals the poller to exit and waits for it to finish
// (original's stop_message_thread / pthread_join).
func (c *Channel) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Channel) poll(ctx context.Context) {
	msg, err := c.Methods.ReadMessage(ctx, c.ClientID)
	if err != nil {
		slog.Warn("control channel read_message failed", slog.Any("error", err))
		return
	}
	if err := c.Methods.Report(ctx, c.ClientID, time.Now()); err != nil {
		slog.Warn("control channel report failed", slog.Any("error", err))
	}
	if msg == "" {
		return
	}
	for _, cmd := range ParseCommands(msg) {
		select {
		case c.queue <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

// Next implements domain.CommandSource: it returns the next queued
// command without blocking, or ok=false if none is currently available.
func (c *Channel) Next() (domain.Command, bool) {
	select {
	case cmd := <-c.queue:
		return cmd, true
	default:
		return domain.Command{}, false
	}
}

// ParseCommands parses the newline-separated command text cleared from
// Client.message into zero or more domain.Command values, grounded on
// messages.cc's process_messages. Unlike the original's manual
// trim_whitespace (whose all-space-string underflow is documented as
// moot in Go, SPEC_FULL.md §9), this uses strings.Fields throughout.
func ParseCommands(text string) []domain.Command {
	var out []domain.Command
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "kill":
			if len(fields) < 2 {
				continue
			}
			jobID, err := strconv.Atoi(fields[1])
			if err != nil || jobID == 0 {
				continue
			}
			out = append(out, domain.Command{Kind: domain.CommandKillJob, JobID: jobID})
		case "kill_client":
			if len(fields) < 2 {
				continue
			}
			switch fields[1] {
			case "soft":
				out = append(out, domain.Command{Kind: domain.CommandKillClientSoft})
			case "hard":
				out = append(out, domain.Command{Kind: domain.CommandKillClientHard})
			}
		case "wait_time":
			if len(fields) < 2 {
				continue
			}
			secs, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil || secs == 0 {
				continue
			}
			out = append(out, domain.Command{Kind: domain.CommandWaitTime, WaitTime: secs})
		}
	}
	return out
}
