package commands

import (
	"context"

	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/events"
	"github.com/comigor/roundtable/internal/history"
	"github.com/comigor/roundtable/internal/llm"
	"github.com/comigor/roundtable/internal/logger"
	"github.com/comigor/roundtable/internal/scheduler"
)

func newGenerator() llm.Generator {
	gen, err := llm.NewOpenAIGenerator(cfg.LLM)
	if err != nil {
		logger.L.Warn("generator unavailable; turns will fail until an API key is configured", "error", err)
		return llm.Unavailable(err)
	}
	return gen
}

// attachSinks forwards scheduler events to redis and the history archive
// when they are configured. The returned func detaches and closes them.
func attachSinks(ctx context.Context, sched *scheduler.Scheduler) (func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	attach := func(sink events.Sink, closeSink func() error) {
		ch, cancel := sched.SubscribeSink()
		done := make(chan struct{})
		go func() {
			defer close(done)
			events.Forward(ctx, ch, sink)
		}()
		closers = append(closers, func() {
			cancel()
			<-done
			if err := closeSink(); err != nil {
				logger.L.Warn("failed to close event sink", "error", err)
			}
		})
	}

	if cfg.Redis.URL != "" {
		sink, err := events.NewRedisSinkFromURL(ctx, cfg.Redis.URL, cfg.Redis.Stream)
		if err != nil {
			cleanup()
			return nil, err
		}
		logger.L.Info("publishing events to redis", "stream", cfg.Redis.Stream)
		attach(sink, sink.Close)
	}

	if cfg.History.Enabled {
		archive := history.New(cfg.History.Path)
		logger.L.Info("archiving transcripts", "path", cfg.History.Path)
		attach(archive, archive.Close)
	}

	return cleanup, nil
}

func configuredRoles() []conversation.Role {
	var roles []conversation.Role
	for _, r := range cfg.Roles() {
		roles = append(roles, conversation.Role(r))
	}
	return roles
}
