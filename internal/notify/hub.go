package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub fans notices out to every registered sink on the dispatcher
type Hub struct {
	dispatcher *Dispatcher
	logger     *zap.Logger

	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewHub(dispatcher *Dispatcher, logger *zap.Logger) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		logger:     logger,
		sinks:      make(map[string]Sink),
	}
}

// AddSink registers s under its name, replacing a sink of the same name
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[s.Name()] = s
}

func (h *Hub) RemoveSink(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sinks, name)
}

// SinkNames lists registered sinks
func (h *Hub) SinkNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.sinks))
	for name := range h.sinks {
		names = append(names, name)
	}
	return names
}

// ShowReminder surfaces a reminder notice with its actions
func (h *Hub) ShowReminder(ctx context.Context, n Notice) error {
	n.Kind = KindReminder
	return h.post(ctx, n)
}

// ShowConfirmation surfaces a short confirmation toast
func (h *Hub) ShowConfirmation(ctx context.Context, text string) error {
	return h.post(ctx, Notice{Kind: KindConfirmation, Message: text})
}

// ShowError surfaces a short error toast
func (h *Hub) ShowError(ctx context.Context, text string) error {
	return h.post(ctx, Notice{Kind: KindError, Message: text})
}

// Show surfaces an arbitrary notice
func (h *Hub) Show(ctx context.Context, n Notice) error {
	return h.post(ctx, n)
}

func (h *Hub) post(ctx context.Context, n Notice) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	// sinks run after the caller returns, so they must not inherit its deadline
	deliverCtx := context.WithoutCancel(ctx)
	return h.dispatcher.Post(ctx, func() {
		h.mu.RLock()
		sinks := make([]Sink, 0, len(h.sinks))
		for _, s := range h.sinks {
			sinks = append(sinks, s)
		}
		h.mu.RUnlock()

		for _, s := range sinks {
			if err := s.Deliver(deliverCtx, n); err != nil {
				h.logger.Warn("Failed to deliver notice",
					zap.String("sink", s.Name()),
					zap.String("notice_id", n.ID),
					zap.String("kind", string(n.Kind)),
					zap.Error(err),
				)
			}
		}
	})
}

// LogSink writes notices to the logger
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n Notice) error {
	s.logger.Info("Notice",
		zap.String("notice_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
		zap.Int("actions", len(n.Actions)),
	)
	return nil
}
