package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/resolver"
	"github.com/quantumweb/plubot/internal/store"
)

// DefaultWorkers is the number of inbound messages resolved concurrently.
const DefaultWorkers = 8

// ErrorReply is sent when a message could not be resolved, so the customer
// is never left without an answer.
const ErrorReply = "Lo siento, tuvimos un problema al procesar tu mensaje. Por favor, intenta de nuevo en unos minutos."

// Resolver produces the reply for an inbound message.
type Resolver interface {
	Handle(ctx context.Context, msg models.InboundMessage) (resolver.Result, error)
}

// Dispatcher resolves inbound messages and sends the replies.
type Dispatcher struct {
	resolver Resolver
	sender   Sender
	dedup    store.DedupRepo
	workers  int
}

// NewDispatcher creates a Dispatcher. dedup may be nil.
func NewDispatcher(r Resolver, sender Sender, dedup store.DedupRepo) *Dispatcher {
	return &Dispatcher{resolver: r, sender: sender, dedup: dedup, workers: DefaultWorkers}
}

// WithWorkers sets the number of concurrent workers.
func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

// Run consumes inbound until it is closed or ctx is cancelled, then waits
// for in-flight messages.
func (d *Dispatcher) Run(ctx context.Context, inbound <-chan models.InboundMessage) {
	slog.Info("Dispatcher.Run: starting", "workers", d.workers)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-inbound:
					if !ok {
						return
					}
					d.Process(ctx, msg)
				}
			}
		}()
	}
	wg.Wait()
	slog.Info("Dispatcher.Run: stopped")
}

// Process resolves one message and sends the reply. Redelivered messages
// (same MessageID) are skipped.
func (d *Dispatcher) Process(ctx context.Context, msg models.InboundMessage) {
	if d.dedup != nil && msg.MessageID != "" {
		isNew, err := d.dedup.RecordInbound(msg.MessageID, msg.SenderID)
		if err != nil {
			slog.Error("Dispatcher.Process: dedup record failed", "error", err, "messageID", msg.MessageID)
		} else if !isNew {
			slog.Info("Dispatcher.Process: duplicate message skipped", "messageID", msg.MessageID)
			return
		}
	}

	reply := d.resolve(ctx, msg)
	if reply == "" {
		return
	}
	if err := d.sender.SendMessage(ctx, msg.ToAddress, msg.SenderID, reply); err != nil {
		slog.Error("Dispatcher.Process: send reply failed", "error", err, "to", msg.SenderID)
		return
	}

	if d.dedup != nil && msg.MessageID != "" {
		if err := d.dedup.MarkProcessed(msg.MessageID); err != nil {
			slog.Warn("Dispatcher.Process: mark processed failed", "error", err, "messageID", msg.MessageID)
		}
	}
}

func (d *Dispatcher) resolve(ctx context.Context, msg models.InboundMessage) string {
	res, err := d.resolver.Handle(ctx, msg)
	if err == nil {
		return res.Reply
	}
	if resolver.IsInputError(err) {
		slog.Warn("Dispatcher.resolve: rejected message", "error", err, "from", msg.SenderID)
		return ""
	}
	slog.Error("Dispatcher.resolve: resolver failed", "error", err, "from", msg.SenderID)
	return ErrorReply
}
