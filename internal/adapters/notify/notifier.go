package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sender es un canal de avisos (webhook, log...).
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier implementa ports.Alerter repartiendo cada aviso entre todos los
// senders. El fallo de uno no impide que los demás reciban el aviso.
type Notifier struct {
	senders []Sender
}

// NewNotifier crea el notificador. Sin senders, Alert no hace nada.
func NewNotifier(senders ...Sender) *Notifier {
	return &Notifier{senders: senders}
}

// Alert envía title/message a todos los senders y junta los errores.
func (n *Notifier) Alert(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			slog.Warn("notify: sender failed", "sender", s.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		slog.Debug("notify: sent", "sender", s.Name(), "title", title)
	}
	return errors.Join(errs...)
}

// LogSender escribe los avisos en el log. Útil cuando no hay webhook.
type LogSender struct{}

func (LogSender) Send(_ context.Context, title, message string) error {
	slog.Info("alert: "+title, "message", message)
	return nil
}

func (LogSender) Name() string { return "log" }
