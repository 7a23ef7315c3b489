package impl

import (
	"context"
	"log/slog"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
)

// LogEmailSender is the development EmailService: it logs the send instead of
// delivering. Production wires a provider-backed implementation behind the
// same interface.
type LogEmailSender struct{}

func NewLogEmailSender() *LogEmailSender { return &LogEmailSender{} }

var _ service.EmailService = (*LogEmailSender)(nil)

func (s *LogEmailSender) Send(ctx context.Context, to, template string, params map[string]string) error {
	args := []any{"to", to, "template", template}
	for k, v := range params {
		args = append(args, "param_"+k, v)
	}
	slog.Info("email send", args...)
	return nil
}
