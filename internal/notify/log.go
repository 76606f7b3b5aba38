package notify

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/modreview/internal/core"
	"github.com/JonMunkholm/modreview/internal/logging"
)

// LogNotifier records what would have been sent. It is used when mail
// delivery is disabled.
type LogNotifier struct{}

var _ core.Notifier = LogNotifier{}

func (LogNotifier) NotifyProvisioned(ctx context.Context, users []core.UserRecord) error {
	log := logging.FromContext(ctx)
	for _, u := range users {
		log.Info("account provisioned (mail disabled)",
			slog.String("username", u.Username),
			slog.String("email", u.Email),
		)
	}
	return nil
}

func (LogNotifier) SendReminder(ctx context.Context, email string, modules []core.ModuleSummary) error {
	codes := make([]string, len(modules))
	for i, m := range modules {
		codes[i] = m.ModuleCode
	}
	logging.FromContext(ctx).Info("review reminder (mail disabled)",
		slog.String("email", email),
		slog.Any("modules", codes),
	)
	return nil
}
