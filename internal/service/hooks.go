package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/temporade/chronicle-api/internal/models"
)

// Hook is a post-commit collaborator invoked after a successful save or
// delete. Fatal hooks fail the whole operation when they error; the
// mutation itself is never rolled back either way.
type Hook interface {
	Name() string
	Fatal() bool
	Run(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error
}

type silentKey struct{}

// WithSilent marks the context so notification hooks stay quiet, used for
// bulk maintenance deletions.
func WithSilent(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey{}, true)
}

// IsSilent reports whether notifications were suppressed for this call.
func IsSilent(ctx context.Context) bool {
	v, _ := ctx.Value(silentKey{}).(bool)
	return v
}

type tagStore interface {
	Replace(ctx context.Context, eventUID string, tags []string) error
}

// TagHook mirrors an event's tag set into tag storage. Tags are part of the
// event's searchable identity, so a failure here fails the whole save.
type TagHook struct {
	tags tagStore
}

// NewTagHook constructs the tagging hook.
func NewTagHook(tags tagStore) *TagHook {
	return &TagHook{tags: tags}
}

func (h *TagHook) Name() string { return "tags" }
func (h *TagHook) Fatal() bool  { return true }

func (h *TagHook) Run(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error {
	if action == models.HistoryDelete {
		return h.tags.Replace(ctx, event.UID, nil)
	}
	return h.tags.Replace(ctx, event.UID, event.Tags)
}

type historyStore interface {
	Log(ctx context.Context, calendarID, eventUID string, action models.HistoryAction) error
}

// HistoryHook appends the mutation to the history log. Saving or deleting
// a detached exception also touches the base event's history, or sync
// clients never pick up the change.
type HistoryHook struct {
	history historyStore
}

// NewHistoryHook constructs the history hook.
func NewHistoryHook(history historyStore) *HistoryHook {
	return &HistoryHook{history: history}
}

func (h *HistoryHook) Name() string { return "history" }
func (h *HistoryHook) Fatal() bool  { return false }

func (h *HistoryHook) Run(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error {
	if err := h.history.Log(ctx, event.CalendarID, event.UID, action); err != nil {
		return err
	}
	if event.BaseID != "" && !event.Recurs() {
		return h.history.Log(ctx, event.CalendarID, event.BaseID, models.HistoryModify)
	}
	return nil
}

// Notifier delivers change notifications to interested parties. Delivery
// internals live outside the engine.
type Notifier interface {
	Notify(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error
}

// NotificationHook fans a mutation out to the notifier unless the call is
// silenced.
type NotificationHook struct {
	notifier Notifier
}

// NewNotificationHook constructs the notification hook.
func NewNotificationHook(notifier Notifier) *NotificationHook {
	return &NotificationHook{notifier: notifier}
}

func (h *NotificationHook) Name() string { return "notifications" }
func (h *NotificationHook) Fatal() bool  { return false }

func (h *NotificationHook) Run(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error {
	if IsSilent(ctx) {
		return nil
	}
	return h.notifier.Notify(ctx, event, action)
}

// LogNotifier is the default Notifier; it records the change in the
// application log and delegates nothing further.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error {
	n.logger.Info("event notification",
		zap.String("calendar_id", event.CalendarID),
		zap.String("event_uid", event.UID),
		zap.String("action", string(action)),
	)
	return nil
}
