package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporade/chronicle-api/internal/models"
)

type recordingNotifier struct {
	notified []string
}

func (n *recordingNotifier) Notify(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error {
	n.notified = append(n.notified, event.UID)
	return nil
}

func TestNotificationHookRespectsSilentContext(t *testing.T) {
	notifier := &recordingNotifier{}
	hook := NewNotificationHook(notifier)
	event := &models.EventRecord{UID: "u1", CalendarID: "cal1"}

	require.NoError(t, hook.Run(context.Background(), event, models.HistoryDelete))
	require.NoError(t, hook.Run(WithSilent(context.Background()), event, models.HistoryDelete))

	assert.Equal(t, []string{"u1"}, notifier.notified)
}

func TestHistoryHookTouchesBaseForExceptions(t *testing.T) {
	history := &recordingHistory{}
	hook := NewHistoryHook(history)

	exc := &models.EventRecord{UID: "exc-uid", BaseID: "root-uid", CalendarID: "cal1"}
	require.NoError(t, hook.Run(context.Background(), exc, models.HistoryModify))
	require.Len(t, history.entries, 2)
	assert.Equal(t, [2]string{"exc-uid", "modify"}, history.entries[0])
	assert.Equal(t, [2]string{"root-uid", "modify"}, history.entries[1])

	history.entries = nil
	single := &models.EventRecord{UID: "u1", CalendarID: "cal1"}
	require.NoError(t, hook.Run(context.Background(), single, models.HistoryAdd))
	require.Len(t, history.entries, 1)
}
