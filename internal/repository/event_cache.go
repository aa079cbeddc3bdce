package repository

import (
	"sync"

	"github.com/temporade/chronicle-api/internal/models"
)

// EventCache memoizes event records fetched during a query so the same
// record is never read from the store twice. Entries are keyed by
// (calendar id, event id); the calendar id is an explicit parameter on
// every call, never ambient state.
type EventCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]*models.EventRecord
}

// NewEventCache builds an empty cache.
func NewEventCache() *EventCache {
	return &EventCache{entries: make(map[string]map[string]*models.EventRecord)}
}

// Get returns the cached record for the calendar, if present.
func (c *EventCache) Get(calendarID, id string) (*models.EventRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byID, ok := c.entries[calendarID]
	if !ok {
		return nil, false
	}
	event, ok := byID[id]
	return event, ok
}

// Put stores a record under its calendar.
func (c *EventCache) Put(calendarID string, event *models.EventRecord) {
	if event == nil || event.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byID, ok := c.entries[calendarID]
	if !ok {
		byID = make(map[string]*models.EventRecord)
		c.entries[calendarID] = byID
	}
	byID[event.ID] = event
}

// Invalidate removes a single entry after a save or delete of that id.
func (c *EventCache) Invalidate(calendarID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if byID, ok := c.entries[calendarID]; ok {
		delete(byID, id)
	}
}

// DropCalendar discards every entry of one calendar, e.g. after a bulk
// delete or a calendar move.
func (c *EventCache) DropCalendar(calendarID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, calendarID)
}
