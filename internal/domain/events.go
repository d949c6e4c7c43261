package domain

// EventType represents the type of domain event
type EventType string

// Event types
const (
	EventSearchDispatched EventType = "SearchDispatched"
	EventResultsUpdated   EventType = "ResultsUpdated"
	EventPageFailed       EventType = "PageFailed"
	EventFavoriteChanged  EventType = "FavoriteChanged"
	EventNotification     EventType = "Notification"
	EventConfigLoaded     EventType = "ConfigLoaded"
	EventConfigSaved      EventType = "ConfigSaved"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	Type() EventType
}

// SearchDispatchedEvent is emitted when a debounced selector becomes current
type SearchDispatchedEvent struct {
	Selector Selector
}

func (e SearchDispatchedEvent) Type() EventType { return EventSearchDispatched }

// ResultsUpdatedEvent is emitted whenever the visible result list changes
type ResultsUpdatedEvent struct {
	Selector  Selector
	ItemCount int
	Loading   bool
}

func (e ResultsUpdatedEvent) Type() EventType { return EventResultsUpdated }

// PageFailedEvent is emitted when a page fetch fails for the current selector
type PageFailedEvent struct {
	Selector Selector
	Page     int
	Err      error
}

func (e PageFailedEvent) Type() EventType { return EventPageFailed }

// FavoriteChangedEvent is emitted on every optimistic write, commit and rollback
type FavoriteChangedEvent struct {
	DealID   string
	Favorite bool
	Phase    string
}

func (e FavoriteChangedEvent) Type() EventType { return EventFavoriteChanged }

// NotificationEvent carries a user-facing message
type NotificationEvent struct {
	Level   NotificationLevel
	Message string
}

func (e NotificationEvent) Type() EventType { return EventNotification }

// ConfigLoadedEvent is emitted when configuration is loaded
type ConfigLoadedEvent struct {
	Path string
}

func (e ConfigLoadedEvent) Type() EventType { return EventConfigLoaded }

// ConfigSavedEvent is emitted when configuration is saved
type ConfigSavedEvent struct {
	Path string
}

func (e ConfigSavedEvent) Type() EventType { return EventConfigSaved }
