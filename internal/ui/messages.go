package ui

import (
	"dealgrip/internal/coordinator"
	"dealgrip/internal/eventbus"
)

// EventMsg wraps a domain event for the UI
type EventMsg struct {
	Event eventbus.DomainEvent
}

// StateMsg carries a coordinator snapshot
type StateMsg struct {
	Snapshot coordinator.Snapshot
}

// clearStatusMsg clears the status line if it still shows message id
type clearStatusMsg struct {
	id int
}

// pauseRenderingMsg signals to pause Bubble Tea rendering
type pauseRenderingMsg struct{}

// resumeRenderingMsg signals to resume Bubble Tea rendering
type resumeRenderingMsg struct{}
