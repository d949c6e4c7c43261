// Package notify delivers user-facing success and error messages.
package notify

import (
	"log/slog"

	"dealgrip/internal/domain"
	"dealgrip/internal/eventbus"
)

// Notifier receives user-facing messages
//
//go:generate mockgen -destination=../mocks/mock_notifier.go -package=mocks dealgrip/internal/notify Notifier
type Notifier interface {
	NotifySuccess(message string)
	NotifyError(message string)
}

// BusNotifier publishes notifications as events for the view to render
type BusNotifier struct {
	bus eventbus.EventBus
}

// NewBusNotifier creates a notifier publishing to bus
func NewBusNotifier(bus eventbus.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

func (n *BusNotifier) NotifySuccess(message string) {
	n.bus.Publish(eventbus.NotificationEvent{Level: domain.LevelSuccess, Message: message})
}

func (n *BusNotifier) NotifyError(message string) {
	n.bus.Publish(eventbus.NotificationEvent{Level: domain.LevelError, Message: message})
}

// LogNotifier writes notifications to a logger, for headless use
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier writing to logger; nil uses slog.Default
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifySuccess(message string) {
	n.logger.Info("notify: success", "message", message)
}

func (n *LogNotifier) NotifyError(message string) {
	n.logger.Error("notify: error", "message", message)
}
