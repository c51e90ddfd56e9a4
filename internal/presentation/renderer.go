package presentation

import "notifier/pkg/types"

// Toast is one transient popup
type Toast struct {
	ID      string
	Style   Style
	Message types.NotificationMessage
}

// Renderer is the UI sink; calls may arrive from several goroutines
type Renderer interface {
	RenderBadge(label string)
	RenderList(notifications []types.NotificationMessage)
	ShowToast(toast Toast)
	RemoveToast(id string)
	RenderStatus(connected bool, connectionError string)
}

// NopRenderer discards everything
type NopRenderer struct{}

func (NopRenderer) RenderBadge(string)                      {}
func (NopRenderer) RenderList([]types.NotificationMessage) {}
func (NopRenderer) ShowToast(Toast)                         {}
func (NopRenderer) RemoveToast(string)                      {}
func (NopRenderer) RenderStatus(bool, string)               {}
