package presentation

import (
	"fmt"
	"io"
	"sync"

	"notifier/pkg/types"
)

var ansiColors = map[string]string{
	"green": "\033[32m",
	"blue":  "\033[34m",
	"red":   "\033[31m",
	"slate": "\033[90m",
}

var terminalIcons = map[string]string{
	"check-circle": "✔",
	"pencil":       "✎",
	"trash":        "✖",
	"bell":         "•",
}

const ansiReset = "\033[0m"

// TerminalRenderer writes notifications as lines of text
type TerminalRenderer struct {
	mu        sync.Mutex
	w         io.Writer
	color     bool
	lastBadge string
	listed    int
}

// NewTerminalRenderer renders to w, with ANSI colors when color is set
func NewTerminalRenderer(w io.Writer, color bool) *TerminalRenderer {
	return &TerminalRenderer{w: w, color: color}
}

func (r *TerminalRenderer) RenderBadge(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if label == r.lastBadge {
		return
	}
	r.lastBadge = label
	if label == "" {
		fmt.Fprintln(r.w, "unread: none")
		return
	}
	fmt.Fprintf(r.w, "unread: %s\n", label)
}

func (r *TerminalRenderer) RenderList(notifications []types.NotificationMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(notifications) == 0 && r.listed > 0 {
		fmt.Fprintln(r.w, "notifications cleared")
	}
	r.listed = len(notifications)
}

func (r *TerminalRenderer) ShowToast(toast Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.formatToast(toast))
}

func (r *TerminalRenderer) RemoveToast(string) {}

func (r *TerminalRenderer) RenderStatus(connected bool, connectionError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case connected:
		fmt.Fprintln(r.w, "status: connected")
	case connectionError != "":
		fmt.Fprintf(r.w, "status: disconnected (%s)\n", connectionError)
	default:
		fmt.Fprintln(r.w, "status: disconnected")
	}
}

func (r *TerminalRenderer) formatToast(toast Toast) string {
	msg := toast.Message
	fields := types.ParseEntityFields(msg.Data)

	line := fmt.Sprintf("%s %s [%s]", terminalIcons[toast.Style.Icon], toast.Style.Title, msg.Timestamp)
	if label := fields.Label(); label != "" {
		line += " " + label
	}
	if fields.Message != "" {
		line += ": " + fields.Message
	} else if fields.ID != nil {
		line += fmt.Sprintf(": #%d", *fields.ID)
	}
	if r.color {
		if code, ok := ansiColors[toast.Style.Color]; ok {
			return code + line + ansiReset
		}
	}
	return line
}

// TerminalAlerter rings the terminal bell as the native alert
type TerminalAlerter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
}

// NewTerminalAlerter creates an alerter; enabled plays the role of a granted permission
func NewTerminalAlerter(w io.Writer, enabled bool) *TerminalAlerter {
	return &TerminalAlerter{w: w, enabled: enabled}
}

func (t *TerminalAlerter) Supported() bool { return t.w != nil }

func (t *TerminalAlerter) PermissionGranted() bool { return t.enabled }

func (t *TerminalAlerter) Alert(title, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.w, "\a%s: %s\n", title, body)
	return err
}
