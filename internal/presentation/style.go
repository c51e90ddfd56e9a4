// Package presentation renders the notification core: an unread badge, a dismissible
// list, short-lived toasts and a passive connection status indicator.
package presentation

import (
	"strconv"

	"notifier/pkg/types"
)

// Style is how a notification kind is displayed
type Style struct {
	Color string
	Icon  string
	Title string
}

// styles is the fixed kind to style table; payload content never changes the style
var styles = map[types.NotificationKind]Style{
	types.KindEntityCreated: {Color: "green", Icon: "check-circle", Title: "Created"},
	types.KindEntityUpdated: {Color: "blue", Icon: "pencil", Title: "Updated"},
	types.KindEntityDeleted: {Color: "red", Icon: "trash", Title: "Deleted"},
	types.KindGeneral:       {Color: "slate", Icon: "bell", Title: "Notification"},
}

// StyleFor returns the style of kind; unknown kinds render as General
func StyleFor(kind types.NotificationKind) Style {
	if style, ok := styles[kind]; ok {
		return style
	}
	return styles[types.KindGeneral]
}

// BadgeCap is the largest count shown verbatim on the badge
const BadgeCap = 9

// BadgeLabel formats an unread count; zero hides the badge
func BadgeLabel(count int) string {
	switch {
	case count <= 0:
		return ""
	case count > BadgeCap:
		return strconv.Itoa(BadgeCap) + "+"
	default:
		return strconv.Itoa(count)
	}
}
