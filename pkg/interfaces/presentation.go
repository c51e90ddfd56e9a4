package interfaces

// NativeAlerter raises an alert outside the application window (desktop notification,
// terminal bell, ...)
// TECHNICAL DISCOVERY: Capability and permission are checked before every alert; an
// alerter that is unsupported or denied is simply skipped
type NativeAlerter interface {
	Supported() bool
	PermissionGranted() bool
	Alert(title, body string) error
}
