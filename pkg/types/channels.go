package types

// Server to client push channels
const (
	ChannelEntityCreated       = "EntityCreated"
	ChannelEntityUpdated       = "EntityUpdated"
	ChannelEntityDeleted       = "EntityDeleted"
	ChannelReceiveNotification = "ReceiveNotification"
)

// Channels returns the fixed set of named server channels a session listens on
func Channels() []string {
	return []string{
		ChannelEntityCreated,
		ChannelEntityUpdated,
		ChannelEntityDeleted,
		ChannelReceiveNotification,
	}
}

// KindForChannel maps a wire channel to the NotificationKind it is tagged with
func KindForChannel(channel string) (NotificationKind, bool) {
	switch channel {
	case ChannelEntityCreated:
		return KindEntityCreated, true
	case ChannelEntityUpdated:
		return KindEntityUpdated, true
	case ChannelEntityDeleted:
		return KindEntityDeleted, true
	case ChannelReceiveNotification:
		return KindGeneral, true
	default:
		return "", false
	}
}

// ChannelForKind is the inverse of KindForChannel
func ChannelForKind(kind NotificationKind) (string, bool) {
	switch kind {
	case KindEntityCreated:
		return ChannelEntityCreated, true
	case KindEntityUpdated:
		return ChannelEntityUpdated, true
	case KindEntityDeleted:
		return ChannelEntityDeleted, true
	case KindGeneral:
		return ChannelReceiveNotification, true
	default:
		return "", false
	}
}
