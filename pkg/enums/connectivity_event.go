package enums

// ConnectivityEvent is emitted on online/offline transitions.
type ConnectivityEvent string

const (
	ConnectivityWentOnline  ConnectivityEvent = "went_online"
	ConnectivityWentOffline ConnectivityEvent = "went_offline"
)
