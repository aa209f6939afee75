package domain

// Role identifies a workflow actor group. Stage definitions name the
// roles allowed to act at that stage; admins may act everywhere.
type Role string

const (
	RoleServiceProvider Role = "ROLE_SP"
	RoleETC             Role = "ROLE_ETC"
	RoleNRC             Role = "ROLE_NRC"
	RoleAdmin           Role = "ROLE_ADMIN"
	RoleViewer          Role = "ROLE_VIEWER"
)

// DeliveryType selects the stage graph a parcel moves through.
type DeliveryType string

const (
	DeliveryCountry DeliveryType = "country"
	DeliveryLot     DeliveryType = "lot"
	DeliveryStream  DeliveryType = "stream"
)

// DeliveryTypes lists the valid delivery types in display order.
var DeliveryTypes = []DeliveryType{DeliveryCountry, DeliveryLot, DeliveryStream}

// EventType classifies outgoing workflow notifications. The set is
// closed: the notifier panics on anything else.
type EventType string

const (
	EventStageFinished EventType = "stage_finished"
	EventComment       EventType = "comment"
)
