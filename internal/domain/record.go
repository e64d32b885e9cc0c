package domain

import "time"

// Record is the base shape shared by every persisted document
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta returns the record metadata (satisfies Entity)
func (r *Record) Meta() *Record {
	return r
}

// Entity is implemented by pointers to structs embedding Record
type Entity interface {
	Meta() *Record
}

// Collection names
const (
	CollectionUsers         = "users"
	CollectionPosts         = "posts"
	CollectionComments      = "comments"
	CollectionMessages      = "messages"
	CollectionConversations = "conversations"
	CollectionProfiles      = "profiles"
	CollectionProperties    = "properties"
	CollectionServices      = "services"
	CollectionBookings      = "bookings"
	CollectionReviews       = "reviews"
	CollectionNotifications = "notifications"
	CollectionSettings      = "settings"
)

// KnownCollections lists every collection of the platform
var KnownCollections = []string{
	CollectionUsers,
	CollectionPosts,
	CollectionComments,
	CollectionMessages,
	CollectionConversations,
	CollectionProfiles,
	CollectionProperties,
	CollectionServices,
	CollectionBookings,
	CollectionReviews,
	CollectionNotifications,
	CollectionSettings,
}
