package domain

type RoomID string

// Room is the logical multi-party session the client joins.
type Room struct {
	ID RoomID
}
