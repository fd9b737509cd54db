package domain

type ConnectionID string

// Connection is the identity of one live client. A connection belongs to at
// most one room; Room stays empty until the join completes.
type Connection struct {
	ID          ConnectionID
	DisplayName string
	Language    *Language
	Room        RoomID
}

func (c Connection) InRoom() bool {
	return c.Room != ""
}
