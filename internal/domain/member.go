package domain

// Member represents a user's presence in a signaling room.
// No transport or lifecycle logic here.
type Member struct {
	User UserID
	// ClientToken identifies the browser the connection came from.
	ClientToken string
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user UserID, clientToken string) *Member {
	return &Member{User: user, ClientToken: clientToken}
}
