package chat

// Sender identifies which of the two conversation roles produced a message.
// It is a role, not a user identity: every browser tab on the scanner side of
// a session shares the single scanner role.
type Sender string

const (
	SenderOwner   Sender = "owner"
	SenderScanner Sender = "scanner"
)

// Valid reports whether s is one of the two known roles.
func (s Sender) Valid() bool {
	return s == SenderOwner || s == SenderScanner
}
