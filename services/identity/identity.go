package identity

// Caller is the authenticated identity attached to every economy operation.
// It is resolved at the transport boundary (the session provider is an
// external collaborator) and passed explicitly; services never consult
// ambient session state.
type Caller struct {
	UserID      string
	DisplayName string
	PhotoURL    string
	IsAdmin     bool
}
