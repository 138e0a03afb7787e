package principal

import "fmt"

// Role is the closed set of actor kinds. Behavior that differs per role
// (root selection, capabilities, quota) switches on it exhaustively.
type Role int

const (
	Administrator Role = iota + 1
	RegisteredUser
	Visitor
)

func (r Role) String() string {
	switch r {
	case Administrator:
		return "admin"
	case RegisteredUser:
		return "user"
	case Visitor:
		return "visitor"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// VisitorID is the sentinel id used for visitor sessions.
const VisitorID int64 = -1

// Principal is the authenticated actor behind a request. It is resolved
// once at the session boundary and passed by parameter; nothing in the
// core mutates it.
type Principal struct {
	ID       int64
	Username string
	Role     Role

	// Root is the absolute storage root every path for this principal is
	// confined to.
	Root string

	// QuotaBytes applies to registered users only; administrators and
	// visitors are disk-bound.
	QuotaBytes int64

	MustChangePassword bool
}

func (p Principal) IsAdmin() bool { return p.Role == Administrator }

// Quotaed reports whether uploads must pass a quota check.
func (p Principal) Quotaed() bool { return p.Role == RegisteredUser }

// Mutating capabilities. The visitor role is read-only across the board.

func (p Principal) CanUpload() bool       { return p.Role != Visitor }
func (p Principal) CanDelete() bool       { return p.Role != Visitor }
func (p Principal) CanShare() bool        { return p.Role != Visitor }
func (p Principal) CanCreateFolder() bool { return p.Role != Visitor }
func (p Principal) CanRename() bool       { return p.Role != Visitor }
