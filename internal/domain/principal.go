package domain

// PrincipalKind enumerates the actors the authorization gate distinguishes.
type PrincipalKind int

const (
	Anonymous PrincipalKind = iota
	PendingUser
	ApprovedUser
	AdminPrincipal
)

func (k PrincipalKind) String() string {
	switch k {
	case PendingUser:
		return "pending_user"
	case ApprovedUser:
		return "approved_user"
	case AdminPrincipal:
		return "admin"
	default:
		return "anonymous"
	}
}

// Principal is the actor behind a request. UserID is set for user kinds,
// AdminID and Username for admins.
type Principal struct {
	Kind     PrincipalKind
	UserID   uint
	AdminID  uint
	Username string
	Email    string
}

// AnonymousPrincipal is the zero-privilege visitor.
func AnonymousPrincipal() Principal {
	return Principal{Kind: Anonymous}
}

// UserPrincipal builds a user principal whose kind follows the approval flag.
func UserPrincipal(userID uint, email string, approved bool) Principal {
	kind := PendingUser
	if approved {
		kind = ApprovedUser
	}
	return Principal{Kind: kind, UserID: userID, Email: email}
}

// IsUser reports whether the principal is a signed-in user, approved or not.
func (p Principal) IsUser() bool {
	return p.Kind == PendingUser || p.Kind == ApprovedUser
}
