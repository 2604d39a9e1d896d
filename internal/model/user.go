package model

// Role is the value of the "role" claim carried by access tokens.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleStaff   Role = "Staff"
	RoleDoctor  Role = "Doctor"
	RolePatient Role = "Patient"
)

// Staff reports whether the role manages appointments on behalf of the
// clinic.
func (r Role) Staff() bool { return r == RoleAdmin || r == RoleStaff }

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	ID   uint64
	Role Role
}

// Contact is the read-only view of a `users` row needed to address a
// patient or a doctor. Users are owned by the account service; this
// module never writes them.
//
// Fields:
//
//	ID        – users.id
//	FirstName – users.first_name
//	LastName  – users.last_name
//	Email     – users.email
//	Mobile    – users.mobile (may be empty)
//	Role      – users.role
type Contact struct {
	ID        uint64
	FirstName string
	LastName  string
	Email     string
	Mobile    string
	Role      Role
}

// FullName joins first and last name.
func (c *Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	if c.FirstName == "" {
		return c.LastName
	}
	return c.FirstName + " " + c.LastName
}
