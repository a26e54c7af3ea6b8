package enums

// StaffRole is carried in staff bearer tokens.
type StaffRole string

const (
	StaffRoleStaff StaffRole = "staff"
	StaffRoleAdmin StaffRole = "admin"
)

var staffRoles = valueSet[StaffRole]{StaffRoleStaff, StaffRoleAdmin}

func (r StaffRole) String() string { return string(r) }

func (r StaffRole) IsValid() bool { return staffRoles.has(r) }
