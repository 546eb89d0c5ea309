package enums

type Role string

const (
	RoleUser            Role = "USER"
	RoleDepartmentAdmin Role = "DEPARTMENT_ADMIN"
	RoleSuperAdmin      Role = "SUPER_ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDepartmentAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
