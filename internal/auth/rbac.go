package auth

import "strings"

// HasPrivileges reports whether the user holds at least one of the
// required roles. An empty requirement always passes.
func HasPrivileges(user UserDetails, requiredRoles []string) bool {
	required := map[string]bool{}
	for _, r := range requiredRoles {
		if s := strings.TrimSpace(r); s != "" {
			required[s] = true
		}
	}
	if len(required) == 0 {
		return true
	}
	for _, r := range user.Roles {
		if required[strings.TrimSpace(r)] {
			return true
		}
	}
	return false
}
