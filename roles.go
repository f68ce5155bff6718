package lazarus

import "strings"

// RoleTag discriminates the identity variant an id belongs to
type RoleTag string

const (
	// RoleCitizen reports incidents
	RoleCitizen RoleTag = "CITIZEN"
	// RoleEntity is a public safety entity (firefighters, police...)
	RoleEntity RoleTag = "ENTITY"
	// RoleAdmin governs the population
	RoleAdmin RoleTag = "ADMIN"
)

// ResolutionOrder is the fixed order in which identity collections are
// searched when resolving by email.
var ResolutionOrder = []RoleTag{RoleCitizen, RoleEntity, RoleAdmin}

// IsValid checks if the role is one of the predefined valid roles
func (r RoleTag) IsValid() bool {
	switch r {
	case RoleCitizen, RoleEntity, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r RoleTag) String() string {
	return string(r)
}

// GetAllRoles returns all role tags in resolution order
func GetAllRoles() []RoleTag {
	out := make([]RoleTag, len(ResolutionOrder))
	copy(out, ResolutionOrder)
	return out
}

// ParseRole safely parses a string into a RoleTag, case insensitive
func ParseRole(roleStr string) (RoleTag, bool) {
	role := RoleTag(strings.ToUpper(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// EntityCategory is the kind of public safety entity
type EntityCategory string

const (
	EntityFirefighters EntityCategory = "FIREFIGHTERS"
	EntityPolice       EntityCategory = "POLICE"
	EntityRedCross     EntityCategory = "RED_CROSS"
	EntityTraffic      EntityCategory = "TRAFFIC"
	EntityAmbulance    EntityCategory = "AMBULANCE"
	EntityMunicipality EntityCategory = "MUNICIPALITY"
	EntityOther        EntityCategory = "OTHER"
)

// EntityCategories lists the accepted entity categories
var EntityCategories = []any{
	EntityFirefighters,
	EntityPolice,
	EntityRedCross,
	EntityTraffic,
	EntityAmbulance,
	EntityMunicipality,
	EntityOther,
}

// AccessLevel is the administrator privilege tier
type AccessLevel string

const (
	AccessSuperAdmin AccessLevel = "SUPER_ADMIN"
	AccessAdmin      AccessLevel = "ADMIN"
	AccessModerator  AccessLevel = "MODERATOR"
)

// AccessLevels lists the accepted admin access levels
var AccessLevels = []any{AccessSuperAdmin, AccessAdmin, AccessModerator}

// IsAtLeast checks if this level meets the minimum required level
func (l AccessLevel) IsAtLeast(min AccessLevel) bool {
	hierarchy := map[AccessLevel]int{
		AccessModerator:  0,
		AccessAdmin:      1,
		AccessSuperAdmin: 2,
	}

	current, ok := hierarchy[l]
	if !ok {
		return false
	}

	required, ok := hierarchy[min]
	if !ok {
		return false
	}

	return current >= required
}
