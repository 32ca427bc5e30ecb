package auth

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Resource names a protected domain object.
type Resource string

// Action names an operation on a Resource.
type Action string

const (
	ResourceEmployees  Resource = "employees"
	ResourceAttendance Resource = "attendance"
	ResourceUsers      Resource = "users"
	ResourceRoles      Resource = "roles"
	ResourceReports    Resource = "reports"
	ResourceProfile    Resource = "profile"
	ResourceAuditLogs  Resource = "audit_logs"
)

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// CRUD is the full action list used by administrative roles.
var CRUD = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

// Permission is a single resource/action grant.
type Permission struct {
	Resource Resource
	Action   Action
}

// String renders the permission as "resource:action".
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParsePermission parses the "resource:action" form.
func ParsePermission(value string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(value), ":")
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("invalid permission %q", value)
	}
	return Permission{Resource: Resource(resource), Action: Action(action)}, nil
}

// PermissionSet is the set of grants attached to a role and embedded in tokens.
// It serialises as a resource to actions map, e.g. {"employees":["read","update"]}.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from individual grants.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Grant adds every action under resource.
func (s PermissionSet) Grant(resource Resource, actions ...Action) PermissionSet {
	for _, action := range actions {
		s[Permission{Resource: resource, Action: action}] = struct{}{}
	}
	return s
}

// Has reports whether action is granted under resource. Matching is exact.
func (s PermissionSet) Has(resource Resource, action Action) bool {
	_, ok := s[Permission{Resource: resource, Action: action}]
	return ok
}

// Permissions returns the grants in a stable order.
func (s PermissionSet) Permissions() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// ToMap returns the resource to actions form.
func (s PermissionSet) ToMap() map[string][]string {
	out := make(map[string][]string)
	for _, p := range s.Permissions() {
		key := string(p.Resource)
		out[key] = append(out[key], string(p.Action))
	}
	return out
}

// PermissionSetFromMap builds a set from the resource to actions form.
func PermissionSetFromMap(raw map[string][]string) PermissionSet {
	set := make(PermissionSet)
	for resource, actions := range raw {
		resource = strings.TrimSpace(resource)
		if resource == "" {
			continue
		}
		for _, action := range actions {
			action = strings.TrimSpace(action)
			if action == "" {
				continue
			}
			set[Permission{Resource: Resource(resource), Action: Action(action)}] = struct{}{}
		}
	}
	return set
}

// MarshalJSON implements json.Marshaler.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToMap())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode permissions: %w", err)
	}
	*s = PermissionSetFromMap(raw)
	return nil
}

// Value 实现 driver.Valuer 接口。
func (s PermissionSet) Value() (driver.Value, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan 实现 sql.Scanner 接口。
func (s *PermissionSet) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = PermissionSet{}
		return nil
	case []byte:
		if len(v) == 0 {
			*s = PermissionSet{}
			return nil
		}
		return s.UnmarshalJSON(v)
	case string:
		if v == "" {
			*s = PermissionSet{}
			return nil
		}
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported type for PermissionSet: %T", value)
	}
}
