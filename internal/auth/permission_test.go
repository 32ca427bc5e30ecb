package auth

import (
	"encoding/json"
	"testing"
)

func TestPermissionSetMembership(t *testing.T) {
	set := NewPermissionSet(Permission{Resource: ResourceEmployees, Action: ActionRead})
	set.Grant(ResourceUsers, ActionRead, ActionUpdate)

	tests := []struct {
		resource Resource
		action   Action
		want     bool
	}{
		{ResourceEmployees, ActionRead, true},
		{ResourceEmployees, ActionUpdate, false},
		{ResourceUsers, ActionUpdate, true},
		{Resource("Users"), ActionUpdate, false},
		{Resource("payroll"), ActionRead, false},
	}
	for _, tt := range tests {
		if got := set.Has(tt.resource, tt.action); got != tt.want {
			t.Errorf("Has(%s, %s) = %v, want %v", tt.resource, tt.action, got, tt.want)
		}
	}

	var empty PermissionSet
	if empty.Has(ResourceUsers, ActionRead) {
		t.Error("expected nil set to grant nothing")
	}
}

func TestPermissionSetJSON(t *testing.T) {
	raw := []byte(`{"employees":["update","read"],"profile":["read"],"":["read"],"custom":["export"]}`)
	var set PermissionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		t.Fatalf("unexpected error decoding: %v", err)
	}
	if len(set) != 4 {
		t.Fatalf("expected 4 grants, got %d", len(set))
	}
	if !set.Has(Resource("custom"), Action("export")) {
		t.Fatal("expected unknown vocabulary to be preserved")
	}

	encoded, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("unexpected error encoding: %v", err)
	}
	want := `{"custom":["export"],"employees":["read","update"],"profile":["read"]}`
	if string(encoded) != want {
		t.Fatalf("expected %s, got %s", want, encoded)
	}
}

func TestPermissionSetScan(t *testing.T) {
	var set PermissionSet
	if err := set.Scan([]byte(`{"attendance":["create"]}`)); err != nil {
		t.Fatalf("unexpected error scanning: %v", err)
	}
	if !set.Has(ResourceAttendance, ActionCreate) {
		t.Fatal("expected attendance:create")
	}
	if err := set.Scan(nil); err != nil || len(set) != 0 {
		t.Fatalf("expected nil to scan into an empty set, got %v / %v", set, err)
	}
	if err := set.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}

	value, err := NewPermissionSet().Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "{}" {
		t.Fatalf("expected {}, got %v", value)
	}
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission(" users : update ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != (Permission{Resource: ResourceUsers, Action: ActionUpdate}) {
		t.Fatalf("unexpected permission %v", p)
	}
	if p.String() != "users:update" {
		t.Fatalf("unexpected string %s", p.String())
	}
	for _, bad := range []string{"", "users", ":read", "users:"} {
		if _, err := ParsePermission(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
