package identity

import (
	"encoding/json"
	"testing"
)

func TestIdentity_Equality(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Identity
		equal bool
	}{
		{"same id", FromID(1), FromID(1), true},
		{"different id", FromID(1), FromID(2), false},
		{"same external id", FromExternalID("a"), FromExternalID("a"), true},
		{"id vs external id", FromID(1), FromExternalID("1"), false},
		{"instance vs external id", FromInstanceID("s", "a"), FromExternalID("a"), false},
		{"same instance", FromInstanceID("s", "a"), FromInstanceID("s", "a"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a == tt.b; got != tt.equal {
				t.Errorf("%v == %v = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
			m := map[Identity]int{tt.a: 1}
			if _, ok := m[tt.b]; ok != tt.equal {
				t.Errorf("map lookup of %v found = %v, want %v", tt.b, ok, tt.equal)
			}
		})
	}
}

func TestIdentity_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Identity
	}{
		{"id", `{"id":42}`, FromID(42)},
		{"external id", `{"externalId":"pump-1"}`, FromExternalID("pump-1")},
		{"nested instance", `{"instanceId":{"space":"sp","externalId":"x"}}`, FromInstanceID("sp", "x")},
		{"flat instance", `{"space":"sp","externalId":"x"}`, FromInstanceID("sp", "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Unmarshal() = %v, want %v", got, tt.want)
			}
		})
	}

	if err := json.Unmarshal([]byte(`{}`), new(Identity)); err == nil {
		t.Error("expected error for empty identity object")
	}

	data, err := json.Marshal(FromExternalID("pump-1"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"externalId":"pump-1"}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestSet(t *testing.T) {
	s := NewSet(FromID(1), FromExternalID("a"), FromID(1))
	s.Add(FromExternalID("b"), FromExternalID("a"))

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	want := []Identity{FromID(1), FromExternalID("a"), FromExternalID("b")}
	for i, id := range s.Items() {
		if id != want[i] {
			t.Errorf("Items()[%d] = %v, want %v", i, id, want[i])
		}
	}
	if !s.Contains(FromExternalID("b")) {
		t.Error("Contains(b) = false")
	}
	if s.Contains(FromID(2)) {
		t.Error("Contains(id:2) = true")
	}
}
