package resource

import (
	"encoding/json"
	"testing"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
)

func int64p(v int64) *int64 { return &v }

func TestUpdateItem_JSON(t *testing.T) {
	item := AssetUpdate{
		Identity: identity.FromExternalID("pump-1"),
		Update:   AssetPatch{Name: Set("Pump 1")},
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"externalId":"pump-1","update":{"name":{"set":"Pump 1"}}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var back AssetUpdate
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Identity != item.Identity {
		t.Errorf("Identity = %v, want %v", back.Identity, item.Identity)
	}
	if back.Update.Name == nil || *back.Update.Name.Set != "Pump 1" {
		t.Errorf("Update.Name = %+v", back.Update.Name)
	}
}

func TestUpdateItem_NoIdentity(t *testing.T) {
	if _, err := json.Marshal(AssetUpdate{}); err == nil {
		t.Error("expected error for update without identity")
	}
}

func TestDiffAsset(t *testing.T) {
	existing := Asset{
		ID:          1,
		ExternalID:  "a",
		Name:        "A",
		Description: "old",
		DataSetID:   5,
		Metadata:    map[string]string{"k": "v"},
		Labels:      []Label{{ExternalID: "l1"}},
	}

	tests := []struct {
		name        string
		desired     AssetWrite
		opts        UpdateOptions
		wantChanged bool
		check       func(t *testing.T, p AssetPatch)
	}{
		{
			name:        "identical",
			desired:     AssetWrite{ExternalID: "a", Name: "A", Description: "old", DataSetID: int64p(5), Metadata: map[string]string{"k": "v"}, Labels: []Label{{ExternalID: "l1"}}},
			wantChanged: false,
		},
		{
			name:        "empty fields kept without SetNull",
			desired:     AssetWrite{ExternalID: "a", Name: "A"},
			wantChanged: false,
		},
		{
			name:        "empty fields cleared with SetNull",
			desired:     AssetWrite{ExternalID: "a", Name: "A", Metadata: map[string]string{"k": "v"}, Labels: []Label{{ExternalID: "l1"}}},
			opts:        UpdateOptions{SetNull: true},
			wantChanged: true,
			check: func(t *testing.T, p AssetPatch) {
				if p.Description == nil || !p.Description.SetNull {
					t.Errorf("Description = %+v, want setNull", p.Description)
				}
				if p.DataSetID == nil || !p.DataSetID.SetNull {
					t.Errorf("DataSetID = %+v, want setNull", p.DataSetID)
				}
			},
		},
		{
			name:        "metadata merged",
			desired:     AssetWrite{ExternalID: "a", Name: "A", Metadata: map[string]string{"k2": "v2"}},
			wantChanged: true,
			check: func(t *testing.T, p AssetPatch) {
				if p.Metadata == nil || p.Metadata.Add["k2"] != "v2" || p.Metadata.Set != nil {
					t.Errorf("Metadata = %+v, want add k2", p.Metadata)
				}
			},
		},
		{
			name:        "metadata replaced",
			desired:     AssetWrite{ExternalID: "a", Name: "A", Metadata: map[string]string{"k2": "v2"}},
			opts:        UpdateOptions{ReplaceMetadata: true},
			wantChanged: true,
			check: func(t *testing.T, p AssetPatch) {
				if p.Metadata == nil || len(p.Metadata.Set) != 1 {
					t.Errorf("Metadata = %+v, want set", p.Metadata)
				}
			},
		},
		{
			name:        "parent moved by external id",
			desired:     AssetWrite{ExternalID: "a", Name: "A", ParentExternalID: "root", ParentID: int64p(9)},
			wantChanged: true,
			check: func(t *testing.T, p AssetPatch) {
				if p.ParentExternalID == nil || p.ParentID != nil {
					t.Errorf("parent patch = %+v / %+v", p.ParentExternalID, p.ParentID)
				}
			},
		},
		{
			name:        "labels replaced",
			desired:     AssetWrite{ExternalID: "a", Name: "A", Labels: []Label{{ExternalID: "l2"}}},
			opts:        UpdateOptions{ReplaceLabels: true},
			wantChanged: true,
			check: func(t *testing.T, p AssetPatch) {
				if p.Labels == nil || len(p.Labels.Add) != 1 || len(p.Labels.Remove) != 1 {
					t.Errorf("Labels = %+v", p.Labels)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, changed := DiffAsset(existing, tt.desired, tt.opts)
			if changed != tt.wantChanged {
				t.Fatalf("changed = %v, want %v (patch %+v)", changed, tt.wantChanged, p)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestDiffTimeSeries_IgnoresIsString(t *testing.T) {
	existing := TimeSeries{ID: 1, ExternalID: "ts", Name: "TS", IsString: false}
	_, changed := DiffTimeSeries(existing, TimeSeriesWrite{ExternalID: "ts", Name: "TS", IsString: true}, UpdateOptions{})
	if changed {
		t.Error("IsString change should not produce a patch")
	}
}

func TestDiffEvent_AssetIDsAdded(t *testing.T) {
	existing := Event{ID: 1, ExternalID: "e", AssetIDs: []int64{1, 2}}
	p, changed := DiffEvent(existing, EventWrite{ExternalID: "e", AssetIDs: []int64{2, 3}}, UpdateOptions{})
	if !changed {
		t.Fatal("expected change")
	}
	if p.AssetIDs == nil || len(p.AssetIDs.Add) != 1 || p.AssetIDs.Add[0] != 3 {
		t.Errorf("AssetIDs = %+v, want add [3]", p.AssetIDs)
	}
}

func TestDataPoint_JSON(t *testing.T) {
	w := NewDataPointsWrite(identity.FromExternalID("ts"), []DataPoint{
		NumericPoint(1000, 1.5),
		StringPoint(2000, "on"),
	})
	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"externalId":"ts","datapoints":[{"timestamp":1000,"value":1.5},{"timestamp":2000,"value":"on"}]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var back DataPointsWrite
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Identity() != identity.FromExternalID("ts") {
		t.Errorf("Identity() = %v", back.Identity())
	}
	if back.Datapoints[0].IsString || !back.Datapoints[1].IsString {
		t.Errorf("Datapoints = %+v", back.Datapoints)
	}
}
