package job

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusQueued, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusQueued, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusProcessing, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusQueued.Terminal() || StatusProcessing.Terminal() {
		t.Fatal("queued/processing must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed/failed must be terminal")
	}
}

func TestMarshalRoundtrip(t *testing.T) {
	j := New(KindUpload, []byte(`{"project":"p","table":"t"}`), "", "")
	s, err := j.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != j.ID || got.Kind != j.Kind || got.Status != j.Status {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", got, j)
	}
}

func TestKindValid(t *testing.T) {
	if !KindUpload.Valid() || !KindQuery.Valid() || !KindSchema.Valid() {
		t.Fatal("known kinds must be valid")
	}
	if Kind("bogus").Valid() {
		t.Fatal("unknown kind must be invalid")
	}
}
