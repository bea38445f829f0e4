package pointid

import (
	"testing"

	"github.com/google/uuid"
)

func TestFor_Deterministic(t *testing.T) {
	a := For("docs/guide.md", 0)
	b := For("docs/guide.md", 0)
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
}

func TestFor_DistinctInputs(t *testing.T) {
	ids := map[string]bool{
		For("docs/guide.md", 0): true,
		For("docs/guide.md", 1): true,
		For("docs/other.md", 0): true,
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 distinct ids, got %d", len(ids))
	}
}

func TestFor_IsVersion5UUID(t *testing.T) {
	id, err := uuid.Parse(For("a.txt", 7))
	if err != nil {
		t.Fatalf("not a valid uuid: %v", err)
	}
	if id.Version() != 5 {
		t.Errorf("uuid version = %d, want 5", id.Version())
	}
}

func TestFor_MatchesURLNamespaceDerivation(t *testing.T) {
	want := uuid.NewSHA1(uuid.NameSpaceURL, []byte("a.txt::chunk::3")).String()
	if got := For("a.txt", 3); got != want {
		t.Errorf("For = %s, want %s", got, want)
	}
}
