package lists

import "testing"

func TestSortedUnique(t *testing.T) {
	in := []uint64{5, 2, 5, 0, 2, 9}

	got := SortedUnique(in)

	want := []uint64{0, 2, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("expected %v but got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v but got %v", want, got)
		}
	}

	// input untouched
	if in[0] != 5 || in[3] != 0 {
		t.Errorf("input was modified: %v", in)
	}
}

func TestSortedUniqueEmpty(t *testing.T) {
	if got := SortedUnique([]int(nil)); got != nil {
		t.Errorf("expected nil but got %v", got)
	}
}

func TestSortedUniqueSingle(t *testing.T) {
	got := SortedUnique([]string{"x"})
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("expected [x] but got %v", got)
	}
}
