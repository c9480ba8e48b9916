package room

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    ID
		wantErr bool
	}{
		{name: "canonical", in: "B212", want: ID{Block: 'B', Floor: 2, Number: 12}},
		{name: "lower block", in: "a266", want: ID{Block: 'A', Floor: 2, Number: 66}},
		{name: "three chars", in: "C00", want: ID{Block: 'C', Floor: 0, Number: 0}},
		{name: "wide number", in: "D3123456", want: ID{Block: 'D', Floor: 3, Number: 123456}},
		{name: "empty", in: "", wantErr: true},
		{name: "single char", in: "B", wantErr: true},
		{name: "two chars", in: "B2", wantErr: true},
		{name: "letter floor", in: "BX12", wantErr: true},
		{name: "non numeric number", in: "B2x1", wantErr: true},
		{name: "signed number", in: "B2-1", wantErr: true},
		{name: "free text", in: "not-a-room", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("Parse(%q) err = %v, want ErrInvalid", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"B212":  "B212",
		"b212":  "B212",
		"A266":  "A266",
		"c0100": "C0100",
		"E91":   "E91",
	} {
		id, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := id.String(); got != want {
			t.Errorf("String(Parse(%q)) = %q, want %q", in, got, want)
		}
		again, err := Parse(id.String())
		if err != nil || again != id {
			t.Errorf("Parse(String()) = %+v, %v; want %+v", again, err, id)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"b212":  "B212",
		"c101":  "C101",
		"C101":  "C101",
		"A0066": "A0066",
		"Aula":  "Aula",
		"B2":    "B2",
	} {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}

	// Zero-padded numbers still compare structurally.
	if d := MustParse("C101").DistanceTo(MustParse("C11")); d != 0 {
		t.Errorf("C101 to C11 = %d, want 0", d)
	}
}

func TestDistance(t *testing.T) {
	t.Parallel()

	dst := MustParse("B212")

	tests := []struct {
		code string
		want uint64
	}{
		{"B212", 0},
		{"b212", 0},
		{"B220", 8},
		{"B205", 7},
		{"B312", 100},
		{"B112", 100},
		{"C212", 1000},
		{"A312", 1100},
		{"D015", 2000 + 200 + 3},
		{"not-a-room", MaxDistance},
		{"", MaxDistance},
		{"BX12", MaxDistance},
	}

	for _, tt := range tests {
		if got := Distance(dst, tt.code); got != tt.want {
			t.Errorf("Distance(B212, %q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestDistanceSymmetric(t *testing.T) {
	t.Parallel()

	a := MustParse("A101")
	b := MustParse("C399")
	if a.DistanceTo(b) != b.DistanceTo(a) {
		t.Fatalf("distance not symmetric: %d vs %d", a.DistanceTo(b), b.DistanceTo(a))
	}
}

func TestDistanceSaturatesBelowSentinel(t *testing.T) {
	t.Parallel()

	a := ID{Block: 'A', Floor: 0, Number: 0}
	b := ID{Block: 'Z', Floor: 9, Number: MaxDistance}
	got := a.DistanceTo(b)
	if got == MaxDistance {
		t.Fatal("valid rooms must never score the sentinel")
	}
	if got != MaxDistance-1 {
		t.Fatalf("DistanceTo = %d, want saturation at %d", got, MaxDistance-1)
	}
}

func TestMustParsePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("MustParse did not panic")
		}
	}()
	MustParse("x")
}
