package euphid

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 35, 36, 12345, Max}
	for _, v := range cases {
		id := ID(v)
		s := id.String()
		if len(s) != width {
			t.Fatalf("String(%d) = %q, want length %d", v, s, width)
		}
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", s, err)
		}
		if uint64(got) != v {
			t.Fatalf("Parse(String(%d)) = %d, want %d", v, got, v)
		}
	}
}

func TestParseRejectsBadLength(t *testing.T) {
	for _, s := range []string{"", "1", "000000000000000"} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("Parse(%q) should have failed on length", s)
		}
	}
}

func TestParseRejectsBadAlphabet(t *testing.T) {
	bad := "000000000000!"
	if _, err := Parse(bad); err == nil {
		t.Fatalf("Parse(%q) should have rejected invalid digit", bad)
	}
}

func TestParseRejectsOverflow(t *testing.T) {
	// Max+1 (2^63) encodes as "1y2p0ij32e8e8"; build it with encode.
	over := encode(uint64(Max) + 1)
	if _, err := Parse(over); err == nil {
		t.Fatalf("Parse(%q) should have rejected value above Max", over)
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	id := ID(987654321)
	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var out ID
	if err := out.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if out != id {
		t.Fatalf("got %d, want %d", out, id)
	}
}
