package bencode

import (
	"reflect"
	"testing"
)

func TestMarshalRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "spam", "4:spam"},
		{"empty string", "", "0:"},
		{"positive int", 42, "i42e"},
		{"negative int", -7, "i-7e"},
		{"uint", uint(9), "i9e"},
		{"bool true", true, "i1e"},
		{"bool false", false, "i0e"},
		{"list", []any{"a", int64(1)}, "l1:ai1ee"},
		{"dict sorted keys", map[string]any{"b": int64(2), "a": int64(1)}, "d1:ai1e1:bi2ee"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Marshal(tc.in)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("Marshal() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"string", "4:spam", "spam"},
		{"int", "i42e", int64(42)},
		{"negative int", "i-7e", int64(-7)},
		{"list", "l1:ai1ee", []any{"a", int64(1)}},
		{"dict", "d1:ai1e1:bi2ee", map[string]any{"a": int64(1), "b": int64(2)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Unmarshal([]byte(tc.in))
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Unmarshal() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	tests := []string{
		"i01e",    // leading zero
		"i-0e",    // negative zero
		"5:abc",   // string shorter than declared length
		"d1:ae",   // dict value missing
		"l1:ai1e", // unterminated list
	}

	for _, in := range tests {
		if _, err := Unmarshal([]byte(in)); err == nil {
			t.Fatalf("Unmarshal(%q) expected error, got none", in)
		}
	}
}

func TestUnmarshalRejectsTrailingData(t *testing.T) {
	if _, err := Unmarshal([]byte("i1ei2e")); err == nil {
		t.Fatal("Unmarshal() expected trailing data error, got none")
	}
}
