package namespaces

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		fallback string
		want     string
		wantErr  bool
	}{
		{name: "simple", in: "Tenant-A", fallback: Default, want: "tenant-a"},
		{name: "fallback", in: "", fallback: "Shared", want: "shared"},
		{name: "whitespace", in: "  prod  ", fallback: Default, want: "prod"},
		{name: "dots and underscores", in: "team.alpha_1", fallback: Default, want: "team.alpha_1"},
		{name: "empty with empty fallback", in: "", fallback: "", wantErr: true},
		{name: "illegal characters", in: "team/alpha", fallback: Default, wantErr: true},
		{name: "spaces inside", in: "team alpha", fallback: Default, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in, tc.fallback)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q, %q) expected error, got %q", tc.in, tc.fallback, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q, %q): %v", tc.in, tc.fallback, err)
			}
			if got != tc.want {
				t.Fatalf("Normalize(%q, %q) = %q, want %q", tc.in, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestNormalizeRejectsOverlongValues(t *testing.T) {
	long := make([]byte, MaxLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := Normalize(string(long), Default); err == nil {
		t.Fatalf("expected error for %d character namespace", len(long))
	}
}

func TestNormalizeAll(t *testing.T) {
	got, err := NormalizeAll([]string{"Alpha", "beta", "ALPHA", ""}, Default)
	if err != nil {
		t.Fatalf("NormalizeAll: %v", err)
	}
	want := []string{"alpha", "beta", "default"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeAll = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("NormalizeAll[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if out, err := NormalizeAll(nil, Default); err != nil || out != nil {
		t.Fatalf("NormalizeAll(nil) = %v, %v", out, err)
	}
}
