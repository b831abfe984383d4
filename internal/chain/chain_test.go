package chain

import "testing"

func TestResolve(t *testing.T) {
	cases := []struct {
		network string
		name    string
	}{
		{"mainnet", "ethereum"},
		{"Mainnet", "ethereum"},
		{"polygon", "matic"},
		{"base", "base"},
	}
	for _, c := range cases {
		ctx, err := Resolve(c.network)
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", c.network, err)
		}
		if ctx.Name != c.name {
			t.Errorf("Resolve(%q).Name = %q, want %q", c.network, ctx.Name, c.name)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	if _, err := Resolve("dogecoin"); err == nil {
		t.Fatalf("expected error for unknown network")
	}
	if _, err := Resolve(""); err == nil {
		t.Fatalf("expected error for empty network")
	}
}
