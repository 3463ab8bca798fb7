package env

import "testing"

func TestGetFallback(t *testing.T) {
	t.Setenv("SHEERENT_TEST_VALUE", "")
	if got := Get("SHEERENT_TEST_VALUE", "dflt"); got != "dflt" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("SHEERENT_TEST_VALUE", "set")
	if got := Get("SHEERENT_TEST_VALUE", "dflt"); got != "set" {
		t.Fatalf("expected set, got %q", got)
	}
}

func TestFirstHonoursOrder(t *testing.T) {
	t.Setenv("SHEERENT_TEST_A", "")
	t.Setenv("SHEERENT_TEST_B", "b")
	t.Setenv("SHEERENT_TEST_C", "c")
	if got := First("x", "SHEERENT_TEST_A", "SHEERENT_TEST_B", "SHEERENT_TEST_C"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First("x", "SHEERENT_TEST_A"); got != "x" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
