package objfcn

import (
	"slices"
	"testing"
)

func TestRegisterSymbol(t *testing.T) {
	RegisterSymbol("objfcn_test_marker", 0x1234)
	addr, ok := hostResolve("objfcn_test_marker")
	if !ok || addr != 0x1234 {
		t.Errorf("resolve = %#x,%v", addr, ok)
	}
	if !slices.Contains(HostSymbols(), "objfcn_test_marker") {
		t.Errorf("HostSymbols missing registered name")
	}
}

func TestRegisterSymbolsBatch(t *testing.T) {
	RegisterSymbols(map[string]uintptr{
		"objfcn_test_a": 1,
		"objfcn_test_b": 2,
	})
	if a, _ := hostResolve("objfcn_test_a"); a != 1 {
		t.Errorf("a = %#x", a)
	}
	if b, _ := hostResolve("objfcn_test_b"); b != 2 {
		t.Errorf("b = %#x", b)
	}
}

func TestRegistryIsACopy(t *testing.T) {
	RegisterSymbol("objfcn_test_copy", 7)
	r := Registry()
	r["objfcn_test_copy"] = 8
	if got, _ := hostResolve("objfcn_test_copy"); got != 7 {
		t.Errorf("registry clone leaked into process table")
	}
}

func TestHostSeededFromExecutable(t *testing.T) {
	// init registered /proc/self/exe; the test binary carries a symtab, so the
	// table should not be empty.
	if len(HostSymbols()) == 0 {
		t.Skip("host executable stripped")
	}
	t.Logf("%d host symbols", len(HostSymbols()))
}
