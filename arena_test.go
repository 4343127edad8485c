package objfcn

import (
	"errors"
	"os"
	"testing"

	"github.com/ZenLiuCN/fn"
)

func TestArenaAllocAlign(t *testing.T) {
	a := fn.Panic1(newArena(256))
	defer a.release()
	if a.size()%uintptr(os.Getpagesize()) != 0 {
		t.Errorf("arena size %#x not page rounded", a.size())
	}
	p1 := fn.Panic1(a.alloc(10))
	if p1 != a.base {
		t.Errorf("first alloc at %#x, want base %#x", p1, a.base)
	}
	a.alignTo(16)
	p2 := fn.Panic1(a.alloc(4))
	if p2%16 != 0 {
		t.Errorf("aligned alloc at %#x", p2)
	}
	if p2 < p1+10 {
		t.Errorf("alloc rewound: %#x after %#x+10", p2, p1)
	}
	if !a.contains(p1) || !a.contains(p2) {
		t.Errorf("contains broken")
	}
	if a.contains(a.base + a.size()) {
		t.Errorf("contains past end")
	}
}

func TestArenaExhausted(t *testing.T) {
	a := fn.Panic1(newArena(16))
	defer a.release()
	if _, err := a.alloc(a.size() + 1); !errors.Is(err, ErrArena) {
		t.Errorf("err = %v, want ErrArena", err)
	}
	fn.Panic1(a.alloc(a.size()))
	if _, err := a.alloc(1); !errors.Is(err, ErrArena) {
		t.Errorf("err after fill = %v, want ErrArena", err)
	}
}

func TestArenaAt(t *testing.T) {
	a := fn.Panic1(newArena(64))
	defer a.release()
	b := fn.Panic1(a.at(a.base+8, 4))
	b[0] = 0x5a
	again := fn.Panic1(a.at(a.base+8, 1))
	if again[0] != 0x5a {
		t.Errorf("at views disagree")
	}
	if _, err := a.at(a.base+a.size(), 1); !errors.Is(err, ErrBadObject) {
		t.Errorf("err = %v, want ErrBadObject", err)
	}
	if _, err := a.at(a.base-1, 1); err == nil {
		t.Errorf("address below base accepted")
	}
}

func TestArenaZeroInitialized(t *testing.T) {
	a := fn.Panic1(newArena(4096))
	defer a.release()
	p := fn.Panic1(a.alloc(4096))
	b := fn.Panic1(a.at(p, 4096))
	for i, c := range b {
		if c != 0 {
			t.Fatalf("byte %d not zero", i)
		}
	}
}
