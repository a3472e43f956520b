package core

import "testing"

func TestRegistry(t *testing.T) {
	r := NewRegistry(4)
	a := r.Acquire("a")
	b := r.Acquire("b")
	c := r.Acquire("c")
	if a != 0 || b != 1 || c != 2 {
		t.Fatalf("Registry.Acquire:\nhave %d %d %d\nwant 0 1 2", a, b, c)
	}
	if err := r.Release(b); err != nil {
		t.Fatalf("Registry.Release:\nhave %v\nwant nil", err)
	}
	if r.Owner(b) != nil {
		t.Fatal("Registry.Owner: released id still owned")
	}
	if have := r.Acquire("d"); have != b {
		t.Fatalf("Registry.Acquire: freed id not reused\nhave %d\nwant %d", have, b)
	}
	if have := r.Owner(b); have != "d" {
		t.Fatalf("Registry.Owner:\nhave %v\nwant d", have)
	}
	if have := r.Len(); have != 3 {
		t.Fatalf("Registry.Len:\nhave %d\nwant 3", have)
	}
	if err := r.Release(42); err == nil {
		t.Fatal("Registry.Release: expected error for out of range id")
	}
	if err := r.Release(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Release(a); err == nil {
		t.Fatal("Registry.Release: expected error for double release")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	r1 := NewRegistry(0)
	r2 := NewRegistry(0)
	r1.Acquire(1)
	r1.Acquire(2)
	if have := r2.Acquire(3); have != 0 {
		t.Fatalf("Registry.Acquire:\nhave %d\nwant 0", have)
	}
}
