package di

import "testing"

type greeter struct{ name string }

func TestContainer_RegisterAndGet(t *testing.T) {
	c := NewContainer()
	c.Register("answer", 42)

	if got := c.Get("answer").(int); got != 42 {
		t.Errorf("Get = %d, want 42", got)
	}
	if !c.Has("answer") {
		t.Error("Has should report a registered service")
	}
	if c.Has("missing") {
		t.Error("Has should be false for unknown names")
	}
}

func TestRegisterToken_LazySingleton(t *testing.T) {
	c := NewContainer()
	tok := NewToken[*greeter]("greeter")

	calls := 0
	RegisterToken(c, tok, func(ServiceRegistry) *greeter {
		calls++
		return &greeter{name: "pool"}
	})

	if calls != 0 {
		t.Fatalf("factory ran before first Get")
	}

	a := GetToken(c, tok)
	b := GetToken(c, tok)
	if a != b {
		t.Error("expected the same instance on every Get")
	}
	if calls != 1 {
		t.Errorf("factory ran %d times, want 1", calls)
	}
	if a.name != "pool" {
		t.Errorf("name = %q", a.name)
	}
}

func TestGetToken_WrongTypePanics(t *testing.T) {
	c := NewContainer()
	c.Register("x", "string value")

	defer func() {
		if recover() == nil {
			t.Error("expected panic on type mismatch")
		}
	}()
	GetToken(c, NewToken[int]("x"))
}

func TestGet_MissingPanics(t *testing.T) {
	c := NewContainer()
	defer func() {
		if recover() == nil {
			t.Error("expected panic for missing service")
		}
	}()
	c.Get("nope")
}
