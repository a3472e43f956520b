package core

import "testing"

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	var got []uint32
	listener := new(int)

	onResize := func(code SystemEventCode, sender, inst interface{}, ctx EventContext) bool {
		got = append(got, ctx.Data.U32[0], ctx.Data.U32[1])
		return true
	}
	if !bus.Register(EVENT_CODE_RESIZED, listener, onResize) {
		t.Fatal("EventBus.Register: first registration refused")
	}
	if bus.Register(EVENT_CODE_RESIZED, listener, onResize) {
		t.Fatal("EventBus.Register: duplicate listener accepted")
	}

	var ctx EventContext
	ctx.Data.U32[0] = 800
	ctx.Data.U32[1] = 600
	if !bus.Fire(EVENT_CODE_RESIZED, nil, ctx) {
		t.Fatal("EventBus.Fire: event not handled")
	}
	if len(got) != 2 || got[0] != 800 || got[1] != 600 {
		t.Fatalf("EventBus.Fire:\nhave %v\nwant [800 600]", got)
	}
	if bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}) {
		t.Fatal("EventBus.Fire: unregistered code reported handled")
	}
	if !bus.Unregister(EVENT_CODE_RESIZED, listener) {
		t.Fatal("EventBus.Unregister: listener not found")
	}
	if bus.Fire(EVENT_CODE_RESIZED, nil, ctx) {
		t.Fatal("EventBus.Fire: handled after unregister")
	}
}

func TestEventBusStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	handled := func(SystemEventCode, interface{}, interface{}, EventContext) bool { calls++; return true }
	bus.Register(EVENT_CODE_KEY_PRESSED, 1, handled)
	bus.Register(EVENT_CODE_KEY_PRESSED, 2, handled)
	bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{})
	if calls != 1 {
		t.Fatalf("EventBus.Fire:\nhave %d calls\nwant 1", calls)
	}
}
