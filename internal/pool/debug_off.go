//go:build !debug

package pool

type debugState struct{}

func newDebugState(string) *debugState { return nil }

func (d *debugState) recordAcquire(Object) {}

func (d *debugState) recordRelease(Object) {}

func (d *debugState) activeStacks() []string { return nil }

func (d *debugState) reset() {}
