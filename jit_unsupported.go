// jit_unsupported.go - JIT stubs for platforms without a native backend.

//go:build !(amd64 && linux)

package main

func jitMapArena(size int) ([]byte, error) {
	return nil, ErrJITUnsupported
}

func jitUnmapArena(mem []byte) {}

func newBlockEmitter() (blockEmitter, error) {
	return nil, ErrJITUnsupported
}

// Execute always fails here; Compile never produces a block on an
// unsupported platform.
func (j *JITCache) Execute(blk *JitBlock, cpu *CPU) error {
	return ErrJITUnsupported
}
