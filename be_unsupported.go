//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package main

// VireCore stores guest memory and the JIT register dump in host byte
// order and assumes it is little-endian, matching the guest.
var _ = "VireCore requires a little-endian architecture" + 1
