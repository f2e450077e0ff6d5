//go:build !amd64 && !arm64

package ilo

// No native code generator is wired in for this architecture. jitEmit and
// nativeTrampoline stay nil, so CompileJIT always reports the chunk
// ineligible and every call runs through the VM — the same fallback path
// a lowering failure takes on amd64 or arm64.
func init() {}
