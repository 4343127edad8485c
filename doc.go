/*
Package objfcn is a dlopen-like loader for ELF relocatable objects (the .o
files a C/C++ toolchain emits before static linking).

# Underwater

 1. Can load a single unlinked object file at runtime, place its allocated
    sections into an executable arena and resolve its relocations, in other
    words, objfcn is a tiny runtime linker.
 2. Object code is loaded into an executable mapping ( same as how other JIT
    solutions work ).
 3. Undefined references are resolved against the host process through a
    process-wide symbol registry, or through a caller supplied Resolver.

# Use Steps

 1. [Open] or [OpenWith] to load an object file.
 2. [Object.Lookup] or [Object.MustLookup] to fetch symbol addresses.
 3. Call [Object.Close] to release the arena.

# Notes

 1. Loading is single-threaded by contract; an [Object] may be shared between
    goroutines once loaded, but concurrent Open calls share the process-wide
    last-error buffer.
 2. [As] casts a fetched address to a pointer type for OBJECT symbols. FUNC
    addresses are directly callable only from code that follows the C calling
    convention; Go code needs an assembly or cgo shim to enter them.
 3. Only x86-64 and x86-32 relocation kinds are interpreted. Other ELF
    architectures need an extra relocation table.
 4. Full shared objects (ET_DYN), TLS, initializers and inter-module
    dependencies are out of scope. The pool subpackage layers shared-export
    loading on top for the common case.

# objtool

The objtool CLI compiles C sources into loadable objects and inspects their
sections, symbols and relocations. Install with:

	go install github.com/ZenLiuCN/objfcn/objtool@latest
*/
package objfcn
