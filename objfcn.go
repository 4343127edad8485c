package objfcn

import (
	"fmt"
	"os"
	"reflect"
	"unsafe"
)

type (
	//Sym is the absolute address of a loaded symbol.
	Sym uintptr
	//Resolver maps an undefined symbol name to an address already present in
	//the host process. The default resolver consults the process registry, see
	//RegisterLibrary and RegisterSymbol.
	Resolver func(name string) (uintptr, bool)

	//Object is a loaded relocatable module, this interface can not be implement outside this package.
	//
	//Use Steps:
	//
	//	1. Open or OpenWith to load an object file.
	//	2. Lookup or MustLookup the exported addresses.
	//	3. Call [Object.Close] to release the resources.
	//
	//Note:
	//
	//	1. Addresses fetched from an Object are invalid after Close; the loader
	//	   does not validate calls into released code.
	//	2. Object itself can be used safe between goroutines once loaded, but
	//	   concurrent loads share the last-error buffer.
	Object interface {
		Lookup(name string) (u Sym, ok bool) //fetch a symbol address by exact name
		MustLookup(name string) (u Sym)      //fetch a symbol address, throws ErrClosed or ErrMissingSymbol
		Exports() []string                   //names of all indexed symbols
		Protect() error                      //drop write permission from the arena (W^X), irreversible
		Close() error                        //release the arena and the symbol index
		internal()
	}
	entry struct {
		name string
		addr uintptr
	}
	object struct {
		path    string
		arena   *arena
		index   []entry
		resolve Resolver
		debug   bool
	}
)

// Open loads the relocatable object at path. flags is reserved and currently
// ignored. On failure the returned error is also retrievable as LastError.
func Open(path string, flags int) (Object, error) {
	return OpenWith(path, flags, hostResolve)
}

// OpenWith loads an object resolving undefined references through resolve (a
// nil resolver falls back to the process registry), an optional debug
// parameter will enable debug logging for this load.
func OpenWith(path string, flags int, resolve Resolver, debug ...bool) (Object, error) {
	if resolve == nil {
		resolve = hostResolve
	}
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, setErr(fmt.Errorf("read %s: %w", path, err))
	}
	o := &object{
		path:    path,
		resolve: resolve,
		debug:   len(debug) > 0 && debug[0],
	}
	if err = o.load(bin); err != nil {
		o.release()
		return nil, setErr(fmt.Errorf("load %s: %w", path, err))
	}
	return o, nil
}

func (o *object) internal() {}

func (o *object) Lookup(name string) (u Sym, ok bool) {
	for i := range o.index {
		if o.index[i].name == name {
			return Sym(o.index[i].addr), true
		}
	}
	return 0, false
}

func (o *object) MustLookup(name string) Sym {
	if o.arena == nil {
		panic(ErrClosed)
	}
	u, ok := o.Lookup(name)
	if !ok {
		panic(ErrMissingSymbol)
	}
	return u
}

func (o *object) Exports() []string {
	v := make([]string, len(o.index))
	for i := range o.index {
		v[i] = o.index[i].name
	}
	return v
}

func (o *object) Protect() error {
	if o.arena == nil {
		return ErrClosed
	}
	return o.arena.protect()
}

func (o *object) Close() error {
	if o.arena == nil {
		return ErrClosed
	}
	err := o.arena.release()
	o.arena = nil
	o.index = nil
	return err
}

// release frees whatever a failed load acquired. Tolerates partial state.
func (o *object) release() {
	if o.arena != nil {
		_ = o.arena.release()
		o.arena = nil
	}
	o.index = nil
}

// As reinterprets a fetched address as T. For OBJECT symbols use a pointer
// type: As[*int32](sym) points at the loaded data. For FUNC symbols the
// resulting func value enters the code with the Go calling convention, which
// only suits assembly or ABI-compatible stubs.
func As[T any](s Sym) (x T) {
	if reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Func {
		// a func value points at a word holding the entry address
		entry := new(uintptr)
		*entry = uintptr(s)
		px := (*T)(unsafe.Pointer(&entry))
		x = *px
		return
	}
	px := (*T)(unsafe.Pointer(&s))
	x = *px
	return
}

// Use create a function to fetch and use a symbol on the fly
func Use[T any](obj Object, name string) func(func(t T, err error)) {
	return func(f func(t T, err error)) {
		var x T
		defer func() {
			switch y := recover().(type) {
			case nil:
				f(x, nil)
			case error:
				f(x, y)
			default:
				f(x, fmt.Errorf("%v", y))
			}
		}()
		x = As[T](obj.MustLookup(name))
	}
}
