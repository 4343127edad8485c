// Package pool layers shared-export loading on top of objfcn: objects loaded
// into one Pool resolve their undefined references against the host registry
// and against the exports of every object loaded before them.
package pool

import (
	"errors"
	"slices"
	"sync"

	"github.com/ZenLiuCN/objfcn"
)

type Pool struct {
	Table   map[string]uintptr
	Modules map[string]objfcn.Object
	Loaded  []string
	sync.RWMutex
}

var (
	ErrAlreadyLoad   = errors.New("object already loaded")
	ErrNotLoad       = errors.New("object not loaded")
	ErrMissingObject = errors.New("object not found in pool")
)

// NewPool create a new pool seeded with the process registry
func NewPool() *Pool {
	return &Pool{
		Table:   objfcn.Registry(),
		Modules: make(map[string]objfcn.Object),
	}
}

// RegisterLibrary add a shared object's dynamic symbols to the process
// registry and refresh this pool's table with the additions.
func (p *Pool) RegisterLibrary(path string) error {
	p.Lock()
	defer p.Unlock()
	if err := objfcn.RegisterLibrary(path); err != nil {
		return err
	}
	for name, addr := range objfcn.Registry() {
		if _, ok := p.Table[name]; !ok {
			p.Table[name] = addr
		}
	}
	return nil
}

// RegisterSymbol add one name to this pool's resolution scope only.
func (p *Pool) RegisterSymbol(name string, addr uintptr) {
	p.Lock()
	defer p.Unlock()
	p.Table[name] = addr
}

// resolve runs under the pool lock held by Load/Reload.
func (p *Pool) resolve(name string) (uintptr, bool) {
	addr, ok := p.Table[name]
	return addr, ok
}

// Load an object file into the pool and publish its exports for objects
// loaded after it.
func (p *Pool) Load(file string) (err error) {
	p.Lock()
	defer p.Unlock()
	return p.load(file)
}

func (p *Pool) load(file string) (err error) {
	if _, ok := p.Modules[file]; ok {
		return ErrAlreadyLoad
	}
	o, err := objfcn.OpenWith(file, 0, p.resolve)
	if err != nil {
		return
	}
	p.Modules[file] = o
	p.Loaded = append(p.Loaded, file)
	p.register(o)
	return
}

func (p *Pool) register(o objfcn.Object) {
	for _, name := range o.Exports() {
		if _, ok := p.Table[name]; ok {
			continue
		}
		if s, ok := o.Lookup(name); ok {
			p.Table[name] = uintptr(s)
		}
	}
}

func (p *Pool) unregister(o objfcn.Object) {
	for _, name := range o.Exports() {
		if s, ok := o.Lookup(name); ok {
			if addr, found := p.Table[name]; found && addr == uintptr(s) {
				delete(p.Table, name)
			}
		}
	}
}

// Reload closes an object plus everything loaded after it (which may depend
// on its exports), then loads it fresh. Later objects are not reloaded.
func (p *Pool) Reload(file string) (err error) {
	p.Lock()
	defer p.Unlock()
	i := slices.Index(p.Loaded, file)
	if i < 0 {
		return ErrNotLoad
	}
	for j := len(p.Loaded) - 1; j >= i; j-- {
		f := p.Loaded[j]
		o := p.Modules[f]
		p.unregister(o)
		_ = o.Close()
		delete(p.Modules, f)
	}
	p.Loaded = p.Loaded[:i]
	return p.load(file)
}

// Require fetch an exported symbol of a loaded object
func (p *Pool) Require(file, name string) objfcn.Sym {
	p.RLock()
	defer p.RUnlock()
	if o, ok := p.Modules[file]; ok {
		return o.MustLookup(name)
	}
	panic(ErrMissingObject)
}

// CloseAll release every loaded object in reverse load order.
func (p *Pool) CloseAll() {
	p.Lock()
	defer p.Unlock()
	for j := len(p.Loaded) - 1; j >= 0; j-- {
		f := p.Loaded[j]
		o := p.Modules[f]
		p.unregister(o)
		_ = o.Close()
		delete(p.Modules, f)
	}
	p.Loaded = p.Loaded[:0]
}
