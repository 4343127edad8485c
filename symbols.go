package objfcn

import (
	"errors"
)

var (
	// ErrNotELF occurs when the input file does not start with the ELF magic.
	ErrNotELF = errors.New("not an ELF object")
	// ErrBadObject occurs on any malformed header, section or relocation record.
	ErrBadObject = errors.New("malformed object")
	// ErrMissingSymbol occurs when MustLookup can't find a symbol.
	ErrMissingSymbol = errors.New("missing symbol")
	// ErrClosed occurs when using an Object after Close.
	ErrClosed = errors.New("object already closed")
	// ErrUnresolvedSymbol occurs when no resolver knows an undefined reference.
	ErrUnresolvedSymbol = errors.New("unresolved symbol")
	// ErrUnknownReloc occurs on a relocation kind outside the supported table.
	ErrUnknownReloc = errors.New("unknown reloc")
	// ErrBadSymbolType occurs on a relocation against an unsupported symbol type.
	ErrBadSymbolType = errors.New("unsupported relocation sym")
	// ErrArena occurs when the executable arena can't be mapped or is exhausted.
	ErrArena = errors.New("executable arena unavailable")
)

// lastError retains the text of the most recent load failure, dlopen style.
// Process-wide and not synchronized; intended for human diagnostics only.
var lastError string

func setErr(err error) error {
	lastError = err.Error()
	return err
}

// LastError returns the text of the most recent failure recorded by Open.
func LastError() string {
	return lastError
}
