// Package symbolmap implements the symbol mapping collaborator described in
// the module's external-interfaces section: a pure function from a native
// BitMEX symbol to a lowercase unified symbol and its aliases, and back.
package symbolmap

import (
	"strings"
	"sync"
)

// entry is one native symbol's unified name and aliases.
type entry struct {
	unified string
	aliases []string
}

// Mapper translates between BitMEX native symbols and unified symbols.
// Construct with New; the zero value is not usable (nil maps).
type Mapper struct {
	enabled bool
	mu      sync.RWMutex
	native  map[string]entry  // native -> entry
	unified map[string]string // unified or alias -> native
}

// New creates a Mapper. When enabled is false, Native and Unified are both
// the identity function, matching "when disabled, the native symbol is
// used verbatim".
func New(enabled bool) *Mapper {
	m := &Mapper{
		enabled: enabled,
		native:  make(map[string]entry),
		unified: make(map[string]string),
	}
	for native, u := range builtinAliases {
		m.Register(native, u.unified, u.aliases...)
	}
	return m
}

// Register adds or replaces the unified name and aliases for a native
// symbol. Safe to call concurrently with lookups.
func (m *Mapper) Register(native, unified string, aliases ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	unified = strings.ToLower(unified)
	m.native[native] = entry{unified: unified, aliases: aliases}
	m.unified[unified] = native
	for _, a := range aliases {
		m.unified[strings.ToLower(a)] = native
	}
}

// Unified returns the unified symbol and alias set for a native symbol.
func (m *Mapper) Unified(native string) (unified string, aliases []string) {
	if !m.enabled {
		return native, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.native[native]; ok {
		return e.unified, e.aliases
	}
	return strings.ToLower(native), nil
}

// Native returns the native symbol for a unified symbol or one of its
// aliases.
func (m *Mapper) Native(unifiedOrAlias string) (native string, ok bool) {
	if !m.enabled {
		return unifiedOrAlias, true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.unified[strings.ToLower(unifiedOrAlias)]
	return n, ok
}

// builtinAliases seeds the common perpetual/quarterly symbols. Callers add
// more with Register as new instruments list.
var builtinAliases = map[string]struct {
	unified string
	aliases []string
}{
	"XBTUSD": {unified: "btcusdt.perp", aliases: []string{"btcusdt", "xbtusd"}},
	"ETHUSD": {unified: "ethusdt.perp", aliases: []string{"ethusdt", "ethusd"}},
	"XBTUSDT": {unified: "btcusdt.perp.usdt", aliases: []string{"btcusdt-usdt"}},
}
