package domain

import "sync"

// rwMutex is the guard every entity in this package embeds. Pulling it into
// its own type (rather than embedding sync.RWMutex directly everywhere)
// keeps the entity struct literals above free of an exported Lock/Unlock
// surface.
type rwMutex struct {
	sync.RWMutex
}
