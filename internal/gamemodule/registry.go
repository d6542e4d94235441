package gamemodule

import (
	"github.com/cespare/xxhash/v2"
)

type gameKey uint64

func makeGameKey(gameTypeID string) gameKey {
	return gameKey(xxhash.Sum64String(gameTypeID))
}

// Registry holds registered game module templates, indexed by game type id.
// Both peers carry one: the server to instantiate sessions, the client to
// interpret server-pushed state. Not safe for concurrent use; callers hold
// their own lock.
type Registry struct {
	games map[gameKey]GameModule
}

func NewRegistry() *Registry {
	return &Registry{games: make(map[gameKey]GameModule)}
}

// Register stores template as the factory for its game type id. A second
// registration of the same id replaces the first.
func (r *Registry) Register(template GameModule) {
	r.games[makeGameKey(template.Metadata().GameTypeID())] = template
}

// Lookup returns the registered template for gameTypeID, or nil.
func (r *Registry) Lookup(gameTypeID string) GameModule {
	return r.games[makeGameKey(gameTypeID)]
}

// GameTypeIDs returns the ids of every registered game.
func (r *Registry) GameTypeIDs() []string {
	ids := make([]string, 0, len(r.games))
	for _, g := range r.games {
		ids = append(ids, g.Metadata().GameTypeID())
	}
	return ids
}

func (r *Registry) Len() int {
	return len(r.games)
}
