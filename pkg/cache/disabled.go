package cache

import "context"

// disabledStore is the Store used when caching is turned off. Every read is
// a miss and every write is discarded, so callers need no special casing.
type disabledStore struct{}

var _ Store = (*disabledStore)(nil)

// NewDisabled returns a Store that never caches anything.
func NewDisabled() Store {
	return disabledStore{}
}

func (disabledStore) Get(context.Context, string) (any, bool)       { return nil, false }
func (disabledStore) Set(context.Context, string, any, Level)       {}
func (disabledStore) Delete(context.Context, string) bool           { return false }
func (disabledStore) InvalidatePattern(context.Context, string) int { return 0 }
func (disabledStore) InvalidateLevel(context.Context, Level) int    { return 0 }
func (disabledStore) Stats(context.Context) Stats {
	return Stats{CountsByLevel: make(map[Level]int)}
}
func (disabledStore) Close() {}
