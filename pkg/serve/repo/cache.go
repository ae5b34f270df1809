// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"errors"
	"fmt"
	"time"

	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/dgraph-io/ristretto/v2"
)

// MetaCache holds immutable per-commit metadata. Commits and schemas are
// content-addressed so entries never need invalidation; table metadata is
// derived and kept on a TTL.
type MetaCache interface {
	Commit(commitID string) (*database.Commit, bool)
	Schema(commitID string) (*database.SchemaDefinition, bool)
	Metadata(commitID string) (map[string]*database.TableMetadata, bool)
	Store(commitID string, a any) error
	Close()
}

type metaCache struct {
	*ristretto.Cache[string, any]
}

func NewMetaCache(numCounters int64, maxCost int64, bufferItems int64) (MetaCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: numCounters,
		MaxCost:     maxCost << 20,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("unable initialize memory cache, error: %w", err)
	}
	return &metaCache{Cache: c}, nil
}

func (d *metaCache) Commit(commitID string) (*database.Commit, bool) {
	if o, ok := d.Get("commit/" + commitID); ok {
		if c, ok := o.(*database.Commit); ok {
			return c, true
		}
	}
	return nil, false
}

func (d *metaCache) Schema(commitID string) (*database.SchemaDefinition, bool) {
	if o, ok := d.Get("schema/" + commitID); ok {
		if s, ok := o.(*database.SchemaDefinition); ok {
			return s, true
		}
	}
	return nil, false
}

func (d *metaCache) Metadata(commitID string) (map[string]*database.TableMetadata, bool) {
	if o, ok := d.Get("meta/" + commitID); ok {
		if m, ok := o.(map[string]*database.TableMetadata); ok {
			return m, true
		}
	}
	return nil, false
}

var (
	ErrUncacheableObject = errors.New("uncacheable object")
)

func (d *metaCache) Store(commitID string, a any) error {
	switch v := a.(type) {
	case *database.Commit:
		_ = d.Set("commit/"+commitID, v, 1)
	case *database.SchemaDefinition:
		_ = d.Set("schema/"+commitID, v, 1)
	case map[string]*database.TableMetadata:
		d.SetWithTTL("meta/"+commitID, v, 1, time.Hour)
	default:
		return ErrUncacheableObject
	}
	return nil
}

// nopCache satisfies MetaCache when caching is disabled.
type nopCache struct{}

func NewNopCache() MetaCache { return &nopCache{} }

func (nopCache) Commit(string) (*database.Commit, bool)                     { return nil, false }
func (nopCache) Schema(string) (*database.SchemaDefinition, bool)           { return nil, false }
func (nopCache) Metadata(string) (map[string]*database.TableMetadata, bool) { return nil, false }
func (nopCache) Store(string, any) error                                    { return nil }
func (nopCache) Close()                                                     {}
