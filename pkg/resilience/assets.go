package resilience

import (
	"context"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/chunk"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

type assetCRUD = crud[resource.AssetWrite, resource.Asset, resource.AssetUpdate]

func (e *Engine) assets() assetCRUD {
	return assetCRUD{
		kind:       resource.KindAsset,
		endpoint:   e.api.Assets(),
		rules:      sanitize.AssetRules,
		limit:      sanitize.AssetsPerRequest,
		writeID:    resource.AssetWrite.Identity,
		readID:     resource.Asset.Identity,
		internalID: func(a resource.Asset) int64 { return a.ID },
		updateID:   func(u resource.AssetUpdate) identity.Identity { return u.Identity },
		refs:       assetRefs,
		updateRefs: assetUpdateRefs,
		diff: func(existing resource.Asset, desired resource.AssetWrite, opts resource.UpdateOptions) (resource.AssetUpdate, bool) {
			p, changed := resource.DiffAsset(existing, desired, opts)
			return resource.AssetUpdate{Identity: identity.FromID(existing.ID), Update: p}, changed
		},
		resolveCreate: resolveAssetParents,
		resolveUpdate: resolveAssetHierarchy,
		levels: func(items []resource.AssetWrite) [][]resource.AssetWrite {
			return chunk.Levels(items,
				func(a resource.AssetWrite) string { return a.ExternalID },
				func(a resource.AssetWrite) string { return a.ParentExternalID })
		},
	}
}

// GetOrCreateAssets returns the assets with the given external ids, creating
// the ones that do not exist with build. build is called once per chunk
// with the missing external ids. Results follow the order of externalIDs.
func (e *Engine) GetOrCreateAssets(ctx context.Context, externalIDs []string, build func([]string) ([]resource.AssetWrite, error), opts WriteOptions) (result.Result[resource.Asset, resource.AssetWrite], error) {
	return getOrCreate(ctx, e, e.assets(), externalIDs, build, opts)
}

// EnsureAssetsExist creates items. Parents are created before their
// children: each hierarchy level is written after the previous one
// completes.
func (e *Engine) EnsureAssetsExist(ctx context.Context, items []resource.AssetWrite, opts WriteOptions) (result.Result[resource.Asset, resource.AssetWrite], error) {
	return ensure(ctx, e, e.assets(), items, opts)
}

// UpsertAssets creates items and updates the assets that already exist.
// Results follow the order of items.
func (e *Engine) UpsertAssets(ctx context.Context, items []resource.AssetWrite, opts WriteOptions, upd resource.UpdateOptions) (result.Result[resource.Asset, resource.AssetWrite], error) {
	return upsert(ctx, e, e.assets(), items, opts, upd)
}

func assetRefs(a resource.AssetWrite, res result.ResourceType) []identity.Identity {
	switch res {
	case result.ResourceExternalID:
		return externalIDRef(a.ExternalID)
	case result.ResourceParentExternalID:
		return externalIDRef(a.ParentExternalID)
	case result.ResourceParentID:
		return idRef(a.ParentID)
	case result.ResourceDataSetID:
		return idRef(a.DataSetID)
	case result.ResourceLabels:
		return labelRefs(a.Labels)
	}
	return nil
}

func assetUpdateRefs(u resource.AssetUpdate, res result.ResourceType) []identity.Identity {
	p := u.Update
	switch res {
	case result.ResourceID, result.ResourceExternalID, result.ResourceInstanceID:
		return []identity.Identity{u.Identity}
	case result.ResourceParentExternalID:
		if p.ParentExternalID != nil && p.ParentExternalID.Set != nil {
			return externalIDRef(*p.ParentExternalID.Set)
		}
	case result.ResourceParentID:
		if p.ParentID != nil {
			return idRef(p.ParentID.Set)
		}
	case result.ResourceDataSetID:
		if p.DataSetID != nil {
			return idRef(p.DataSetID.Set)
		}
	case result.ResourceLabels:
		if p.Labels != nil {
			return labelRefs(p.Labels.Add)
		}
	}
	return nil
}

func labelRefs(labels []resource.Label) []identity.Identity {
	out := make([]identity.Identity, 0, len(labels))
	for _, l := range labels {
		out = append(out, identity.FromExternalID(l.ExternalID))
	}
	return out
}

// parentRef returns the parent an asset write refers to, or the zero
// Identity.
func parentRef(a resource.AssetWrite) identity.Identity {
	if a.ParentExternalID != "" {
		return identity.FromExternalID(a.ParentExternalID)
	}
	if a.ParentID != nil && *a.ParentID > 0 {
		return identity.FromID(*a.ParentID)
	}
	return identity.Identity{}
}

// resolveAssetParents handles parent errors without a missing list by
// fetching the referenced parents. Assets whose parent is neither on the
// server nor part of the same request are implicated. Data set and label
// errors go through resolveReferences.
func resolveAssetParents(e *Engine, c assetCRUD) resolver[resource.AssetWrite] {
	references := resolveReferences(e, assetRefs)
	return func(ctx context.Context, ce *result.CogniteError[resource.AssetWrite], items []resource.AssetWrite) (matcher[resource.AssetWrite], error) {
		if ce.Resource != result.ResourceParentExternalID && ce.Resource != result.ResourceParentID {
			return references(ctx, ce, items)
		}

		inRequest := identity.NewSet()
		for _, a := range items {
			if a.ExternalID != "" {
				inRequest.Add(identity.FromExternalID(a.ExternalID))
			}
		}
		parents := identity.NewSet()
		for _, a := range items {
			if p := parentRef(a); !p.IsZero() && !inRequest.Contains(p) {
				parents.Add(p)
			}
		}

		found, err := c.retrieve(ctx, e, parents.Items())
		if err != nil {
			return nil, err
		}
		missing := identity.NewSet()
		for _, p := range parents.Items() {
			if _, ok := found[p]; !ok {
				missing.Add(p)
			}
		}
		ce.Values = missing.Items()

		return func(a resource.AssetWrite) bool {
			return missing.Contains(parentRef(a))
		}, nil
	}
}

// resolveAssetHierarchy handles update errors on parents without a missing
// list. It fetches the updated assets and their new parents: a move to a
// parent that does not exist is implicated, and for hierarchy violations
// so is a move to a parent under a different root.
func resolveAssetHierarchy(e *Engine, c assetCRUD) resolver[resource.AssetUpdate] {
	references := resolveReferences(e, assetUpdateRefs)
	return func(ctx context.Context, ce *result.CogniteError[resource.AssetUpdate], items []resource.AssetUpdate) (matcher[resource.AssetUpdate], error) {
		if ce.Resource != result.ResourceParentExternalID && ce.Resource != result.ResourceParentID {
			return references(ctx, ce, items)
		}

		newParent := func(u resource.AssetUpdate) identity.Identity {
			if refs := assetUpdateRefs(u, result.ResourceParentExternalID); len(refs) > 0 {
				return refs[0]
			}
			if refs := assetUpdateRefs(u, result.ResourceParentID); len(refs) > 0 {
				return refs[0]
			}
			return identity.Identity{}
		}

		ids := identity.NewSet()
		for _, u := range items {
			if p := newParent(u); !p.IsZero() {
				ids.Add(u.Identity, p)
			}
		}
		found, err := c.retrieve(ctx, e, ids.Items())
		if err != nil {
			return nil, err
		}

		checkRoots := ce.Kind == result.KindIllegalItem
		implicated := func(u resource.AssetUpdate) bool {
			p := newParent(u)
			if p.IsZero() {
				return false
			}
			parent, ok := found[p]
			if !ok {
				return true
			}
			if !checkRoots {
				return false
			}
			current, ok := found[u.Identity]
			return ok && current.RootID != parent.RootID
		}

		values := identity.NewSet()
		for _, u := range items {
			if implicated(u) {
				values.Add(u.Identity)
			}
		}
		ce.Values = values.Items()
		return implicated, nil
	}
}
