package clouddrive

import (
	"context"
	"sort"
)

// Mirror walks a remote subtree through a Client and produces flattened
// snapshots for directory-structure synchronization.
type Mirror struct {
	client Client
}

// NewMirror builds a mirror over the given client.
func NewMirror(client Client) *Mirror {
	return &Mirror{client: client}
}

// Walk visits every item under root depth-first, each directory before its
// children. Stops at the first error from the client or from fn.
func (m *Mirror) Walk(ctx context.Context, root string, fn func(FileItem) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	items, err := m.client.GetSubFiles(ctx, root)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := fn(item); err != nil {
			return err
		}
		if item.IsDir {
			if err := m.Walk(ctx, item.Path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Snapshot flattens the subtree under root into a path-keyed map.
func (m *Mirror) Snapshot(ctx context.Context, root string) (map[string]FileItem, error) {
	snap := make(map[string]FileItem)
	err := m.Walk(ctx, root, func(item FileItem) error {
		snap[item.Path] = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// DiffOpKind classifies one structure-sync operation.
type DiffOpKind string

const (
	OpCreate  DiffOpKind = "create"
	OpDelete  DiffOpKind = "delete"
	OpReplace DiffOpKind = "replace"
)

// DiffOp is one operation needed to make a target tree's structure match a
// source tree.
type DiffOp struct {
	Kind DiffOpKind
	Item FileItem
}

// Diff compares two path-keyed snapshots and returns the operations that
// bring target's structure in line with source. Creates are ordered parents
// first, deletes children first, so the result can be applied sequentially.
func Diff(source, target map[string]FileItem) []DiffOp {
	var creates, deletes, replaces []DiffOp
	for path, item := range source {
		existing, ok := target[path]
		switch {
		case !ok:
			creates = append(creates, DiffOp{Kind: OpCreate, Item: item})
		case existing.IsDir != item.IsDir:
			replaces = append(replaces, DiffOp{Kind: OpReplace, Item: item})
		}
	}
	for path, item := range target {
		if _, ok := source[path]; !ok {
			deletes = append(deletes, DiffOp{Kind: OpDelete, Item: item})
		}
	}

	sort.Slice(creates, func(i, j int) bool { return creates[i].Item.Path < creates[j].Item.Path })
	sort.Slice(replaces, func(i, j int) bool { return replaces[i].Item.Path < replaces[j].Item.Path })
	sort.Slice(deletes, func(i, j int) bool { return deletes[i].Item.Path > deletes[j].Item.Path })

	ops := make([]DiffOp, 0, len(creates)+len(replaces)+len(deletes))
	ops = append(ops, deletes...)
	ops = append(ops, replaces...)
	ops = append(ops, creates...)
	return ops
}
