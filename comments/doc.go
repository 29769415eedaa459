// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package comments provides a comment section for Gemini capsules.
//
// A [Store] keeps a bounded, insertion ordered list of comments in memory.
// A [Module] attaches the store to a [gemini.Router]: clients post a comment
// by requesting "/api/post-comment?<percent-encoded text>" and every
// text/gemini document gets a footer listing the stored comments.
//
//	store := comments.NewStore(comments.WithCapacity(100))
//
//	r := gemini.NewRouter()
//	r.Attach(comments.NewModule(store))
//
// The store is the only shared state; the capacity may be changed at any
// time with [Store.SetCapacity] and the comments read with [Store.Snapshot].
// Nothing is persisted across restarts.
package comments
