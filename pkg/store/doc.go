// Package store holds the application state tree of the homepage client.
//
// The tree has four subtrees: user, app, ui and cache. It is always fully
// populated; updates are typed patches merged into it field by field:
//
//	st := store.New(bus, storage)
//
//	st.SetState(store.Patch{
//	    App: &store.AppPatch{Theme: store.Set(store.ThemeDark)},
//	})
//
//	st.Get("app.theme").String()    // "dark"
//	st.Get("app.language").String() // unchanged
//
// After every update the store writes the durable part of the tree (user, app
// and ui without notifications) to its kv.Storage, then emits
// events.AppStateChange and calls its direct subscribers. Persistence failures
// are logged by the storage adapter and never interrupt the update.
//
// On construction the persisted snapshot is decoded over the default state,
// so fields added to the defaults after a snapshot was written keep their
// default values.
//
// One Store is created per client session and handed to the components that
// read or mutate state. Mutations are serialized, and every notification is
// queued in mutation order. The goroutine that finds the queue idle delivers
// it, including notifications queued meanwhile by other goroutines, so the
// last notification subscribers see always carries the stored state.
//
// A subscriber may itself call SetState. The nested update is merged and
// persisted at once; its notification is delivered after the current one
// has reached every subscriber, before the outermost call returns. Such
// chains must terminate on their own.
package store
