// Package watch reinstalls the response cache when the site's assets change.
//
// A Watcher reports batches of file changes under a set of directories,
// debounced so an editor's save burst arrives as one batch. A Reinstaller
// hashes the precached assets into a new cache version and, when the
// version differs, installs and activates it:
//
//	r := watch.NewReinstaller(ctrl, os.DirFS("public"), watch.DefaultPrefix, manifest)
//	w, err := watch.New(watch.Config{Paths: []string{"public"}})
//	w.OnChange(func(changes []watch.Change) {
//	    if _, err := r.Reinstall(ctx); err != nil {
//	        logger.Error("reinstall failed", "error", err)
//	    }
//	})
//	go w.Run(ctx)
package watch
