// Package watcher notices when another process commits to a store.
//
// fsnotify watches the directory holding the store, since SQLite writes
// land in the database file and its write-ahead log. Events are debounced
// so a long index run triggers one notification after it goes quiet.
//
// Usage:
//
//	w, err := watcher.NewStoreWatcher(storePath, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	go w.Run(ctx, func(ctx context.Context) {
//	    // reopen readers
//	})
package watcher
