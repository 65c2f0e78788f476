// Package indexer runs the document indexing pipeline over one root directory.
//
// A run enumerates the root, extracts text from each selected file through an
// extract.Dispatcher and writes the result to storage. Run metadata goes
// through a tracker.Tracker.
//
// # Basic Usage
//
//	root, err := indexer.OpenRoot("/home/me/Documents")
//	if err != nil {
//	    return err // wraps indexer.ErrRootUnavailable
//	}
//
//	idx := indexer.New(store, indexer.WithLogger(logger))
//	stats, err := idx.Run(ctx, root, []string{"txt", "pdf"}, func(done, total int) {
//	    fmt.Printf("\r%d/%d", done, total)
//	})
//
// Or in the background with a progress channel:
//
//	task, err := idx.Start(ctx, root, nil)
//	if errors.Is(err, indexer.ErrIndexingInProgress) {
//	    // another run holds the indexer
//	}
//	for p := range task.Progress() {
//	    log.Printf("%s %d/%d %s", p.Phase, p.Processed, p.Total, p.File)
//	}
//	stats, err := task.Wait()
//
// # Pipeline
//
//  1. Enumerating: walk the root in lexical order and keep files whose
//     extension is in the normalized allow-list (all files when it is empty)
//  2. Processing: for each file record a scanned row, extract its text and
//     store the content and file metadata in one transaction
//  3. Finalizing: mark the run complete with its counts and the store size
//
// Progress is reported as (0, N) before the first file and once after every
// file, so processed rises by exactly one per file.
//
// # Failures
//
// A file that cannot be read or parsed is recorded as an error row labelled
// by Classify and the run continues. Only an unusable root stops a run
// before it starts; in that case nothing is written and no progress is
// reported. Cancelling ctx stops a run between files and leaves its row in
// progress, the same state a crash leaves behind.
//
// # Run Identity
//
// Runs are keyed by Root.RunPath: the root relative to the user's home
// directory when it lies beneath it, otherwise its absolute path. Re-running
// the same root overwrites its row and replaces the content of every file
// it indexes again.
package indexer
