package dupe

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// filesWithin enumerates every regular file under root, recursing into
// subdirectories unconditionally. When sizes is non-nil, only files whose
// byte length is in the set are yielded; the filter never affects the
// decision to descend. Symlinks and special files are skipped entirely, so
// symlinked directories are never followed and the walk cannot loop.
//
// A directory that cannot be read, or an entry that cannot be stat-ed,
// produces one CheckError and that branch is abandoned; the rest of the walk
// continues. filesWithin itself never fails; a cancelled ctx stops the walk
// early with whatever was accumulated.
func filesWithin(ctx context.Context, root string, sizes map[int64]struct{}, excludes map[string]struct{}, progress *Progress) ([]string, []CheckError) {
	var (
		files []string
		cerrs []CheckError
	)
	queue := []string{root}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			break
		}

		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			cerrs = append(cerrs, CheckError{Path: dir, Err: err})
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			if _, excluded := excludes[path]; excluded {
				continue
			}

			if entry.IsDir() {
				queue = append(queue, path)
				continue
			}

			// DirEntry.Type comes from lstat, so a symlink to a directory
			// reports ModeSymlink here rather than IsDir above.
			if entry.Type()&fs.ModeSymlink != 0 {
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				cerrs = append(cerrs, CheckError{Path: path, Err: err})
				continue
			}

			if sizes != nil {
				if _, ok := sizes[info.Size()]; !ok {
					continue
				}
			}

			progress.FilesDiscovered.Add(1)
			files = append(files, path)
		}
	}

	return files, cerrs
}
