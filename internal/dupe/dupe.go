// Package dupe implements the duplicate-file detection engine: it turns
// candidate file lists (given directly, or discovered by walking directories)
// into groups of byte-for-byte identical files, using file size as a cheap
// pre-filter and a SHA-256 content digest as the equality test.
package dupe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// Group is a set of two or more paths whose content shares one digest.
// Paths are kept in discovery order.
type Group struct {
	Hash  string
	Paths []string
}

// Config holds engine tuning parameters.
type Config struct {
	// HashWorkers is the number of goroutines computing digests per pass.
	// Zero or negative means runtime.NumCPU().
	HashWorkers int

	// ExcludePaths are absolute paths skipped during directory walks.
	ExcludePaths []string

	// Progress receives live counters; nil allocates a private one.
	Progress *Progress
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{HashWorkers: runtime.NumCPU()}
}

// Results accumulates duplicate groups and per-path errors across one or
// more check passes. Calling Files, Within or Of repeatedly on the same
// Results merges: a file that hashes to a digest already present joins the
// existing group, and a path already grouped is never re-hashed.
//
// Results is owned by one logical caller at a time; it is not safe for
// concurrent use.
type Results struct {
	groups  []*Group          // insertion order of first-seen digest
	byHash  map[string]*Group
	members map[string]struct{} // every path currently held by a group
	errs    []CheckError

	workers  int
	excludes map[string]struct{}
	progress *Progress
}

// New creates an empty Results with the given Config.
func New(cfg Config) *Results {
	workers := cfg.HashWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	excludes := make(map[string]struct{}, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		excludes[p] = struct{}{}
	}
	progress := cfg.Progress
	if progress == nil {
		progress = &Progress{}
	}
	return &Results{
		byHash:   make(map[string]*Group),
		members:  make(map[string]struct{}),
		workers:  workers,
		excludes: excludes,
		progress: progress,
	}
}

// Files checks the given files for duplicates among themselves.
// Paths that are not regular files are recorded as CheckErrors and the rest
// are still processed. Returns ErrNoInput when paths is empty, or the
// context error when cancelled mid-pass.
func (r *Results) Files(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return ErrNoInput
	}
	return r.check(ctx, paths)
}

// Within checks for duplicates among all files under the given directories,
// recursively. All directories are checked together; call Within once per
// directory to check them separately. Paths that are not directories are
// recorded as CheckErrors.
func (r *Results) Within(ctx context.Context, dirs []string) error {
	if len(dirs) == 0 {
		return ErrNoInput
	}

	var files []string
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			r.recordError(dir, err)
			continue
		}
		if !info.IsDir() {
			r.recordError(dir, ErrNotDir)
			continue
		}
		found, werrs := filesWithin(ctx, dir, nil, r.excludes, r.progress)
		r.recordErrors(werrs)
		files = append(files, found...)
	}

	return r.check(ctx, files)
}

// Of checks for duplicates of the given files. With dirs, every directory is
// walked filtered to the input files' sizes and the union of discovered
// files and inputs is checked together (the inputs are added explicitly in
// case no directory is an ancestor of them). With dirs == nil, each file's
// own parent directory is walked filtered to that file's size and checked
// independently. Either way a file is always compared at least against
// itself and its size-siblings.
func (r *Results) Of(ctx context.Context, files []string, dirs []string) error {
	if len(files) == 0 {
		return ErrNoInput
	}

	type sizedFile struct {
		path string
		size int64
	}
	var valid []sizedFile
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			r.recordError(f, err)
			continue
		}
		if !info.Mode().IsRegular() {
			r.recordError(f, ErrNotFile)
			continue
		}
		valid = append(valid, sizedFile{path: f, size: info.Size()})
	}

	if dirs == nil {
		// Parent mode: one independent pass per input file, scoped to its
		// size-siblings.
		for _, sf := range valid {
			sizes := map[int64]struct{}{sf.size: {}}
			found, werrs := filesWithin(ctx, filepath.Dir(sf.path), sizes, r.excludes, r.progress)
			r.recordErrors(werrs)
			if err := r.check(ctx, found); err != nil {
				return err
			}
		}
		return nil
	}

	sizes := make(map[int64]struct{}, len(valid))
	for _, sf := range valid {
		sizes[sf.size] = struct{}{}
	}

	var candidates []string
	walked := make(map[string]struct{})
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			r.recordError(dir, err)
			continue
		}
		if !info.IsDir() {
			r.recordError(dir, ErrNotDir)
			continue
		}
		found, werrs := filesWithin(ctx, dir, sizes, r.excludes, r.progress)
		r.recordErrors(werrs)
		for _, p := range found {
			candidates = append(candidates, p)
			walked[p] = struct{}{}
		}
	}

	for _, sf := range valid {
		if _, ok := walked[sf.path]; !ok {
			candidates = append(candidates, sf.path)
		}
	}

	return r.check(ctx, candidates)
}

// Duplicates returns a snapshot of the duplicate groups, in insertion order
// of first-seen digest. Every group has at least two paths.
func (r *Results) Duplicates() []Group {
	out := make([]Group, len(r.groups))
	for i, g := range r.groups {
		out[i] = Group{Hash: g.Hash, Paths: append([]string(nil), g.Paths...)}
	}
	return out
}

// Errors returns the recorded CheckErrors in the order they occurred.
func (r *Results) Errors() []CheckError {
	return append([]CheckError(nil), r.errs...)
}

// FileCount returns the total number of paths across all duplicate groups.
func (r *Results) FileCount() int {
	total := 0
	for _, g := range r.groups {
		total += len(g.Paths)
	}
	return total
}

// Progress returns the live counters for this Results.
func (r *Results) Progress() *Progress { return r.progress }

// check runs one grouping pass: validate and stat every candidate, bucket by
// exact byte length, hash only buckets with two or more members, then prune
// groups that ended the pass with fewer than two paths.
func (r *Results) check(ctx context.Context, files []string) error {
	defer r.prune()

	type bucket struct {
		size  int64
		paths []string
	}
	index := make(map[int64]int, len(files))
	var buckets []bucket // first-seen size order, for deterministic groups

	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			r.recordError(path, err)
			continue
		}
		if !info.Mode().IsRegular() {
			r.recordError(path, ErrNotFile)
			continue
		}
		size := info.Size()
		i, ok := index[size]
		if !ok {
			i = len(buckets)
			index[size] = i
			buckets = append(buckets, bucket{size: size})
		}
		buckets[i].paths = append(buckets[i].paths, path)
	}

	// Files with a size unique among the candidates cannot have a content
	// match; they are pruned here without ever being hashed.
	merge := len(r.byHash) > 0
	for _, b := range buckets {
		if len(b.paths) < 2 {
			continue
		}
		if err := r.checkBucket(ctx, b.size, b.paths, merge); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// checkBucket hashes the members of one size bucket and folds them into
// groups. Bucketing and folding are serialized; only digest computation runs
// on the worker pool, so the at-most-once-per-path and merge invariants hold.
func (r *Results) checkBucket(ctx context.Context, size int64, paths []string, merge bool) error {
	// Skip paths already grouped by an earlier pass, and repeat occurrences
	// of the same path within this pass.
	queued := make(map[string]struct{}, len(paths))
	var cands []string
	for _, p := range paths {
		if _, ok := r.members[p]; ok {
			continue
		}
		if _, ok := queued[p]; ok {
			continue
		}
		queued[p] = struct{}{}
		cands = append(cands, p)
	}
	if len(cands) == 0 {
		return ctx.Err()
	}
	r.progress.Candidates.Add(int64(len(cands)))

	// Large buckets are subdivided by a cheap prefix digest first, so files
	// that differ early are never fully read. A merge pass skips this:
	// existing groups carry no partial digest to match against, and dropping
	// a lone candidate could lose a legitimate join with a prior group.
	subs := [][]string{cands}
	if !merge && size > partialBytes && len(cands) >= 2 {
		subs = r.partialSplit(ctx, cands)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	for _, sub := range subs {
		digests, errs := hashAll(ctx, r.workers, sub, func(p string) (string, error) {
			return digestFile(p, r.progress)
		})
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, path := range sub {
			if errs[i] != nil {
				r.recordError(path, errs[i])
				continue
			}
			r.place(digests[i], path)
		}
	}
	return nil
}

// partialSplit subdivides candidates by the digest of their first
// partialBytes and keeps only sub-buckets that can still contain a match.
func (r *Results) partialSplit(ctx context.Context, paths []string) [][]string {
	partials, errs := hashAll(ctx, r.workers, paths, func(p string) (uint64, error) {
		return partialDigest(p, r.progress)
	})
	if ctx.Err() != nil {
		return nil
	}

	index := make(map[uint64]int, len(paths))
	var subs [][]string
	for i, p := range paths {
		if errs[i] != nil {
			r.recordError(p, errs[i])
			continue
		}
		j, ok := index[partials[i]]
		if !ok {
			j = len(subs)
			index[partials[i]] = j
			subs = append(subs, nil)
		}
		subs[j] = append(subs[j], p)
	}

	kept := subs[:0]
	for _, sub := range subs {
		if len(sub) >= 2 {
			kept = append(kept, sub)
		}
	}
	return kept
}

// place appends path to the group for digest, creating the group when the
// digest is new.
func (r *Results) place(digest, path string) {
	if g, ok := r.byHash[digest]; ok {
		g.Paths = append(g.Paths, path)
	} else {
		g := &Group{Hash: digest, Paths: []string{path}}
		r.byHash[digest] = g
		r.groups = append(r.groups, g)
	}
	r.members[path] = struct{}{}
}

// prune removes groups with fewer than two paths so that externally visible
// groups always hold at least two members. Runs after every pass.
func (r *Results) prune() {
	kept := r.groups[:0]
	for _, g := range r.groups {
		if len(g.Paths) >= 2 {
			kept = append(kept, g)
			continue
		}
		delete(r.byHash, g.Hash)
		for _, p := range g.Paths {
			delete(r.members, p)
		}
	}
	for i := len(kept); i < len(r.groups); i++ {
		r.groups[i] = nil
	}
	r.groups = kept
}

// recordError appends one CheckError.
func (r *Results) recordError(path string, err error) {
	r.errs = append(r.errs, CheckError{Path: path, Err: err})
	r.progress.Errors.Add(1)
}

// recordErrors appends CheckErrors produced by a directory walk.
func (r *Results) recordErrors(cerrs []CheckError) {
	r.errs = append(r.errs, cerrs...)
	r.progress.Errors.Add(int64(len(cerrs)))
}

// hashAll computes fn over paths on a bounded worker pool, preserving input
// order in the returned slices. When ctx is cancelled, unfed entries are left
// at their zero value; callers must check ctx.Err() before using the results.
func hashAll[T any](ctx context.Context, workers int, paths []string, fn func(string) (T, error)) ([]T, []error) {
	out := make([]T, len(paths))
	errs := make([]error, len(paths))

	if workers > len(paths) {
		workers = len(paths)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i], errs[i] = fn(paths[i])
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return out, errs
}
