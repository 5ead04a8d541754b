// Command dupcheck is the one-shot duplicate file checker.
//
// Usage:
//
//	dupcheck -within DIR [-within DIR ...]
//	dupcheck -of FILE [-of FILE ...]
//	dupcheck -of FILE -within DIR
//
// With only -within, the directories are checked together for any duplicate
// files. With only -of, each file's parent directory is checked for
// duplicates of it. With both, the directories are checked for duplicates of
// the given files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dupcheck/dupcheck/internal/dupe"
)

// multiFlag collects repeated occurrences of a string flag.
type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	var files, dirs multiFlag
	flag.Var(&files, "of", "file to check for duplicates (repeatable)")
	flag.Var(&dirs, "within", "directory to check (repeatable)")
	workers := flag.Int("workers", 0, "hash worker goroutines (0 = number of CPUs)")
	flag.Parse()

	if len(files) == 0 && len(dirs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one -of or -within path is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := dupe.DefaultConfig()
	cfg.HashWorkers = *workers
	results := dupe.New(cfg)

	var err error
	switch {
	case len(files) == 0:
		err = results.Within(ctx, dirs)
	case len(dirs) == 0:
		err = results.Of(ctx, files, nil)
	default:
		err = results.Of(ctx, files, dirs)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printResults(results)
}

func printResults(r *dupe.Results) {
	groups := r.Duplicates()

	if len(groups) == 0 {
		fmt.Println("No duplicate files found.")
	} else {
		fmt.Printf("%d duplicate files in %d groups:\n", r.FileCount(), len(groups))
		for _, g := range groups {
			fmt.Printf("\nDuplicates of %s:\n", g.Hash)
			for _, p := range g.Paths {
				fmt.Println(p)
			}
		}
	}

	if errs := r.Errors(); len(errs) > 0 {
		fmt.Printf("\n%d errors:\n", len(errs))
		for _, e := range errs {
			fmt.Println(e.Error())
		}
	}
}
