// Inspect an sbtree storage file.
// Usage: go run ./cmd/sbtreeinspect -page-size 512 -key-size 4 -data-size 12 -root <id> -levels <n> <path>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"sbtree/sbtree"
)

func main() {
	pageSize := flag.Int("page-size", 512, "page size in bytes")
	keySize := flag.Int("key-size", 4, "key size in bytes")
	dataSize := flag.Int("data-size", 12, "value size in bytes")
	rootID := flag.Uint("root", 0, "persisted root page id")
	levels := flag.Int("levels", 0, "persisted tree depth including the leaf level")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s -levels N -root ID [-page-size N -key-size N -data-size N] <path>\n", os.Args[0])
		os.Exit(1)
	}
	if *levels < 1 {
		log.Fatal("sbtreeinspect: -levels is required and must be >= 1")
	}

	path := flag.Arg(0)
	storage, err := sbtree.OpenFileStorage(path, *pageSize)
	if err != nil {
		log.Fatalf("sbtreeinspect: %v", err)
	}
	defer storage.Close()

	tree, err := sbtree.Open(storage, sbtree.Config{
		PageSize:     *pageSize,
		KeySize:      *keySize,
		DataSize:     *dataSize,
		Frames:       8,
		ResumeRootID: uint32(*rootID),
		ResumeLevels: *levels,
	})
	if err != nil {
		log.Fatalf("sbtreeinspect: %v", err)
	}
	defer tree.Close()

	if err := tree.Dump(); err != nil {
		log.Fatalf("sbtreeinspect: %v", err)
	}
}
