// sbtreebench seeds an sbtree with sequential integer keys and reports
// elapsed time and tree depth, optionally through a ristretto read cache
// (-cache) sitting in front of file storage, in which case it also
// reports the cache's hit/miss counts.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"time"

	"sbtree/cachestore"
	"sbtree/sbtree"
)

func main() {
	path := flag.String("path", "bench.sbt", "storage file path")
	count := flag.Int("n", 100_000, "number of sequential records to write")
	pageSize := flag.Int("page-size", 512, "page size in bytes")
	keySize := flag.Int("key-size", 4, "key size in bytes")
	dataSize := flag.Int("data-size", 12, "value size in bytes")
	frames := flag.Int("frames", 8, "buffer pool frame count")
	useCache := flag.Bool("cache", false, "wrap file storage with a ristretto read cache")
	flag.Parse()

	storage, err := sbtree.OpenFileStorage(*path, *pageSize)
	if err != nil {
		log.Fatalf("sbtreebench: %v", err)
	}

	var backing sbtree.Storage = storage
	var cached *cachestore.Cached
	if *useCache {
		cached, err = cachestore.New(storage, *pageSize, cachestore.DefaultConfig())
		if err != nil {
			log.Fatalf("sbtreebench: %v", err)
		}
		backing = cached
	}

	tree, err := sbtree.Open(backing, sbtree.Config{
		PageSize: *pageSize,
		KeySize:  *keySize,
		DataSize: *dataSize,
		Frames:   *frames,
	})
	if err != nil {
		log.Fatalf("sbtreebench: %v", err)
	}

	key := make([]byte, *keySize)
	value := make([]byte, *dataSize)

	start := time.Now()
	for i := 0; i < *count; i++ {
		binary.BigEndian.PutUint32(key, uint32(i))
		if err := tree.Put(key, value); err != nil {
			log.Fatalf("sbtreebench: Put(%d): %v", i, err)
		}
	}
	if err := tree.Flush(); err != nil {
		log.Fatalf("sbtreebench: Flush: %v", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("wrote %d records in %s (%.0f records/sec)\n", *count, elapsed, float64(*count)/elapsed.Seconds())
	fmt.Printf("tree depth: %d levels\n", tree.Levels())

	if cached != nil {
		hits, misses := cached.Stats()
		fmt.Printf("cachestore: %d hits, %d misses\n", hits, misses)
	}

	if err := tree.Close(); err != nil {
		log.Fatalf("sbtreebench: %v", err)
	}
}
