// Command gc-smoke exercises alloc, root promotion, and collection
// end to end against a single Heap, printing block counts before and
// after a collection so the effect of an evacuating cycle is visible.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/arborlang/gc/gc"
)

// node is a linked list node. has distinguishes "next points somewhere"
// from "next is a zero-valued Gc handle with nothing behind it", since
// Gc[T] carries no built-in nil state of its own.
type node struct {
	value int
	next  gc.Gc[node]
	has   bool
}

func (n *node) GCTrace(out *[]gc.TraceSlot) {
	if n.has {
		gc.AppendTrace(out, &n.next)
	}
}

func main() {
	blockSize := flag.String("block-size", "64KiB", "heap block size (power of two, e.g. 64KiB, 1MiB)")
	garbage := flag.Int("garbage", 4096, "number of unreachable nodes to allocate before collecting")
	flag.Parse()

	size, err := gc.ParseBlockSize(*blockSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	h := gc.NewHeap(gc.HeapConfig{BlockSize: size})

	head := gc.Alloc(h, node{value: 42})
	root := gc.RootFrom(h, head)

	for i := 0; i < *garbage; i++ {
		gc.Alloc(h, node{value: i})
	}

	fmt.Printf("blocks before collect: %d\n", h.BlockCount())

	h.Collect()

	fmt.Printf("blocks after collect:  %d\n", h.PostBlockCount())

	typed, err := gc.TryDowncast[node](root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("head value survived collect: %d\n", typed.Deref().value)
	typed.Release()
}
