package datatree_test

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/datatree"
	"github.com/outofforest/datatree/test"
)

// go test -bench=. -run=^$ -cpuprofile profile.out
// go tool pprof -http="localhost:8000" pprofbin ./profile.out

func BenchmarkInsertOrderedChild(b *testing.B) {
	const numOfChildren = 10_000

	b.StopTimer()
	b.ResetTimer()

	for range b.N {
		tree, err := datatree.New(datatree.Config{})
		require.NoError(b, err)
		sink := datatree.NewBaseSink(tree)
		root := tree.Root()

		b.StartTimer()
		for i := range numOfChildren {
			_, err := root.InsertOrderedChild(test.Value(i), nil, nil, sink, nil)
			if err != nil {
				b.Fatal(err)
			}
		}
		b.StopTimer()
	}
}

func BenchmarkWildcardResolution(b *testing.B) {
	const numOfChildren = 100

	b.StopTimer()
	b.ResetTimer()

	tree, err := datatree.New(datatree.Config{})
	require.NoError(b, err)
	root := tree.Root()
	for i := range numOfChildren {
		parent, err := tree.NewNode("p"+strconv.Itoa(i), nil)
		require.NoError(b, err)
		require.NoError(b, root.PutChild(parent, nil, nil))
		for j := range numOfChildren {
			child, err := tree.NewNode("c"+strconv.Itoa(j), test.Value(j))
			require.NoError(b, err)
			require.NoError(b, parent.PutChild(child, nil, nil))
		}
	}

	var nodes []datatree.Node

	b.StartTimer()
	for range b.N {
		nodes = root.FindMatchingNodes("p*/c1?", datatree.MaxDepth)
	}
	b.StopTimer()

	_, _ = fmt.Fprint(io.Discard, len(nodes))
}

func BenchmarkChecksum(b *testing.B) {
	const numOfChildren = 1000

	b.StopTimer()
	b.ResetTimer()

	tree, err := datatree.New(datatree.Config{})
	require.NoError(b, err)
	sink := datatree.NewBaseSink(tree)
	root := tree.Root()
	for i := range numOfChildren {
		_, err := root.InsertOrderedChild(test.Value(i), nil, nil, sink, nil)
		require.NoError(b, err)
	}

	var checksum uint64

	b.StartTimer()
	for range b.N {
		checksum = root.Checksum(datatree.MaxDepth)
	}
	b.StopTimer()

	_, _ = fmt.Fprint(io.Discard, checksum)
}
