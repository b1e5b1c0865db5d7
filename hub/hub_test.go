package hub

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/datatree"
	"github.com/outofforest/datatree/test"
	"github.com/outofforest/datatree/types"
	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
)

func newContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)
	return ctx
}

func runInTest(t *testing.T, config Config) (*Hub, context.Context) {
	h, err := New(config)
	require.NoError(t, err)

	ctx := newContext(t)
	group := parallel.NewGroup(ctx)
	group.Spawn("hub", parallel.Continue, h.Run)

	t.Cleanup(func() {
		h.Close()
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			t.Fatal(err)
		}
	})

	return h, ctx
}

// drain returns events already delivered. Events are delivered before operation returns,
// so there is no need to wait.
func drain(sub *Subscription) ([]Event, bool) {
	var events []Event
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return events, false
			}
			events = append(events, e)
		default:
			return events, true
		}
	}
}

func summary(events []Event) []string {
	return lo.Map(events, func(e Event, _ int) string {
		switch e.Type {
		case EventIndexEntryInserted, EventIndexEntryRemoved:
			return e.Type.String() + " " + e.Path + " " + e.ChildName
		default:
			return e.Type.String() + " " + e.Path
		}
	})
}

func counterValue(requireT *require.Assertions, c interface{ Write(*dto.Metric) error }) float64 {
	m := &dto.Metric{}
	requireT.NoError(c.Write(m))
	return m.GetCounter().GetValue()
}

func TestSetDataCreatesPath(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{})

	sub, err := h.Subscribe(ctx, "/a/b")
	requireT.NoError(err)

	requireT.NoError(h.SetData(ctx, "/a/b", test.Value(1)))
	requireT.NoError(h.SetData(ctx, "a/b", test.Value(2)))

	events, open := drain(sub)
	requireT.True(open)
	requireT.Equal([]string{"updated /a/b", "updated /a/b"}, summary(events))
	requireT.Equal(test.Value(1), events[0].Payload)
	requireT.Equal(test.Value(2), events[1].Payload)

	entries, err := h.Get(ctx, "/*")
	requireT.NoError(err)
	requireT.Equal([]Entry{{Path: "/a", Payload: nil}}, entries)

	entries, err = h.Get(ctx, "/a/*")
	requireT.NoError(err)
	requireT.Equal([]Entry{{Path: "/a/b", Payload: test.Value(2)}}, entries)
}

func TestSetDataRejectsInvalidPath(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{})

	requireT.ErrorIs(h.SetData(ctx, "/a/*", test.Value(1)), types.ErrBadArgument)
	requireT.ErrorIs(h.SetData(ctx, "/a//b", test.Value(1)), types.ErrBadArgument)

	entries, err := h.Get(ctx, "/*")
	requireT.NoError(err)
	requireT.Empty(entries)
}

func TestSubscribeDeliversExistingNodes(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{})

	requireT.NoError(h.SetData(ctx, "/x/1", test.Value(1)))
	requireT.NoError(h.SetData(ctx, "/x/2", test.Value(2)))
	requireT.NoError(h.SetData(ctx, "/y/1", test.Value(3)))

	sub, err := h.Subscribe(ctx, "/x/*")
	requireT.NoError(err)
	events, _ := drain(sub)
	requireT.Equal([]string{"updated /x/1", "updated /x/2"}, summary(events))

	requireT.NoError(h.SetData(ctx, "/x/3", test.Value(4)))
	requireT.NoError(h.SetData(ctx, "/y/2", test.Value(5)))
	requireT.NoError(h.SetData(ctx, "/x/1", test.Value(6)))
	events, _ = drain(sub)
	requireT.Equal([]string{"updated /x/3", "updated /x/1"}, summary(events))
	requireT.Zero(events[0].Flags)
}

func TestSubscribeRejectsInvalidPattern(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{})

	_, err := h.Subscribe(ctx, "/a/[b")
	requireT.ErrorIs(err, types.ErrBadArgument)
}

func TestOrderedIndexEvents(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{})

	requireT.NoError(h.SetData(ctx, "/list", nil))
	listSub, err := h.Subscribe(ctx, "/list")
	requireT.NoError(err)
	itemsSub, err := h.Subscribe(ctx, "/list/*")
	requireT.NoError(err)
	drain(listSub)

	path, err := h.InsertOrdered(ctx, "/list", test.Value(1), nil)
	requireT.NoError(err)
	requireT.Equal("/list/I0", path)

	path, err = h.InsertOrdered(ctx, "/list", test.Value(2), lo.ToPtr("I0"))
	requireT.NoError(err)
	requireT.Equal("/list/I1", path)

	requireT.NoError(h.Reorder(ctx, "/list/I0", lo.ToPtr("I1")))

	events, _ := drain(listSub)
	requireT.Equal([]string{
		"index_inserted /list I0",
		"index_inserted /list I1",
		"index_removed /list I0",
		"index_inserted /list I0",
	}, summary(events))
	requireT.EqualValues(0, events[1].Position)
	requireT.EqualValues(1, events[2].Position)
	requireT.EqualValues(0, events[3].Position)

	events, _ = drain(itemsSub)
	requireT.Equal([]string{"updated /list/I0", "updated /list/I1"}, summary(events))

	_, err = h.InsertOrdered(ctx, "/missing", test.Value(1), nil)
	requireT.ErrorIs(err, types.ErrNotFound)
	requireT.ErrorIs(h.Reorder(ctx, "/", nil), types.ErrBadArgument)
}

func TestRemove(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{})

	requireT.NoError(h.SetData(ctx, "/r/a/b", test.Value(1)))
	requireT.NoError(h.SetData(ctx, "/r/c", test.Value(2)))
	requireT.NoError(h.SetData(ctx, "/s", test.Value(3)))

	sub, err := h.Subscribe(ctx, "/r/*/*")
	requireT.NoError(err)
	drain(sub)

	removed, err := h.Remove(ctx, "/r/*")
	requireT.NoError(err)
	requireT.Equal(2, removed)

	events, _ := drain(sub)
	requireT.Equal([]string{"removed /r/a/b"}, summary(events))
	requireT.Equal(test.Value(1), events[0].Payload)
	requireT.True(events[0].Flags.IsSet(types.ChangeIsBeingRemoved))

	entries, err := h.Get(ctx, "/*")
	requireT.NoError(err)
	requireT.Equal([]Entry{{Path: "/r"}, {Path: "/s", Payload: test.Value(3)}}, entries)

	removed, err = h.Remove(ctx, "/")
	requireT.NoError(err)
	requireT.Zero(removed)

	var nodes uint64
	requireT.NoError(h.execute(ctx, func() error {
		nodes = h.nodes
		return nil
	}))
	requireT.EqualValues(2, nodes)
}

func TestOverflowDropsEvents(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{BufferSize: 1})

	sub, err := h.Subscribe(ctx, "/o/*")
	requireT.NoError(err)

	dropped := counterValue(requireT, eventsDroppedTotal)
	requireT.NoError(h.SetData(ctx, "/o/1", test.Value(1)))
	requireT.NoError(h.SetData(ctx, "/o/2", test.Value(2)))
	requireT.Equal(dropped+1, counterValue(requireT, eventsDroppedTotal))

	events, _ := drain(sub)
	requireT.Equal([]string{"updated /o/1"}, summary(events))

	requireT.NoError(h.SetData(ctx, "/o/2", test.Value(3)))
	events, _ = drain(sub)
	requireT.Equal([]string{"updated /o/2"}, summary(events))
}

func TestSubscriptionClose(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{})

	sub, err := h.Subscribe(ctx, "/c")
	requireT.NoError(err)
	requireT.NoError(h.SetData(ctx, "/c", test.Value(1)))

	sub.Close()
	events, open := drain(sub)
	requireT.False(open)
	requireT.Len(events, 1)

	var subscribers []types.SubscriberID
	requireT.NoError(h.execute(ctx, func() error {
		node, _ := h.tree.Root().GetChild("c")
		subscribers = node.Subscribers()
		return nil
	}))
	requireT.Empty(subscribers)

	// Closing twice and changing the node later is harmless.
	sub.Close()
	requireT.NoError(h.SetData(ctx, "/c", test.Value(2)))
}

func TestChecksumAndDump(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{})

	requireT.NoError(h.SetData(ctx, "/a", test.Value(1)))
	checksum, err := h.Checksum(ctx, "/", datatree.MaxDepth)
	requireT.NoError(err)
	digest, err := h.Digest(ctx, "/", datatree.MaxDepth)
	requireT.NoError(err)

	requireT.NoError(h.SetData(ctx, "/a", test.Value(2)))
	checksum2, err := h.Checksum(ctx, "/", datatree.MaxDepth)
	requireT.NoError(err)
	requireT.NotEqual(checksum, checksum2)
	digest2, err := h.Digest(ctx, "/", datatree.MaxDepth)
	requireT.NoError(err)
	requireT.NotEqual(digest, digest2)

	_, err = h.Checksum(ctx, "/missing", datatree.MaxDepth)
	requireT.ErrorIs(err, types.ErrNotFound)

	buf := &bytes.Buffer{}
	requireT.NoError(h.Dump(ctx, buf, datatree.MaxDepth))
	requireT.Contains(buf.String(), "DataNode [/a] numChildren=0 orderedIndex=-1")
}

func TestCapacityExhausted(t *testing.T) {
	requireT := require.New(t)
	h, ctx := runInTest(t, Config{
		Tree: datatree.Config{Capacity: 2},
	})

	requireT.NoError(h.SetData(ctx, "/a", test.Value(1)))
	requireT.ErrorIs(h.SetData(ctx, "/b", test.Value(1)), types.ErrOutOfMemory)
}

func TestClosedHub(t *testing.T) {
	requireT := require.New(t)

	h, err := New(Config{})
	requireT.NoError(err)

	ctx := newContext(t)
	group := parallel.NewGroup(ctx)
	group.Spawn("hub", parallel.Continue, h.Run)

	sub, err := h.Subscribe(ctx, "/*")
	requireT.NoError(err)

	h.Close()
	<-h.doneCh
	group.Exit(nil)
	requireT.NoError(group.Wait())

	_, open := drain(sub)
	requireT.False(open)
	requireT.ErrorIs(h.SetData(ctx, "/a", test.Value(1)), ErrClosed)
	_, err = h.Get(ctx, "/*")
	requireT.ErrorIs(err, ErrClosed)
	sub.Close()
}
