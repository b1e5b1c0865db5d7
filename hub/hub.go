package hub

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/datatree"
	"github.com/outofforest/datatree/types"
	"github.com/outofforest/datatree/wildcard"
	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
)

const defaultBufferSize = 1024

// ErrClosed is returned by operations requested after hub stopped running.
var ErrClosed = errors.New("hub closed")

// Config stores hub configuration.
type Config struct {
	// Tree configures the tree owned by the hub. If logger is not set, the one from Run's context is used.
	Tree datatree.Config

	// BufferSize is the number of events buffered for each subscriber.
	BufferSize int

	// MatcherCacheSize is the number of compiled wildcard patterns kept in cache.
	MatcherCacheSize int
}

// New creates new hub.
func New(config Config) (*Hub, error) {
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}
	if config.Tree.Matcher == nil {
		var err error
		config.Tree.Matcher, err = wildcard.NewMatcher(config.MatcherCacheSize)
		if err != nil {
			return nil, err
		}
	}

	return &Hub{
		config:        config,
		requestCh:     make(chan request),
		closedCh:      make(chan struct{}),
		doneCh:        make(chan struct{}),
		subscriptions: map[types.SubscriberID]*Subscription{},
	}, nil
}

type request struct {
	fn      func() error
	replyCh chan error
}

// Hub owns the tree and publishes its changes to subscribers.
// All the tree operations are executed by the single goroutine started by Run.
type Hub struct {
	config    Config
	requestCh chan request
	closedCh  chan struct{}
	doneCh    chan struct{}

	// Fields below are accessed by the loop goroutine only.
	tree          *datatree.Tree
	sink          *sink
	log           *zap.Logger
	subscriptions map[types.SubscriberID]*Subscription
	lastID        types.SubscriberID
	nodes         uint64
}

// Run runs the hub until it is closed or context is canceled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.doneCh)

	h.log = logger.Get(ctx)
	treeConfig := h.config.Tree
	if treeConfig.Logger == nil {
		treeConfig.Logger = h.log
	}

	var err error
	h.tree, err = datatree.New(treeConfig)
	if err != nil {
		return err
	}
	h.sink = &sink{
		BaseSink: datatree.NewBaseSink(h.tree),
		hub:      h,
	}

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("loop", parallel.Exit, h.runLoop)
		return nil
	})
}

// Close tells that there will be no more operations done.
func (h *Hub) Close() {
	select {
	case <-h.closedCh:
	default:
		close(h.closedCh)
	}
}

func (h *Hub) runLoop(ctx context.Context) error {
	defer func() {
		for id, sub := range h.subscriptions {
			close(sub.eventsCh)
			delete(h.subscriptions, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-h.closedCh:
			return nil
		case req := <-h.requestCh:
			req.replyCh <- req.fn()
		}
	}
}

// execute runs fn on the loop goroutine and waits for the result.
func (h *Hub) execute(ctx context.Context, fn func() error) error {
	req := request{
		fn:      fn,
		replyCh: make(chan error, 1),
	}

	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	case <-h.doneCh:
		return errors.WithStack(ErrClosed)
	case h.requestCh <- req:
	}

	return <-req.replyCh
}

// Subscribe subscribes to nodes matching the pattern. One EventNodeUpdated is delivered for each matching node
// existing at the moment, then changes are delivered as they happen.
func (h *Hub) Subscribe(ctx context.Context, pattern string) (*Subscription, error) {
	if err := h.validatePattern(pattern); err != nil {
		return nil, err
	}

	var sub *Subscription
	err := h.execute(ctx, func() error {
		h.lastID++
		sub = &Subscription{
			id:       h.lastID,
			pattern:  pattern,
			hub:      h,
			eventsCh: make(chan Event, h.config.BufferSize),
		}
		h.subscriptions[sub.id] = sub

		for _, n := range h.tree.Root().FindMatchingNodes(pattern, datatree.MaxDepth) {
			n.AddSubscriber(sub.id)
			h.deliver(sub, Event{
				Type:    EventNodeUpdated,
				Path:    n.NodePath(0),
				Payload: n.Payload(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	if _, exists := h.subscriptions[sub.id]; !exists {
		return
	}
	delete(h.subscriptions, sub.id)
	close(sub.eventsCh)

	for _, n := range h.tree.Root().FindMatchingNodes(sub.pattern, datatree.MaxDepth) {
		n.RemoveSubscriber(sub.id)
	}
}

// SetData sets payload of the node at path. Missing nodes on the path are created.
func (h *Hub) SetData(ctx context.Context, path string, payload types.Payload) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	return h.execute(ctx, func() error {
		node := h.tree.Root()
		created := false
		for i, segment := range segments {
			child, exists := node.GetChild(segment)
			if !exists {
				var err error
				child, err = h.sink.NewChildNode(segment, nil)
				if err != nil {
					return err
				}
				if err := node.PutChild(child, h.sink, nil); err != nil {
					return err
				}
				if i < len(segments)-1 {
					if err := child.SetData(nil, h.sink, types.SetDataIsBeingCreated); err != nil {
						return err
					}
				}
			}
			created = !exists
			node = child
		}

		var flags types.SetDataFlags
		if created {
			flags = types.SetDataIsBeingCreated
		}
		return node.SetData(payload, h.sink, flags)
	})
}

// InsertOrdered creates new child of the first node matching parentPath and puts it into the ordered index
// before the child named before, or at the end. Path of the new node is returned.
func (h *Hub) InsertOrdered(
	ctx context.Context,
	parentPath string,
	payload types.Payload,
	before *string,
) (string, error) {
	var path string
	err := h.execute(ctx, func() error {
		parent, err := h.find(parentPath)
		if err != nil {
			return err
		}
		child, err := parent.InsertOrderedChild(payload, before, nil, h.sink, h.sink)
		if err != nil {
			return err
		}
		path = child.NodePath(0)
		return nil
	})
	return path, err
}

// Reorder moves node at path before its sibling named before, or to the end of parent's ordered index.
func (h *Hub) Reorder(ctx context.Context, path string, before *string) error {
	return h.execute(ctx, func() error {
		node, err := h.find(path)
		if err != nil {
			return err
		}
		parent, exists := node.Parent()
		if !exists {
			return errors.Wrap(types.ErrBadArgument, "root can't be reordered")
		}
		return parent.ReorderChild(node, before, h.sink)
	})
}

// Remove removes all the nodes matching the pattern together with their descendants.
// Number of matched nodes is returned.
func (h *Hub) Remove(ctx context.Context, pattern string) (int, error) {
	var removed int
	err := h.execute(ctx, func() error {
		for _, n := range h.tree.Root().FindMatchingNodes(pattern, datatree.MaxDepth) {
			parent, exists := n.Parent()
			if !exists {
				continue
			}
			if err := parent.RemoveChild(n.Name(), h.sink, true, &h.nodes); err != nil {
				return err
			}
			removed++
		}
		nodesGauge.Set(float64(h.nodes))
		return nil
	})
	return removed, err
}

// Get returns paths and payloads of all the nodes matching the pattern.
func (h *Hub) Get(ctx context.Context, pattern string) ([]Entry, error) {
	var entries []Entry
	err := h.execute(ctx, func() error {
		entries = lo.Map(h.tree.Root().FindMatchingNodes(pattern, datatree.MaxDepth),
			func(n datatree.Node, _ int) Entry {
				return Entry{
					Path:    n.NodePath(0),
					Payload: n.Payload(),
				}
			})
		return nil
	})
	return entries, err
}

// Checksum returns checksum of the first node matching the path.
func (h *Hub) Checksum(ctx context.Context, path string, depth uint32) (uint64, error) {
	var checksum uint64
	err := h.execute(ctx, func() error {
		node, err := h.find(path)
		if err != nil {
			return err
		}
		checksum = node.Checksum(depth)
		return nil
	})
	return checksum, err
}

// Digest returns digest of the first node matching the path.
func (h *Hub) Digest(ctx context.Context, path string, depth uint32) (types.Hash, error) {
	var digest types.Hash
	err := h.execute(ctx, func() error {
		node, err := h.find(path)
		if err != nil {
			return err
		}
		digest = node.Digest(depth)
		return nil
	})
	return digest, err
}

// Dump writes description of the tree to w.
func (h *Hub) Dump(ctx context.Context, w io.Writer, depth uint32) error {
	return h.execute(ctx, func() error {
		return h.tree.Root().Dump(w, depth)
	})
}

func (h *Hub) find(path string) (datatree.Node, error) {
	node, exists := h.tree.Root().FindFirstMatchingNode(path, datatree.MaxDepth)
	if !exists {
		return datatree.Node{}, errors.Wrapf(types.ErrNotFound, "node %q does not exist", path)
	}
	return node, nil
}

func (h *Hub) validatePattern(pattern string) error {
	for _, segment := range strings.Split(strings.TrimPrefix(pattern, "/"), "/") {
		if !wildcard.HasWildcard(segment) {
			continue
		}
		if _, err := h.config.Tree.Matcher.Compile(segment); err != nil {
			return errors.Wrap(types.ErrBadArgument, err.Error())
		}
	}
	return nil
}

func (h *Hub) deliver(sub *Subscription, e Event) {
	select {
	case sub.eventsCh <- e:
		eventsTotal.WithLabelValues(e.Type.String()).Inc()
	default:
		eventsDroppedTotal.Inc()
		h.log.Error("Event overflow",
			zap.Uint64("subscriber", uint64(sub.id)),
			zap.Stringer("type", e.Type),
			zap.String("path", e.Path))
	}
}

func (h *Hub) publish(node datatree.Node, e Event) {
	for _, id := range node.Subscribers() {
		if sub, exists := h.subscriptions[id]; exists {
			h.deliver(sub, e)
		}
	}
}

func splitPath(path string) ([]string, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, nil
	}
	segments := strings.Split(path, "/")
	for _, segment := range segments {
		if segment == "" {
			return nil, errors.Wrapf(types.ErrBadArgument, "path %q contains empty segment", path)
		}
		if wildcard.HasWildcard(segment) {
			return nil, errors.Wrapf(types.ErrBadArgument, "path %q contains wildcard", path)
		}
	}
	return segments, nil
}

// Subscription receives events about nodes matching its pattern.
type Subscription struct {
	id       types.SubscriberID
	pattern  string
	hub      *Hub
	eventsCh chan Event
}

// ID returns subscriber ID.
func (s *Subscription) ID() types.SubscriberID {
	return s.id
}

// Events returns channel delivering events. Channel is closed when subscription is closed or hub stops.
func (s *Subscription) Events() <-chan Event {
	return s.eventsCh
}

// Close cancels the subscription.
func (s *Subscription) Close() {
	_ = s.hub.execute(context.Background(), func() error {
		s.hub.unsubscribe(s)
		return nil
	})
}

// sink tags new nodes with subscribers and translates notifications to events.
type sink struct {
	datatree.BaseSink

	hub *Hub
}

func (s *sink) NodeAdded(node datatree.Node) {
	h := s.hub
	h.nodes++
	nodesGauge.Set(float64(h.nodes))

	path := node.NodePath(0)
	for id, sub := range h.subscriptions {
		if h.config.Tree.Matcher.MatchPath(sub.pattern, path) {
			node.AddSubscriber(id)
		}
	}
}

func (s *sink) NodeChanged(node datatree.Node, _ types.Payload, flags types.ChangeFlags) {
	s.hub.publish(node, Event{
		Type:    EventNodeUpdated,
		Path:    node.NodePath(0),
		Payload: node.Payload(),
		Flags:   flags,
	})
}

func (s *sink) NodeAboutToBeRemoved(node datatree.Node, payload types.Payload) {
	s.hub.publish(node, Event{
		Type:    EventNodeRemoved,
		Path:    node.NodePath(0),
		Payload: payload,
		Flags:   types.ChangeIsBeingRemoved,
	})
}

func (s *sink) IndexEntryInserted(node datatree.Node, position uint64, childName string) {
	s.hub.publish(node, Event{
		Type:      EventIndexEntryInserted,
		Path:      node.NodePath(0),
		Position:  position,
		ChildName: childName,
	})
}

func (s *sink) IndexEntryRemoved(node datatree.Node, position uint64, childName string) {
	s.hub.publish(node, Event{
		Type:      EventIndexEntryRemoved,
		Path:      node.NodePath(0),
		Position:  position,
		ChildName: childName,
	})
}
