package datatree

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/outofforest/datatree/types"
)

// Dump prints human-readable description of the subtree, down to maxDepth levels.
// Output is meant for debugging, its format is not stable.
func (n Node) Dump(w io.Writer, maxDepth uint32) error {
	return errors.WithStack(n.dump(w, maxDepth, 0))
}

func (n Node) dump(w io.Writer, maxDepth uint32, indentLevel int) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}

	indent := strings.Repeat(" ", indentLevel)
	path := n.NodePath(0)
	indexLen := -1
	if s.index != nil {
		indexLen = len(s.index.entries)
	}

	if _, err := fmt.Fprintf(w, "%sDataNode [%s] numChildren=%d orderedIndex=%d checksum=%d msgChecksum=%d\n",
		indent, path, n.ChildCount(), indexLen, n.Checksum(maxDepth), types.PayloadChecksum(s.payload)); err != nil {
		return err
	}
	if stringer, ok := s.payload.(fmt.Stringer); ok {
		if _, err := fmt.Fprintf(w, "%s %s\n", indent, stringer.String()); err != nil {
			return err
		}
	}

	if maxDepth == 0 {
		return nil
	}

	if s.index != nil {
		for i, entry := range n.IndexEntries() {
			if _, err := fmt.Fprintf(w, "%s   Index slot %d = %s\n", indent, i, entry.Name()); err != nil {
				return err
			}
		}
	}
	if s.children != nil {
		if _, err := fmt.Fprintf(w, "%sChildren for node [%s] follow:\n", indent, path); err != nil {
			return err
		}
		for child := range n.Children() {
			if err := child.dump(w, maxDepth-1, indentLevel+2); err != nil {
				return err
			}
		}
	}
	return nil
}
