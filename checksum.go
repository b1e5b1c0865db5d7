package datatree

import (
	"sort"

	"github.com/cespare/xxhash"
	"github.com/zeebo/blake3"

	"github.com/outofforest/datatree/types"
	"github.com/outofforest/photon"
)

func nameChecksum(name string) uint64 {
	return xxhash.Sum64([]byte(name))
}

func (s *nodeState) localChecksum() uint64 {
	// Payload might be big, so its checksum is computed once per change.
	if s.cachedChecksum == 0 {
		s.cachedChecksum = nameChecksum(s.name) + types.PayloadChecksum(s.payload)
	}
	return s.cachedChecksum
}

// Checksum returns checksum of the node's name and payload. If maxRecursionDepth is greater than 0,
// names of ordered index entries (weighted by position) and checksums of children, computed with
// maxRecursionDepth decremented, are added.
func (n Node) Checksum(maxRecursionDepth uint32) uint64 {
	s := n.state()
	if s == nil {
		return 0
	}

	checksum := s.localChecksum()
	if maxRecursionDepth == 0 {
		return checksum
	}

	if s.index != nil {
		for i, address := range s.index.entries {
			if es := n.tree.nodes.Get(address); es != nil {
				checksum += nameChecksum(es.name) * uint64(i+1)
			}
		}
	}
	if s.children != nil {
		for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
			checksum += n.node(pair.Value).Checksum(maxRecursionDepth - 1)
		}
	}
	return checksum
}

// Digest returns blake3 digest of the subtree down to maxDepth levels.
// Unlike Checksum, it does not depend on the order children were put in, only on names, payloads
// and the ordered index, so it may be used to compare replicas.
func (n Node) Digest(maxDepth uint32) types.Hash {
	var hash types.Hash
	s := n.state()
	if s == nil {
		return hash
	}

	hasher := blake3.New()
	writeString(hasher, s.name)
	payloadChecksum := types.PayloadChecksum(s.payload)
	_, _ = hasher.Write(photon.NewFromValue(&payloadChecksum).B)

	if maxDepth > 0 {
		if s.index != nil {
			numOfEntries := uint64(len(s.index.entries))
			_, _ = hasher.Write(photon.NewFromValue(&numOfEntries).B)
			for _, address := range s.index.entries {
				if es := n.tree.nodes.Get(address); es != nil {
					writeString(hasher, es.name)
				}
			}
		}
		if s.children != nil {
			names := make([]string, 0, s.children.Len())
			for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
				names = append(names, pair.Key)
			}
			sort.Strings(names)

			for _, name := range names {
				child, _ := s.children.Get(name)
				childDigest := n.node(child).Digest(maxDepth - 1)
				_, _ = hasher.Write(childDigest[:])
			}
		}
	}

	copy(hash[:], hasher.Sum(nil))
	return hash
}

func writeString(hasher *blake3.Hasher, s string) {
	length := uint64(len(s))
	_, _ = hasher.Write(photon.NewFromValue(&length).B)
	_, _ = hasher.Write([]byte(s))
}
