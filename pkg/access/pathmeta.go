package access

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// MaxPathLinkDepth bounds how many PathLink rewrites a single lookup will
// follow before giving up (§9 "path links may form a cycle; lookups must
// not loop forever").
const MaxPathLinkDepth = 32

// ErrOutOfLimit is returned once a lookup exceeds MaxPathLinkDepth.
var ErrOutOfLimit = fmt.Errorf("access: path link depth exceeded %d", MaxPathLinkDepth)

// Root distinguishes the two per-DEC state trees a path can live under.
type Root uint8

const (
	RootState Root = iota
	RootLocalCache
)

// SourcePredicate decides whether a Source matches a rule's scope, e.g.
// "any verified source in the owner's zone" or "a specific device".
type SourcePredicate func(Source) bool

// PathAccessEntry is a sum type: either a flat default AccessString, or a
// predicate-gated permission grant layered on top of it.
type PathAccessEntry struct {
	Default   *AccessString
	Predicate SourcePredicate
	Required  Permission
}

// IsDefault reports whether this entry is the flat-AccessString variant.
func (e PathAccessEntry) IsDefault() bool { return e.Default != nil }

// PathLink rewrites lookups for From to To, the path-level equivalent of a
// symlink (§3 "Path meta", §9 "path links").
type PathLink struct {
	From string
	To   string
}

// normalizePath NFC-normalizes and splits a `/`-separated path into
// segments, trimming empty leading/trailing segments.
func normalizePath(path string) []string {
	n := norm.NFC.String(path)
	n = strings.Trim(n, "/")
	if n == "" {
		return nil
	}
	return strings.Split(n, "/")
}

type trieNode struct {
	children map[string]*trieNode
	entry    *PathAccessEntry
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// PathMetaTree is a per-root trie of path access rules plus a flat link
// table, matching §3's "Path meta" store.
type PathMetaTree struct {
	mu    sync.RWMutex
	roots map[Root]*trieNode
	links map[Root]map[string]string
}

// NewPathMetaTree constructs an empty tree with both roots initialized.
func NewPathMetaTree() *PathMetaTree {
	return &PathMetaTree{
		roots: map[Root]*trieNode{RootState: newTrieNode(), RootLocalCache: newTrieNode()},
		links: map[Root]map[string]string{RootState: {}, RootLocalCache: {}},
	}
}

// Set installs entry at path under root, creating intermediate trie nodes
// as needed.
func (t *PathMetaTree) Set(root Root, path string, entry PathAccessEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	segs := normalizePath(path)
	node := t.roots[root]
	for _, s := range segs {
		child, ok := node.children[s]
		if !ok {
			child = newTrieNode()
			node.children[s] = child
		}
		node = child
	}
	e := entry
	node.entry = &e
}

// Link registers a PathLink rewrite under root.
func (t *PathMetaTree) Link(root Root, link PathLink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.links[root][strings.Trim(norm.NFC.String(link.From), "/")] = strings.Trim(norm.NFC.String(link.To), "/")
}

// Resolve follows PathLink rewrites (bounded by MaxPathLinkDepth) and then
// walks the trie to the most specific ancestor entry covering path,
// returning nil if no rule applies.
func (t *PathMetaTree) Resolve(root Root, path string) (*PathAccessEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resolved := strings.Trim(norm.NFC.String(path), "/")
	for depth := 0; ; depth++ {
		if depth > MaxPathLinkDepth {
			return nil, ErrOutOfLimit
		}
		to, ok := t.links[root][resolved]
		if !ok {
			break
		}
		resolved = to
	}

	segs := normalizePath(resolved)
	node := t.roots[root]
	var best *PathAccessEntry
	if node.entry != nil {
		best = node.entry
	}
	for _, s := range segs {
		child, ok := node.children[s]
		if !ok {
			break
		}
		node = child
		if node.entry != nil {
			best = node.entry
		}
	}
	return best, nil
}

// ObjectSelector is a predicate over the three attributes that scope an
// ObjectMetaEntry rule.
type ObjectSelector struct {
	TypeCode *objmodel.ObjectTypeCode
	Owner    *objmodel.ObjectId
	DecId    *objmodel.ObjectId
}

// Matches reports whether desc satisfies every populated field of s.
func (s ObjectSelector) Matches(desc objmodel.ObjectDesc) bool {
	if s.TypeCode != nil && *s.TypeCode != desc.TypeCode {
		return false
	}
	if s.Owner != nil && (desc.Owner == nil || *s.Owner != *desc.Owner) {
		return false
	}
	if s.DecId != nil && (desc.DecId == nil || *s.DecId != *desc.DecId) {
		return false
	}
	return true
}

// ObjectMetaEntry layers a selector and an optional referer-depth bound on
// top of a path rule's AccessString, matching rules by object attributes
// rather than only by path (§3 "Path meta").
type ObjectMetaEntry struct {
	Selector     ObjectSelector
	Access       AccessString
	RefererDepth *int
}
