package filesentry

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/mutagen-io/filesentry/internal/logging"
)

// nodeID is a dense index into FileTree.nodes. Nodes are never structurally
// removed, so an id remains stable (and a node revivable) for the lifetime
// of the tree, per spec.md §3.2.
type nodeID int32

// dirID is a dense index into FileTree.dirs.
type dirID int32

const noNode nodeID = -1
const noDir dirID = -1

type nodeKind uint8

const (
	nodeDir nodeKind = iota
	nodeFile
	nodeDeleted
)

type nodeMeta struct {
	kind  nodeKind
	mtime time.Time
	size  int64
}

func metaFromStat(m *fileMeta) nodeMeta {
	if m.isDir {
		return nodeMeta{kind: nodeDir}
	}
	return nodeMeta{kind: nodeFile, mtime: m.mtime, size: m.size}
}

// changeKind computes the event kind (if any) for a transition from old to
// new metadata, per spec.md §3.6 / original_source/src/tree.rs's
// change_type. skipCheck bypasses the "no observable difference" elision:
// set when the change originated from the kernel or the inode changed, so a
// Modified is emitted even if (mtime, size) happen to read the same.
func changeKind(old, new nodeMeta, skipCheck bool) (EventKind, bool) {
	switch {
	case old.kind == nodeFile && new.kind == nodeFile:
		if !skipCheck && old.mtime.Equal(new.mtime) && old.size == new.size {
			return 0, false
		}
		return EventModified, true
	case (old.kind == nodeDeleted || old.kind == nodeDir) && new.kind == nodeFile:
		return EventCreate, true
	case old.kind == nodeFile && (new.kind == nodeDeleted || new.kind == nodeDir):
		return EventDelete, true
	default:
		return 0, false
	}
}

type fsFlags uint8

const (
	flagMaybeDeleted fsFlags = 1 << iota
	flagWatchChildren
	flagRecursive
)

func (f fsFlags) has(o fsFlags) bool { return f&o == o }

// FsNode is one known filesystem entity inside a watched root, per
// spec.md §3.2.
type FsNode struct {
	path     CanonicalPath
	meta     nodeMeta
	inode    uint64
	dev      uint64
	flags    fsFlags
	children dirID
}

// emitFunc delivers one event into the debouncer.
type emitFunc func(CanonicalPath, EventKind)

// addWatchFunc registers a directory with the kernel notification ingestor.
type addWatchFunc func(CanonicalPath) error

// FileTree is the in-memory mirror of the watched subtrees: a vector of
// nodes indexed by stable node ids, a vector of child lists indexed by
// directory ids, and a hash index from canonical path to node id
// (spec.md §3.4).
type FileTree struct {
	pathIndex map[string]nodeID
	nodes     []FsNode
	dirs      [][]nodeID
	logger    *logging.Logger
}

// NewFileTree creates an empty tree.
func NewFileTree(logger *logging.Logger) *FileTree {
	return &FileTree{
		pathIndex: make(map[string]nodeID, 1024),
		nodes:     make([]FsNode, 0, 1024),
		dirs:      make([][]nodeID, 0, 128),
		logger:    logger,
	}
}

// Path returns the canonical path stored for a node. Exposed so the worker
// can report root paths for bookkeeping (e.g. sorted root list, §4.5).
func (t *FileTree) Path(id nodeID) CanonicalPath {
	return t.nodes[id].path
}

func (t *FileTree) reserveDir(id nodeID, size int) dirID {
	d := dirID(len(t.dirs))
	t.nodes[id].children = d
	capacity := size
	if capacity > 64 {
		capacity = 64
	}
	t.dirs = append(t.dirs, make([]nodeID, 0, capacity))
	return d
}

func (t *FileTree) addChild(parent, child nodeID) {
	d := t.nodes[parent].children
	if d == noDir {
		d = t.reserveDir(parent, 4)
	}
	t.dirs[d] = append(t.dirs[d], child)
}

// AddRoot inserts a root node (spec.md §4.3.1). It must be a directory; if
// not, it's refused with a logged error. Adding a root that already exists
// idempotently upgrades WATCH_CHILDREN to RECURSIVE.
func (t *FileTree) AddRoot(path CanonicalPath, recursive bool) (nodeID, bool) {
	return t.add(path, recursive, true)
}

func (t *FileTree) add(path CanonicalPath, recursive, root bool) (nodeID, bool) {
	if id, ok := t.pathIndex[path.String()]; ok {
		if !recursive {
			t.logger.Errorf("already watching %s", path)
			return noNode, false
		}
		if root && t.nodes[id].meta.kind != nodeDir {
			t.logger.Errorf("invalid root %s: not a directory", path)
			return noNode, false
		}
		t.nodes[id].flags |= flagRecursive
		return id, true
	}

	meta, err := statPathFn(path)
	if err != nil {
		t.logger.Errorf("failed to stat %s: %v", path, err)
		return noNode, false
	}
	if meta == nil {
		t.logger.Errorf("cannot add %s: does not exist", path)
		return noNode, false
	}
	if root && !meta.isDir {
		t.logger.Errorf("invalid root %s: not a directory", path)
		return noNode, false
	}

	var parent nodeID = noNode
	if p, ok := path.Parent(); ok {
		if pid, ok := t.pathIndex[p.String()]; ok {
			parent = pid
		} else if !root {
			t.logger.Errorf("for %s the parent wasn't yet in the tree! Ignoring...", path)
			return noNode, false
		}
	}

	id := nodeID(len(t.nodes))
	var flags fsFlags
	switch {
	case recursive:
		flags = flagRecursive
	case root:
		flags = flagWatchChildren
	}
	t.nodes = append(t.nodes, FsNode{
		path:  path,
		meta:  metaFromStat(meta),
		inode: meta.inode,
		dev:   meta.dev,
		flags: flags,
	})
	t.pathIndex[path.String()] = id
	if parent != noNode {
		t.addChild(parent, id)
	}
	if meta.isDir && (recursive || root) && meta.size != 0 {
		t.reserveDir(id, int(meta.size))
	}
	return id, true
}

// ApplyChange applies a single pending change to the tree, per
// spec.md §4.3.3, returning the affected node id (or noNode if the path
// couldn't be resolved at all) and whether the caller should recurse a crawl
// into it.
func (t *FileTree) ApplyChange(change PendingChange, emit emitFunc) (nodeID, bool) {
	meta, statErr := statPathFn(change.Path)

	recursive := change.Flags.Has(FlagNeedsRecursiveCrawl)
	markRecursive := change.Flags.Has(FlagMarkRecursive)

	id, existing := t.pathIndex[change.Path.String()]
	if existing {
		if markRecursive {
			t.nodes[id].flags |= flagRecursive
		}
		if statErr != nil {
			// A transient stat failure (EACCES, EIO, ENOMEM, ...) is not a
			// confirmed deletion: ENOENT/ENOTDIR are already folded into
			// meta == nil by statPath, so anything reaching here is a real
			// error. Log it and leave the node untouched rather than
			// falling through to the meta == nil "confirmed gone" handling
			// below, per spec.md §4.3.3 step 1 / §7.
			t.logger.Errorf("failed to stat %s: %v", change.Path, statErr)
			return id, false
		}
		if meta != nil {
			inodeChanged := meta.inode != t.nodes[id].inode
			recursive = recursive || inodeChanged
			t.nodes[id].inode = meta.inode
			t.nodes[id].dev = meta.dev

			newMeta := metaFromStat(meta)
			skipCheck := inodeChanged || change.Flags.Has(FlagOriginWatcher)
			if kind, ok := changeKind(t.nodes[id].meta, newMeta, skipCheck); ok {
				emit(change.Path, kind)
				recursive = recursive || kind == EventCreate
			}
			t.nodes[id].meta = newMeta

			watchChildren := t.nodes[id].flags.has(flagWatchChildren) || t.nodes[id].flags.has(flagRecursive)
			if meta.isDir && t.nodes[id].children == noDir && meta.size != 0 && watchChildren {
				t.reserveDir(id, int(meta.size))
			}
			return id, recursive && watchChildren
		}

		oldKind := t.nodes[id].meta.kind
		t.nodes[id].meta = nodeMeta{kind: nodeDeleted}
		switch oldKind {
		case nodeDir:
			t.deleteRec(id, emit)
		case nodeFile:
			emit(change.Path, EventDelete)
		}
		return id, true
	}

	if statErr != nil {
		// Same reasoning as above: a transient error on a path not yet in
		// the tree tells us nothing conclusive, so skip it rather than
		// treating it as either a creation or a deletion.
		t.logger.Errorf("failed to stat %s: %v", change.Path, statErr)
		return noNode, false
	}

	if meta == nil {
		return noNode, true
	}

	parentPath, hasParent := change.Path.Parent()
	parent, ok := noNode, false
	if hasParent {
		parent, ok = t.pathIndex[parentPath.String()]
	}
	if !ok {
		t.logger.Errorf("for %s the parent wasn't yet in the tree! Ignoring...", change.Path)
		return noNode, true
	}

	newID := nodeID(len(t.nodes))
	recursive = markRecursive || t.nodes[parent].flags.has(flagRecursive)
	var flags fsFlags
	if recursive {
		flags = flagRecursive
	}
	t.nodes = append(t.nodes, FsNode{
		path:  change.Path,
		meta:  metaFromStat(meta),
		inode: meta.inode,
		dev:   meta.dev,
		flags: flags,
	})
	t.pathIndex[change.Path.String()] = newID
	t.addChild(parent, newID)

	if !meta.isDir {
		emit(change.Path, EventCreate)
	} else if recursive && meta.size != 0 {
		t.reserveDir(newID, int(meta.size))
	}
	return newID, recursive
}

// deleteRec recursively marks the subtree rooted at id as deleted, emitting
// Delete for every file descendant. It is iterative (an explicit work
// stack) to avoid stack overflow on deep deleted subtrees, per spec.md
// §4.3.5.
func (t *FileTree) deleteRec(id nodeID, emit emitFunc) {
	t.nodes[id].meta = nodeMeta{kind: nodeDeleted}
	if t.nodes[id].children == noDir {
		return
	}

	type frame struct {
		id    nodeID
		index int
	}
	stack := []frame{{id: id, index: 0}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := t.dirs[t.nodes[top.id].children]
		if top.index >= len(children) {
			stack = stack[:len(stack)-1]
			continue
		}
		child := children[top.index]
		top.index++
		switch t.nodes[child].meta.kind {
		case nodeFile:
			emit(t.nodes[child].path, EventDelete)
		case nodeDir:
			if t.nodes[child].children != noDir {
				stack = append(stack, frame{id: child, index: 0})
			}
		}
		t.nodes[child].meta = nodeMeta{kind: nodeDeleted}
	}
}

// ApplyTransaction drains pending in sorted order and applies each change,
// per spec.md §4.3.2. For any change that needed a recursive crawl and
// resolved to a non-ignored directory, it runs a crawl. Whenever ApplyChange
// asks for recursion, it then fast-forwards past the run of pending changes
// under that path that directly follows it in sorted order; a descendant
// that sorts after an unrelated sibling (see CanonicalPath.Less) is applied
// again on its own.
func (t *FileTree) ApplyTransaction(pending *pendingChanges, filter Filter, emit emitFunc, addWatch addWatchFunc) {
	changes := pending.drain()
	for i := 0; i < len(changes); i++ {
		change := changes[i]
		id, recurse := t.ApplyChange(change, emit)
		if recurse {
			isDirHint := true
			if id != noNode && t.nodes[id].meta.kind == nodeDir && !filter.IgnorePath(change.Path, &isDirHint) {
				t.crawl(id, filter, emit, addWatch)
			}
			for i+1 < len(changes) && change.Path.IsParentOf(changes[i+1].Path) {
				i++
			}
		}
	}
}

// crawl resynchronizes the subtree rooted at root, per spec.md §4.3.4: an
// ordered, non-symlink-following, same-filesystem directory walk that marks
// every pre-existing child MAYBE_DELETED up front, clears the mark on
// anything still present, and emits Delete for anything left marked when a
// directory's listing is exhausted.
func (t *FileTree) crawl(root nodeID, filter Filter, emit emitFunc, addWatch addWatchFunc) {
	recursive := t.nodes[root].flags.has(flagRecursive)
	if err := addWatch(t.nodes[root].path); err != nil {
		t.logger.Warnf("failed to watch %s: %v", t.nodes[root].path, err)
	}
	rootDev := t.nodes[root].dev
	t.crawlDir(root, rootDev, recursive, emit, addWatch, filter)
}

func (t *FileTree) crawlDir(dir nodeID, rootDev uint64, recursive bool, emit emitFunc, addWatch addWatchFunc, filter Filter) {
	if children := t.nodes[dir].children; children != noDir {
		for _, c := range t.dirs[children] {
			t.nodes[c].flags |= flagMaybeDeleted
		}
	}

	dirPath := t.nodes[dir].path
	entries, err := os.ReadDir(dirPath.String())
	if err != nil {
		t.logger.Warnf("failed to list %s: %v", dirPath, errors.WithStack(err))
		return
	}

	flags := FlagNeedsRecursiveCrawl
	if recursive {
		flags |= FlagMarkRecursive
	}

	for _, entry := range entries {
		isDir := entry.IsDir()
		childPath := dirPath.Join(entry.Name())
		if filter.IgnorePath(childPath, &isDir) {
			continue
		}

		id, _ := t.ApplyChange(PendingChange{Path: childPath, Flags: flags}, emit)
		if id == noNode {
			continue
		}
		t.nodes[id].flags &^= flagMaybeDeleted

		if recursive && t.nodes[id].meta.kind == nodeDir {
			if t.nodes[id].dev != rootDev {
				// Don't cross mount points (spec.md §4.3.4 / Non-goals).
				continue
			}
			if err := addWatch(childPath); err != nil {
				t.logger.Warnf("failed to watch %s: %v", childPath, err)
			}
			t.crawlDir(id, rootDev, recursive, emit, addWatch, filter)
		}
	}

	if children := t.nodes[dir].children; children != noDir {
		for _, c := range append([]nodeID(nil), t.dirs[children]...) {
			if t.nodes[c].flags.has(flagMaybeDeleted) {
				emit(t.nodes[c].path, EventDelete)
				t.deleteRec(c, emit)
			}
		}
	}
}

// CrawlInitial performs the first population of a newly-added root: it
// walks the subtree and materializes nodes via add(), without diffing
// against prior state and without emitting events (spec.md §4.5 step 3).
func (t *FileTree) CrawlInitial(root nodeID, recursive bool, filter Filter, addWatch addWatchFunc) {
	t.crawlInitialDir(root, recursive, filter, addWatch)
}

func (t *FileTree) crawlInitialDir(dir nodeID, recursive bool, filter Filter, addWatch addWatchFunc) {
	dirPath := t.nodes[dir].path
	entries, err := os.ReadDir(dirPath.String())
	if err != nil {
		t.logger.Warnf("failed to list %s: %v", dirPath, errors.WithStack(err))
		return
	}
	for _, entry := range entries {
		isDir := entry.IsDir()
		childPath := dirPath.Join(entry.Name())
		if filter.IgnorePath(childPath, &isDir) {
			continue
		}
		id, ok := t.add(childPath, recursive, false)
		if !ok {
			continue
		}
		if recursive && t.nodes[id].meta.kind == nodeDir {
			if err := addWatch(childPath); err != nil {
				t.logger.Warnf("failed to watch %s: %v", childPath, err)
			}
			t.crawlInitialDir(id, recursive, filter, addWatch)
		}
	}
}

// Crawl performs a full resync of an already-populated root, used when the
// ingestor reports a lossy stream (queue overflow or watch invalidation),
// per spec.md §4.5 step 5. It's the exported entry point the worker calls;
// unexported crawl above is reused by ApplyTransaction.
func (t *FileTree) Crawl(root nodeID, filter Filter, emit emitFunc, addWatch addWatchFunc) {
	t.crawl(root, filter, emit, addWatch)
}
