//go:build linux

package filesentry

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/mutagen-io/filesentry/internal/logging"
)

// watchMask is the fixed inotify flag set every directory is registered
// with, per spec.md §4.1: attribute change, create, delete, delete-self,
// modify, move-self, move (in+out), don't-follow-symlinks, exclude-unlinked,
// directory-only.
const watchMask = unix.IN_ATTRIB | unix.IN_CREATE | unix.IN_DELETE |
	unix.IN_DELETE_SELF | unix.IN_MODIFY | unix.IN_MOVE_SELF |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_DONT_FOLLOW | unix.IN_EXCL_UNLINK | unix.IN_ONLYDIR

// ingestor owns the inotify handle, an epoll multiplexer over it and a
// self-pipe wake token, and the concurrent watch-descriptor-to-path map
// (spec.md §4.1). It is adapted from the teacher's
// pkg/filesystem/watching/internal/third_party/notify/event_inotify.go
// (raw constants) and from fsnotify's inotify_poller.go (the epoll+pipe
// wake idiom), reimplemented against golang.org/x/sys/unix instead of the
// bare syscall package.
type ingestor struct {
	fd   int
	epfd int
	pipe [2]int

	mu    sync.Mutex
	paths map[int32]CanonicalPath

	logger *logging.Logger
}

func newIngestor(logger *logging.Logger) (*ingestor, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, "inotify_init1")
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "epoll_create1")
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		unix.Close(epfd)
		return nil, errors.Wrap(err, "pipe2")
	}

	in := &ingestor{fd: fd, epfd: epfd, pipe: fds, paths: make(map[int32]CanonicalPath, 256), logger: logger}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN}); err != nil {
		in.close()
		return nil, errors.Wrap(err, "epoll_ctl")
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fds[0], &unix.EpollEvent{Fd: int32(fds[0]), Events: unix.EPOLLIN}); err != nil {
		in.close()
		return nil, errors.Wrap(err, "epoll_ctl")
	}
	return in, nil
}

func (in *ingestor) close() {
	unix.Close(in.pipe[1])
	unix.Close(in.pipe[0])
	unix.Close(in.epfd)
	unix.Close(in.fd)
}

// wake interrupts a blocked epoll_wait, used by Shutdown (spec.md §5).
func (in *ingestor) wake() error {
	_, err := unix.Write(in.pipe[1], []byte{0})
	if err != nil && err != unix.EAGAIN {
		return errors.Wrap(err, "write wake pipe")
	}
	return nil
}

func (in *ingestor) clearWake() {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(in.pipe[0], buf)
		if n <= 0 || err != nil {
			return
		}
	}
}

// addWatch registers dir with the kernel, per spec.md §4.1. Out-of-resources
// is surfaced as a user-actionable error; inserting the mapping is atomic
// with respect to other watches since it happens under in.mu.
func (in *ingestor) addWatch(dir CanonicalPath) error {
	wd, err := unix.InotifyAddWatch(in.fd, dir.String(), watchMask)
	if err != nil {
		if err == unix.ENOSPC {
			return errors.New("filesentry: watch limit reached; raise the watches-per-user limit or tighten the filter")
		}
		return errors.Wrapf(err, "watch %s", dir)
	}
	in.mu.Lock()
	in.paths[int32(wd)] = dir
	in.mu.Unlock()
	return nil
}

// wait blocks until the inotify fd or the wake pipe is readable, returning
// true if the inotify fd itself has data (spec.md §4.1's "multiplexed poll
// of (a) the kernel notification fd and (b) a wake-up token").
func (in *ingestor) wait() (readable bool, err error) {
	var events [2]unix.EpollEvent
	for {
		n, err := unix.EpollWait(in.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, errors.Wrap(err, "epoll_wait")
		}
		ready := false
		for i := 0; i < n; i++ {
			switch int(events[i].Fd) {
			case in.fd:
				ready = true
			case in.pipe[0]:
				in.clearWake()
			}
		}
		return ready, nil
	}
}

// decoded is one inotify event paired with the child name the kernel
// attached to it, if any.
type decoded struct {
	wd   int32
	mask uint32
	name string
}

// read decodes the pending inotify events returned by a single read of the
// fd into a buffer of 64 maximum-size events; anything that doesn't fit
// stays queued and is read on the next poll cycle. It matches the fsnotify
// readEvents() raw-buffer decode idiom but against golang.org/x/sys/unix.
func (in *ingestor) read() ([]decoded, error) {
	var buf [64 * (unix.SizeofInotifyEvent + unix.PathMax)]byte
	n, err := unix.Read(in.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read inotify fd")
	}
	if n < unix.SizeofInotifyEvent {
		return nil, nil
	}

	var out []decoded
	var offset uint32
	for offset <= uint32(n)-unix.SizeofInotifyEvent {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := raw.Len
		var name string
		if nameLen > 0 {
			nameBytes := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			name = strings.TrimRight(string(nameBytes), "\x00")
		}
		out = append(out, decoded{wd: raw.Wd, mask: raw.Mask, name: name})
		offset += unix.SizeofInotifyEvent + nameLen
	}
	return out, nil
}

// translate converts one decoded inotify event into a pending-changes
// mutation, per spec.md §4.1's decision table.
func (in *ingestor) translate(e decoded, filter Filter, pending *pendingChangesLock) {
	if e.mask&unix.IN_Q_OVERFLOW != 0 {
		in.logger.Warnf("inotify queue overflow; forcing full recrawl")
		pending.setRecrawl()
		return
	}

	in.mu.Lock()
	dir, known := in.paths[e.wd]
	in.mu.Unlock()

	if !known || e.mask&(unix.IN_IGNORED|unix.IN_MOVE_SELF) != 0 {
		if e.mask&unix.IN_IGNORED != 0 {
			in.mu.Lock()
			delete(in.paths, e.wd)
			in.mu.Unlock()
		}
		if known {
			pending.addWatcher(dir, FlagNeedsRecursiveCrawl)
			return
		}
		in.logger.Warnf("unknown watch descriptor; forcing full recrawl")
		pending.setRecrawl()
		return
	}

	if e.mask&(unix.IN_DELETE_SELF) != 0 || e.name == "" {
		pending.addWatcher(dir, FlagNeedsRecursiveCrawl)
		return
	}

	childPath := dir.Join(e.name)
	isDir := e.mask&unix.IN_ISDIR != 0
	if filter.IgnorePath(childPath, &isDir) {
		return
	}
	if e.mask&(unix.IN_CREATE|unix.IN_DELETE|unix.IN_MOVED_FROM|unix.IN_MOVED_TO) != 0 {
		pending.addWatcher(childPath, FlagNeedsRecursiveCrawl)
	} else {
		pending.addWatcher(childPath, 0)
	}
}

// run is the ingestor's event loop (spec.md §4.1), executed on its own
// goroutine. It exits once shutdown returns true.
func (in *ingestor) run(configRef *config, pending *pendingChangesLock, shutdown func() bool) {
	defer in.close()
	for {
		if shutdown() {
			return
		}
		ready, err := in.wait()
		if err != nil {
			in.logger.Errorf("ingestor poll failed: %v", err)
			return
		}
		if shutdown() {
			return
		}
		if !ready {
			continue
		}
		filter := configRef.snapshotFilter()
		events, err := in.read()
		if err != nil {
			in.logger.Errorf("ingestor read failed: %v", err)
			return
		}
		for _, e := range events {
			in.translate(e, filter, pending)
		}
	}
}
