//go:build linux

package input

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// pollTimeoutMS bounds each epoll_wait so cancellation is noticed.
const pollTimeoutMS = 250

// ReadDevices reads events from all files with a single epoll loop until
// ctx is canceled or a device fails.
func ReadDevices(ctx context.Context, files []*os.File, events chan<- Event) error {
	if len(files) == 0 {
		return errors.New("no input devices provided")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
		}
	}

	const maxEvents = 16
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, EventSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, pollTimeoutMS)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s", f.Name())
			}

			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			ev, err := DecodeEvent(buf)
			if err != nil {
				// Skip malformed events
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
