package poller

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// eventfd唤醒通道，Notify可以任意协程调用
type Notifier struct {
	fd int
}

func NewNotifier() (*Notifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Notifier{fd: fd}, nil
}

func (n *Notifier) Fd() int {
	return n.fd
}

func (n *Notifier) Notify() {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], 1)
	for {
		_, err := unix.Write(n.fd, b[:])
		if err != unix.EINTR {
			return
		}
	}
}

// loop协程调用，清空计数
func (n *Notifier) Drain() {
	var b [8]byte
	for {
		_, err := unix.Read(n.fd, b[:])
		if err != unix.EINTR {
			return
		}
	}
}

func (n *Notifier) Close() {
	unix.Close(n.fd)
}
