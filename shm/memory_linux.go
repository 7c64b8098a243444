package shm

import (
	"golang.org/x/sys/unix"
)

func allocate(name string, size int) (*Memory, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, err
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, err
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Memory{data: data, fd: fd}, nil
}

func (m *Memory) free() error {
	data := m.data
	m.data = nil

	if err := unix.Munmap(data); err != nil {
		unix.Close(m.fd)
		return err
	}
	return unix.Close(m.fd)
}
