package ipc

import (
	"os"

	"github.com/rapidaai/runtime/internal/errs"
	"golang.org/x/sys/unix"
)

// shmRegion wraps one file-backed, MAP_SHARED memory mapping (§4.3's
// shared-memory transport). Backing the mapping with a real file rather
// than an anonymous one means a second process opening the same path
// under ShmDir maps the identical bytes — the cross-process half of the
// fabric — while a single process can exercise the whole path purely
// in-memory via tmpfs.
type shmRegion struct {
	file *os.File
	data []byte
	path string
}

func createShmRegion(path string, size int) (*shmRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errs.Wrap(errs.Resource, "", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.Resource, "", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.Resource, "", err)
	}
	return &shmRegion{file: f, data: data, path: path}, nil
}

// grow remaps the region at a larger size, preserving existing bytes.
// Used when a frame's serialized form no longer fits in the current slot
// size (§4.3: "initial_slice_bytes doubling toward max_slice_bytes").
func (r *shmRegion) grow(newSize int) error {
	if err := unix.Munmap(r.data); err != nil {
		return errs.Wrap(errs.Resource, "", err)
	}
	if err := r.file.Truncate(int64(newSize)); err != nil {
		return errs.Wrap(errs.Resource, "", err)
	}
	data, err := unix.Mmap(int(r.file.Fd()), 0, newSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errs.Wrap(errs.Resource, "", err)
	}
	r.data = data
	return nil
}

func (r *shmRegion) close() error {
	if err := unix.Munmap(r.data); err != nil {
		r.file.Close()
		return errs.Wrap(errs.Resource, "", err)
	}
	if err := r.file.Close(); err != nil {
		return errs.Wrap(errs.Resource, "", err)
	}
	return os.Remove(r.path)
}
