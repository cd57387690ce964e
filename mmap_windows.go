//go:build windows

// Memory-mapping for Windows via CreateFileMapping/MapViewOfFile,
// mirroring the teacher's raw-syscall style for platform-specific code
// (see lock_windows.go) rather than introducing a second mmap library.
package kelo

import (
	"syscall"
	"unsafe"
)

var (
	modkernel32dll         = syscall.NewLazyDLL("kernel32.dll")
	procCreateFileMappingW = modkernel32dll.NewProc("CreateFileMappingW")
	procMapViewOfFile      = modkernel32dll.NewProc("MapViewOfFile")
	procUnmapViewOfFile    = modkernel32dll.NewProc("UnmapViewOfFile")
	procFlushViewOfFile    = modkernel32dll.NewProc("FlushViewOfFile")
)

const (
	pageReadonly  = 0x02
	pageReadwrite = 0x04
	fileMapRead   = 0x0004
	fileMapWrite  = 0x0002
)

type mmapHandle struct {
	data    []byte
	mapping syscall.Handle
}

func mmapFile(fd int, size int64, writable bool) (mmapHandle, error) {
	protect := uintptr(pageReadonly)
	access := uintptr(fileMapRead)
	if writable {
		protect = pageReadwrite
		access = fileMapRead | fileMapWrite
	}

	h, _, err := procCreateFileMappingW.Call(
		uintptr(syscall.Handle(fd)),
		0,
		protect,
		uintptr(size>>32),
		uintptr(size&0xFFFFFFFF),
		0,
	)
	if h == 0 {
		return mmapHandle{}, &IoError{Cause: err}
	}
	mapping := syscall.Handle(h)

	addr, _, err := procMapViewOfFile.Call(uintptr(mapping), access, 0, 0, uintptr(size))
	if addr == 0 {
		syscall.CloseHandle(mapping)
		return mmapHandle{}, &IoError{Cause: err}
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return mmapHandle{data: data, mapping: mapping}, nil
}

func (m mmapHandle) sync() error {
	if m.data == nil {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&m.data[0]))
	ok, _, err := procFlushViewOfFile.Call(addr, uintptr(len(m.data)))
	if ok == 0 {
		return &IoError{Cause: err}
	}
	return nil
}

func (m mmapHandle) unmap() error {
	if m.data == nil {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&m.data[0]))
	procUnmapViewOfFile.Call(addr)
	syscall.CloseHandle(m.mapping)
	return nil
}
