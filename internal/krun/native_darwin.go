//go:build darwin && cgo

package krun

/*
#cgo LDFLAGS: -lkrun
#include <stdlib.h>

unsigned int krun_create_ctx(void);
int krun_free_ctx(unsigned int ctx_id);
int krun_set_vm_config(unsigned int ctx_id, unsigned char num_vcpus, unsigned int ram_mib);
int krun_set_root(unsigned int ctx_id, const char *root_path);
int krun_set_workdir(unsigned int ctx_id, const char *workdir_path);
int krun_set_exec(unsigned int ctx_id, const char *exec_path, const char *const argv[], const char *const envp[]);
int krun_add_virtiofs(unsigned int ctx_id, const char *tag, const char *path);
int krun_set_port_map(unsigned int ctx_id, const char *port_map);
int krun_start_enter(unsigned int ctx_id);
*/
import "C"

import (
	"runtime"
	"unsafe"
)

// Supported returns whether the libkrun native library is linked on this
// platform.
func Supported() bool { return true }

// NewNative returns the real libkrun implementation of API.
func NewNative() API { return native{} }

type native struct{}

func (native) CreateCtx() uint32 {
	return uint32(C.krun_create_ctx())
}

func (native) FreeCtx(ctxID uint32) int32 {
	return int32(C.krun_free_ctx(C.uint(ctxID)))
}

func (native) SetVMConfig(ctxID uint32, vcpus uint8, ramMiB uint32) int32 {
	return int32(C.krun_set_vm_config(C.uint(ctxID), C.uchar(vcpus), C.uint(ramMiB)))
}

func (native) SetRoot(ctxID uint32, rootPath string) int32 {
	buf, err := NullTerminated(rootPath)
	if err != nil {
		return -1
	}
	ret := int32(C.krun_set_root(C.uint(ctxID), (*C.char)(unsafe.Pointer(&buf[0]))))
	runtime.KeepAlive(buf)
	return ret
}

func (native) SetWorkdir(ctxID uint32, workdirPath string) int32 {
	buf, err := NullTerminated(workdirPath)
	if err != nil {
		return -1
	}
	ret := int32(C.krun_set_workdir(C.uint(ctxID), (*C.char)(unsafe.Pointer(&buf[0]))))
	runtime.KeepAlive(buf)
	return ret
}

func (native) SetExec(ctxID uint32, execPath string, argv, envp []string) int32 {
	cPath := C.CString(execPath)
	defer C.free(unsafe.Pointer(cPath))

	cArgv, freeArgv := newCStringArray(argv)
	defer freeArgv()
	cEnvp, freeEnvp := newCStringArray(envp)
	defer freeEnvp()

	return int32(C.krun_set_exec(C.uint(ctxID), cPath, &cArgv[0], &cEnvp[0]))
}

func (native) AddVirtiofs(ctxID uint32, tag, path string) int32 {
	cTag := C.CString(tag)
	defer C.free(unsafe.Pointer(cTag))
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	return int32(C.krun_add_virtiofs(C.uint(ctxID), cTag, cPath))
}

func (native) SetPortMap(ctxID uint32, portMap string) int32 {
	buf, err := NullTerminated(portMap)
	if err != nil {
		return -1
	}
	ret := int32(C.krun_set_port_map(C.uint(ctxID), (*C.char)(unsafe.Pointer(&buf[0]))))
	runtime.KeepAlive(buf)
	return ret
}

func (native) StartEnter(ctxID uint32) int32 {
	return int32(C.krun_start_enter(C.uint(ctxID)))
}

// newCStringArray builds a NULL-terminated C string vector. The entries are
// C-allocated so the pointer array itself contains no Go pointers and can be
// handed to the native call. The returned free function must not run before
// the call returns.
func newCStringArray(ss []string) ([]*C.char, func()) {
	arr := make([]*C.char, len(ss)+1)
	for i, s := range ss {
		arr[i] = C.CString(s)
	}
	arr[len(ss)] = nil

	return arr, func() {
		for _, p := range arr[:len(ss)] {
			C.free(unsafe.Pointer(p))
		}
	}
}
