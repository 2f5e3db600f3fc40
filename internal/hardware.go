package internal

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

type Device string

const (
	DeviceMPS  Device = "mps"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

func ParseDevice(s string) (Device, error) {
	switch Device(s) {
	case "", "auto":
		return DetectHardware(), nil
	case DeviceMPS, DeviceCUDA, DeviceCPU:
		return Device(s), nil
	default:
		return "", fmt.Errorf("%w: unknown device %q (want auto, cpu, cuda or mps)", ErrConfig, s)
	}
}

func DetectHardware() Device {
	if isMPS() {
		return DeviceMPS
	}
	if isCUDA() {
		return DeviceCUDA
	}
	return DeviceCPU
}

// GPULayers is the number of model layers offloaded to the accelerator.
func (d Device) GPULayers() int32 {
	switch d {
	case DeviceMPS, DeviceCUDA:
		return 99
	default:
		return 0
	}
}

func isMPS() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

func isCUDA() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	return false
}
