package sampling

import (
	"unsafe"

	"github.com/dennwc/ioctl"
)

var (
	ioctlFsInfo  = ioctl.IOR(btrfsIoctlMagic, 31, unsafe.Sizeof(btrfsIoctlFsInfoArgs{}))
	ioctlDevInfo = ioctl.IOWR(btrfsIoctlMagic, 30, unsafe.Sizeof(btrfsIoctlDevInfoArgs{}))
)

type btrfsIoctlFsInfoArgs struct {
	MaxID          uint64
	NumDevices     uint64
	FSID           [16]byte
	NodeSize       uint32
	SectorSize     uint32
	CloneAlignment uint32
	CsumType       uint16
	CsumSize       uint16
	Flags          uint64
	Generation     uint64
	MetadataUUID   [16]byte
	Reserved       [944]byte
}

const devicePathNameMax = 1024

type btrfsIoctlDevInfoArgs struct {
	DevID      uint64
	UUID       [16]byte
	BytesUsed  uint64
	TotalBytes uint64
	FSID       [16]byte
	Unused     [377]uint64
	Path       [devicePathNameMax]byte
}

// DeviceInfo describes one block device backing the filesystem, as
// reported in a worker's Start frame.
type DeviceInfo struct {
	DevID      uint64
	UUID       [16]byte
	TotalBytes int64
	Path       string
}

// FilesystemInfo is the Start frame's filesystem-wide metadata.
type FilesystemInfo struct {
	UUID    [16]byte
	Devices []DeviceInfo
}

// FilesystemInfo reads the filesystem UUID and per-device info via
// BTRFS_IOC_FS_INFO/BTRFS_IOC_DEV_INFO, used to build the worker's
// Start frame and the physical-mode SLACK zone sizes.
func (c *Capability) FilesystemInfo() (*FilesystemInfo, error) {
	var fsArgs btrfsIoctlFsInfoArgs
	if err := ioctl.Do(c.fsFile, ioctlFsInfo, &fsArgs); err != nil {
		return nil, &IoctlError{Op: "FS_INFO", Errno: err}
	}
	info := &FilesystemInfo{UUID: fsArgs.FSID}
	for devID := uint64(1); devID <= fsArgs.MaxID && uint64(len(info.Devices)) < fsArgs.NumDevices; devID++ {
		var devArgs btrfsIoctlDevInfoArgs
		devArgs.DevID = devID
		if err := ioctl.Do(c.fsFile, ioctlDevInfo, &devArgs); err != nil {
			continue
		}
		n := 0
		for n < len(devArgs.Path) && devArgs.Path[n] != 0 {
			n++
		}
		info.Devices = append(info.Devices, DeviceInfo{
			DevID:      devArgs.DevID,
			UUID:       devArgs.UUID,
			TotalBytes: int64(devArgs.TotalBytes),
			Path:       string(devArgs.Path[:n]),
		})
	}
	return info, nil
}

// DeviceSizeMap is a convenience accessor for EnumerateDeviceExtents'
// SLACK-zone computation, keyed by device id.
func (fi *FilesystemInfo) DeviceSizeMap() map[uint64]int64 {
	m := make(map[uint64]int64, len(fi.Devices))
	for _, d := range fi.Devices {
		m[d.DevID] = d.TotalBytes
	}
	return m
}
