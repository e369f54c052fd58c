// Package fsinode is the on-disk inode/directory layer of spec §4.10: dinode
// layout with direct, single-indirect and double-indirect block mapping, a
// packed free-block bitmap, directory entries, and path resolution that
// hands off at mount boundaries (see kernel/mount).
package fsinode

import (
	"encoding/binary"

	"github.com/gamer07340/xv6go/kernel/bcache"
	"github.com/gamer07340/xv6go/kernel/journal"
	"github.com/gamer07340/xv6go/kernel/kerr"
)

const (
	// BlockSize matches blockdev.SectorSize; kept as its own constant so
	// this package doesn't need to import blockdev just for the number.
	BlockSize = 512

	// NDirect is the count of direct block pointers a dinode carries.
	NDirect = 12
	// pointersPerBlock is how many uint32 block numbers fit in one block,
	// used for both the indirect/double-indirect mapping and the bitmap.
	pointersPerBlock = BlockSize / 4
	// NIndirect1/NIndirect2 are the block counts reachable through the
	// single and double indirect pointers respectively.
	NIndirect1 = pointersPerBlock
	NIndirect2 = pointersPerBlock * pointersPerBlock
	// MaxFileBlocks is the number of logical blocks a file may address.
	MaxFileBlocks = NDirect + NIndirect1 + NIndirect2

	// DinodeSize is the packed on-disk size of one dinode, chosen so IPB
	// divides the block evenly: 2(type)+2(major)+2(minor)+2(nlink)+
	// 4(size)+4(uid)+4(gid)+4(mode)+4*(NDirect+2 addrs) = 24+56 = 80,
	// rounded up to 128 so IPB (512/128 = 4) divides the block without a
	// remainder; see dinode.marshal for the exact field order.
	DinodeSize = 128
	// IPB is dinodes packed per block.
	IPB = BlockSize / DinodeSize

	// DirentNameLen is the bounded name length in a directory entry.
	DirentNameLen = 14
	// DirentSize is 2 (inum) + DirentNameLen.
	DirentSize = 2 + DirentNameLen
)

// InodeType discriminates what a dinode represents.
type InodeType uint16

const (
	TypeFree InodeType = iota
	TypeFile
	TypeDir
	TypeDevice
)

// SuperBlock is spec §6's block-1 layout.
type SuperBlock struct {
	Size       uint32 // total blocks on this device
	NBlocks    uint32 // data blocks
	NInodes    uint32 // inode slots
	NLog       uint32 // log blocks (including header)
	LogStart   uint32
	InodeStart uint32
	BmapStart  uint32
}

func (sb SuperBlock) marshal() [BlockSize]byte {
	var buf [BlockSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], sb.Size)
	binary.LittleEndian.PutUint32(buf[4:8], sb.NBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], sb.NInodes)
	binary.LittleEndian.PutUint32(buf[12:16], sb.NLog)
	binary.LittleEndian.PutUint32(buf[16:20], sb.LogStart)
	binary.LittleEndian.PutUint32(buf[20:24], sb.InodeStart)
	binary.LittleEndian.PutUint32(buf[24:28], sb.BmapStart)
	return buf
}

func unmarshalSuperBlock(buf []byte) SuperBlock {
	return SuperBlock{
		Size:       binary.LittleEndian.Uint32(buf[0:4]),
		NBlocks:    binary.LittleEndian.Uint32(buf[4:8]),
		NInodes:    binary.LittleEndian.Uint32(buf[8:12]),
		NLog:       binary.LittleEndian.Uint32(buf[12:16]),
		LogStart:   binary.LittleEndian.Uint32(buf[16:20]),
		InodeStart: binary.LittleEndian.Uint32(buf[20:24]),
		BmapStart:  binary.LittleEndian.Uint32(buf[24:28]),
	}
}

// dinode is the on-disk inode record of spec §4.10.
type dinode struct {
	Type  InodeType
	Major uint16
	Minor uint16
	Nlink uint16
	Size  uint32
	Uid   uint32
	Gid   uint32
	Mode  uint32
	Addrs [NDirect + 2]uint32 // direct..., then single-indirect, double-indirect
}

func (d dinode) marshal() []byte {
	buf := make([]byte, DinodeSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(d.Type))
	binary.LittleEndian.PutUint16(buf[2:4], d.Major)
	binary.LittleEndian.PutUint16(buf[4:6], d.Minor)
	binary.LittleEndian.PutUint16(buf[6:8], d.Nlink)
	binary.LittleEndian.PutUint32(buf[8:12], d.Size)
	binary.LittleEndian.PutUint32(buf[12:16], d.Uid)
	binary.LittleEndian.PutUint32(buf[16:20], d.Gid)
	binary.LittleEndian.PutUint32(buf[20:24], d.Mode)
	off := 24
	for _, a := range d.Addrs {
		binary.LittleEndian.PutUint32(buf[off:off+4], a)
		off += 4
	}
	return buf
}

func unmarshalDinode(buf []byte) dinode {
	var d dinode
	d.Type = InodeType(binary.LittleEndian.Uint16(buf[0:2]))
	d.Major = binary.LittleEndian.Uint16(buf[2:4])
	d.Minor = binary.LittleEndian.Uint16(buf[4:6])
	d.Nlink = binary.LittleEndian.Uint16(buf[6:8])
	d.Size = binary.LittleEndian.Uint32(buf[8:12])
	d.Uid = binary.LittleEndian.Uint32(buf[12:16])
	d.Gid = binary.LittleEndian.Uint32(buf[16:20])
	d.Mode = binary.LittleEndian.Uint32(buf[20:24])
	off := 24
	for i := range d.Addrs {
		d.Addrs[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	return d
}

// dinodeBlock is the block number holding inum's dinode.
func dinodeBlock(sb SuperBlock, inum uint32) uint32 {
	return sb.InodeStart + inum/IPB
}

// Dirent is one fixed-width directory entry (spec §6): Inum==0 means free.
type Dirent struct {
	Inum uint32
	Name string
}

func marshalDirent(d Dirent) []byte {
	buf := make([]byte, DirentSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(d.Inum))
	n := copy(buf[2:], d.Name)
	_ = n
	return buf
}

func unmarshalDirent(buf []byte) Dirent {
	inum := binary.LittleEndian.Uint16(buf[0:2])
	end := 2
	for end < DirentSize && buf[end] != 0 {
		end++
	}
	return Dirent{Inum: uint32(inum), Name: string(buf[2:end])}
}

// readBlockPtr/writeBlockPtr read or write one little-endian uint32 out of
// an indirect block at the given pointer slot.
func readBlockPtr(data []byte, slot int) uint32 {
	return binary.LittleEndian.Uint32(data[slot*4 : slot*4+4])
}

func writeBlockPtr(data []byte, slot int, v uint32) {
	binary.LittleEndian.PutUint32(data[slot*4:slot*4+4], v)
}

// nBitmapBlocks is how many blocks the bitmap region occupies for a
// filesystem with the given number of data blocks.
func nBitmapBlocks(nDataBlocks uint32) uint32 {
	return (nDataBlocks + pointersPerBlock*8 - 1) / (pointersPerBlock * 8)
}

// dataStart is the first absolute block number of the data region, which
// sits immediately after the bitmap (spec §6's on-disk layout order).
func dataStart(sb SuperBlock) uint32 {
	return sb.BmapStart + nBitmapBlocks(sb.NBlocks)
}

// balloc finds and marks the first free bit in the bitmap starting at
// sb.BmapStart, LSB-first within a byte, as spec §4.10 describes, and
// returns the absolute block number (relative index + dataStart).
func balloc(cache *bcache.Cache, log *journal.Log, dev int, sb SuperBlock) (uint32, error) {
	base := dataStart(sb)
	for b := uint32(0); b < sb.NBlocks; b += pointersPerBlock * 8 {
		bn := sb.BmapStart + b/(pointersPerBlock*8)
		buf, err := cache.Read(dev, uint64(bn))
		if err != nil {
			return 0, err
		}
		data := buf.Data()
		for bi := 0; bi < pointersPerBlock*8 && b+uint32(bi) < sb.NBlocks; bi++ {
			byteIdx, bitIdx := bi/8, uint(bi%8)
			if data[byteIdx]&(1<<bitIdx) == 0 {
				data[byteIdx] |= 1 << bitIdx
				log.Write(buf)
				cache.Release(buf)
				return base + b + uint32(bi), nil
			}
		}
		cache.Release(buf)
	}
	return 0, kerr.ErrNoSpace
}

// bfree clears blockno's (absolute) bit in the bitmap.
func bfree(cache *bcache.Cache, log *journal.Log, dev int, sb SuperBlock, blockno uint32) error {
	rel := blockno - dataStart(sb)
	bn := sb.BmapStart + rel/(pointersPerBlock*8)
	buf, err := cache.Read(dev, uint64(bn))
	if err != nil {
		return err
	}
	bi := int(rel % (pointersPerBlock * 8))
	byteIdx, bitIdx := bi/8, uint(bi%8)
	data := buf.Data()
	if data[byteIdx]&(1<<bitIdx) == 0 {
		cache.Release(buf)
		panic("fsinode: freeing already-free block")
	}
	data[byteIdx] &^= 1 << bitIdx
	log.Write(buf)
	cache.Release(buf)
	return nil
}

// countFreeBits sums unset bits across the whole bitmap region, used by
// tests to check spec §8's "free bits + reachable blocks = total" invariant.
func countFreeBits(cache *bcache.Cache, dev int, sb SuperBlock) (int, error) {
	free := 0
	nbitmapBlocks := (sb.NBlocks + pointersPerBlock*8 - 1) / (pointersPerBlock * 8)
	for i := uint32(0); i < nbitmapBlocks; i++ {
		buf, err := cache.Read(dev, uint64(sb.BmapStart+i))
		if err != nil {
			return 0, err
		}
		data := buf.Data()
		for bi := 0; bi < pointersPerBlock*8; bi++ {
			blockno := i*pointersPerBlock*8 + uint32(bi)
			if blockno >= sb.NBlocks {
				break
			}
			byteIdx, bitIdx := bi/8, uint(bi%8)
			if data[byteIdx]&(1<<bitIdx) == 0 {
				free++
			}
		}
		cache.Release(buf)
	}
	return free, nil
}
