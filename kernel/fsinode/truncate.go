package fsinode

// Truncate resizes ip to exactly size bytes (ftruncate, the setattr(size=)
// half of xv6fs's FUSE bridge — the original syscall list has no ftruncate,
// but a FUSE filesystem's setattr callback needs one). Growing zero-fills
// the gap through the ordinary WriteI path; shrinking to zero reuses the
// existing itrunc (trunc); shrinking to a non-zero size frees every block
// whose logical index is at or beyond the new block count, across the
// direct, single-indirect and double-indirect tiers bmap addresses.
func (fs *FS) Truncate(ip *Inode, size uint32) error {
	switch {
	case size == ip.dinode.Size:
		return nil
	case size == 0:
		fs.trunc(ip)
		return nil
	case size > ip.dinode.Size:
		return fs.growZeroFill(ip, size)
	default:
		return fs.shrink(ip, size)
	}
}

// growZeroFill extends ip to size by writing zero bytes from the old EOF to
// the new one, letting WriteI's existing bmap-on-demand allocation handle
// every block boundary.
func (fs *FS) growZeroFill(ip *Inode, size uint32) error {
	gap := size - ip.dinode.Size
	off := ip.dinode.Size
	zero := make([]byte, BlockSize)
	for gap > 0 {
		n := gap
		if n > BlockSize {
			n = BlockSize
		}
		written, err := ip.WriteI(zero[:n], off, n)
		if err != nil {
			return err
		}
		off += uint32(written)
		gap -= uint32(written)
	}
	return nil
}

// shrink frees every block at or beyond newSize's block count and resets
// ip.dinode.Size, leaving blocks before that boundary untouched.
func (fs *FS) shrink(ip *Inode, newSize uint32) error {
	keepBlocks := (newSize + BlockSize - 1) / BlockSize

	for i := uint32(0); i < NDirect; i++ {
		if i >= keepBlocks && ip.dinode.Addrs[i] != 0 {
			if err := bfree(fs.cache, fs.log, fs.dev, fs.sb, ip.dinode.Addrs[i]); err != nil {
				return err
			}
			ip.dinode.Addrs[i] = 0
		}
	}

	if err := fs.shrinkIndirect(ip, NDirect, NDirect, keepBlocks); err != nil {
		return err
	}
	if err := fs.shrinkDoubleIndirect(ip, NDirect+1, NDirect+NIndirect1, keepBlocks); err != nil {
		return err
	}

	ip.dinode.Size = newSize
	return fs.update(ip)
}

// shrinkIndirect frees entries in the single-indirect block at slot whose
// absolute logical block number (base+entry index) is at or beyond
// keepBlocks, freeing the indirect block itself once every entry is gone.
func (fs *FS) shrinkIndirect(ip *Inode, slot int, base uint32, keepBlocks uint32) error {
	if ip.dinode.Addrs[slot] == 0 {
		return nil
	}
	buf, err := fs.cache.Read(fs.dev, uint64(ip.dinode.Addrs[slot]))
	if err != nil {
		return err
	}
	anyLeft := false
	for i := 0; i < pointersPerBlock; i++ {
		logical := base + uint32(i)
		a := readBlockPtr(buf.Data(), i)
		if a == 0 {
			continue
		}
		if logical >= keepBlocks {
			if err := bfree(fs.cache, fs.log, fs.dev, fs.sb, a); err != nil {
				fs.cache.Release(buf)
				return err
			}
			writeBlockPtr(buf.Data(), i, 0)
			fs.log.Write(buf)
		} else {
			anyLeft = true
		}
	}
	fs.cache.Release(buf)
	if !anyLeft && base < keepBlocks+pointersPerBlock {
		if err := bfree(fs.cache, fs.log, fs.dev, fs.sb, ip.dinode.Addrs[slot]); err != nil {
			return err
		}
		ip.dinode.Addrs[slot] = 0
	}
	return nil
}

// shrinkDoubleIndirect mirrors shrinkIndirect one tier deeper: base is the
// logical block number of the double-indirect tier's first entry.
func (fs *FS) shrinkDoubleIndirect(ip *Inode, slot int, base uint32, keepBlocks uint32) error {
	if ip.dinode.Addrs[slot] == 0 {
		return nil
	}
	obuf, err := fs.cache.Read(fs.dev, uint64(ip.dinode.Addrs[slot]))
	if err != nil {
		return err
	}
	anyOuterLeft := false
	for outer := 0; outer < pointersPerBlock; outer++ {
		mid := readBlockPtr(obuf.Data(), outer)
		if mid == 0 {
			continue
		}
		midBase := base + uint32(outer)*pointersPerBlock
		ibuf, err := fs.cache.Read(fs.dev, uint64(mid))
		if err != nil {
			fs.cache.Release(obuf)
			return err
		}
		anyInnerLeft := false
		for inner := 0; inner < pointersPerBlock; inner++ {
			logical := midBase + uint32(inner)
			a := readBlockPtr(ibuf.Data(), inner)
			if a == 0 {
				continue
			}
			if logical >= keepBlocks {
				if err := bfree(fs.cache, fs.log, fs.dev, fs.sb, a); err != nil {
					fs.cache.Release(ibuf)
					fs.cache.Release(obuf)
					return err
				}
				writeBlockPtr(ibuf.Data(), inner, 0)
				fs.log.Write(ibuf)
			} else {
				anyInnerLeft = true
			}
		}
		fs.cache.Release(ibuf)
		if !anyInnerLeft {
			if err := bfree(fs.cache, fs.log, fs.dev, fs.sb, mid); err != nil {
				fs.cache.Release(obuf)
				return err
			}
			writeBlockPtr(obuf.Data(), outer, 0)
			fs.log.Write(obuf)
		} else {
			anyOuterLeft = true
		}
	}
	fs.cache.Release(obuf)
	if !anyOuterLeft {
		if err := bfree(fs.cache, fs.log, fs.dev, fs.sb, ip.dinode.Addrs[slot]); err != nil {
			return err
		}
		ip.dinode.Addrs[slot] = 0
	}
	return nil
}
