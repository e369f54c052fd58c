package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/containerd/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gamer07340/xv6go/kernel/bcache"
	"github.com/gamer07340/xv6go/kernel/blockdev"
	"github.com/gamer07340/xv6go/kernel/fsinode"
	"github.com/gamer07340/xv6go/kernel/journal"
	"github.com/gamer07340/xv6go/kernel/mount"
	"github.com/gamer07340/xv6go/kernel/passwd"
	"github.com/gamer07340/xv6go/xv6fs"
)

// boot wires the disk image through kernel/blockdev, kernel/bcache,
// kernel/journal and kernel/fsinode into a mount.Table, the same sequence
// kernel/trap's own test harness uses to stand up a filesystem, then serves
// it at the mount point via xv6fs. kernel/trap's syscall dispatcher is its
// own fully self-contained boundary (covered by its package's tests); this
// binary's job is the FUSE bridge, so it boots only what xv6fs needs.
func boot(ctx context.Context, c *Config) error {
	const logDev = 0

	bdev, err := blockdev.Open(c.DiskImage, int64(c.DiskBlocks)*fsinode.BlockSize, 0)
	if err != nil {
		return fmt.Errorf("opening disk image: %w", err)
	}
	defer bdev.Close()

	cache := bcache.New(bdev, 128)

	jlog, err := journal.Open(cache, logDev, 2, uint64(c.LogBlocks))
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}

	var root *fsinode.FS
	if c.Format {
		root, err = fsinode.Format(cache, jlog, logDev, c.DiskBlocks, c.Inodes, c.LogBlocks)
		if err != nil {
			return fmt.Errorf("formatting filesystem: %w", err)
		}
		log.L.WithField("blocks", c.DiskBlocks).WithField("inodes", c.Inodes).Info("xv6kernel: formatted disk image")
	} else {
		root, err = fsinode.Open(cache, jlog, logDev)
		if err != nil {
			return fmt.Errorf("opening filesystem: %w", err)
		}
	}

	mounts := mount.NewTable(root)

	var users *passwd.Database
	if c.PasswdFile != "" {
		data, err := os.ReadFile(c.PasswdFile)
		if err != nil {
			return fmt.Errorf("reading passwd file: %w", err)
		}
		users, err = passwd.Parse(data)
		if err != nil {
			return fmt.Errorf("parsing passwd file: %w", err)
		}
	}

	if c.MetricsAddr != "" {
		go serveMetrics(c.MetricsAddr)
	}

	return serve(ctx, c, xv6fs.New(mounts, users))
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.L.WithField("addr", addr).Info("xv6kernel: serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.L.WithError(err).Error("xv6kernel: metrics server exited")
	}
}

// serve mounts fsys at c.MountPoint and runs fs.Serve until the connection
// closes, mirroring bazil.org/fuse's own hellofs example: FSName/Subtype
// identify the filesystem to the host, DefaultPermissions delegates POSIX
// permission enforcement to the host kernel's VFS layer rather than xv6fs
// re-checking kernel/perm itself.
func serve(ctx context.Context, c *Config, fsys *xv6fs.FileSystem) error {
	opts := []fuse.MountOption{
		fuse.FSName("xv6fs"),
		fuse.Subtype("xv6fs"),
		fuse.DefaultPermissions(),
	}
	if c.AllowOther {
		opts = append(opts, fuse.AllowOther())
	}

	conn, err := fuse.Mount(c.MountPoint, opts...)
	if err != nil {
		return fmt.Errorf("mounting at %s: %w", c.MountPoint, err)
	}
	defer conn.Close()

	sessionID := uuid.New().String()
	log.L.WithField("session", sessionID).WithField("mountpoint", c.MountPoint).WithField("disk", c.DiskImage).Info("xv6kernel: serving")

	errc := make(chan error, 1)
	go func() { errc <- fusefs.Serve(conn, fsys) }()

	select {
	case <-ctx.Done():
		fuse.Unmount(c.MountPoint)
		return <-errc
	case err := <-errc:
		return err
	}
}
