// Package blockdev implements the block-granular device interface and
// the byte-granular Disk built on top of it (spec §4.F). The request/ack
// channel shape is grounded on biscuit/src/fs/blk.go's Bdev_req_t/Disk_i
// (MkRequest, Start, AckCh), generalized from biscuit's page-cache-backed
// blocks to a plain byte-slice block since this kernel has no separate
// page cache layer of its own yet.
package blockdev

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"rvkernel/internal/errno"
)

// BlkDevice is the minimal block-granular device contract: fixed-size
// blocks addressed by index.
type BlkDevice interface {
	ReadBlk(blk int, buf []byte) errno.Errno
	WriteBlk(blk int, buf []byte) errno.Errno
	BlkSize() int
	BlkCount() int
}

// Cmd enumerates disk request types, named after
// biscuit/src/fs/blk.go's Bdevcmd_t.
type Cmd int

const (
	CmdRead Cmd = iota
	CmdWrite
	CmdFlush
)

// Req is a single block I/O request. AckCh is closed when the request
// completes, mirroring Bdev_req_t's AckCh-based synchronization.
type Req struct {
	Cmd   Cmd
	Blk   int
	Buf   []byte
	Err   errno.Errno
	AckCh chan struct{}
}

// NewReq allocates a request with an unbuffered ack channel.
func NewReq(cmd Cmd, blk int, buf []byte) *Req {
	return &Req{Cmd: cmd, Blk: blk, Buf: buf, AckCh: make(chan struct{})}
}

// Disk starts asynchronous block requests against a BlkDevice, bounding
// in-flight I/O with a semaphore (spec §3's concurrency model; grounded
// on the pack's shared use of golang.org/x/sync/semaphore for bounded
// worker concurrency).
type Disk struct {
	dev BlkDevice
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewDisk wraps dev with at most maxInFlight concurrent requests.
func NewDisk(dev BlkDevice, maxInFlight int64) *Disk {
	return &Disk{dev: dev, sem: semaphore.NewWeighted(maxInFlight)}
}

// Start dispatches req asynchronously; the caller waits on req.AckCh for
// completion, as biscuit callers wait on Bdev_req_t.AckCh.
func (d *Disk) Start(ctx context.Context, req *Req) bool {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		switch req.Cmd {
		case CmdRead:
			req.Err = d.dev.ReadBlk(req.Blk, req.Buf)
		case CmdWrite:
			req.Err = d.dev.WriteBlk(req.Blk, req.Buf)
		case CmdFlush:
			// no write-back cache in this simulation: nothing to flush
		}
		close(req.AckCh)
	}()
	return true
}

// Wait blocks until all requests started on this Disk have completed.
func (d *Disk) Wait() { d.wg.Wait() }

// ReadBlkSync is a synchronous convenience wrapper over Start/AckCh,
// mirroring Bdev_block_t.Read's synchronous style.
func (d *Disk) ReadBlkSync(ctx context.Context, blk int, buf []byte) errno.Errno {
	req := NewReq(CmdRead, blk, buf)
	if !d.Start(ctx, req) {
		return errno.EIO
	}
	<-req.AckCh
	return req.Err
}

// WriteBlkSync is a synchronous convenience wrapper over Start/AckCh.
func (d *Disk) WriteBlkSync(ctx context.Context, blk int, buf []byte) errno.Errno {
	req := NewReq(CmdWrite, blk, buf)
	if !d.Start(ctx, req) {
		return errno.EIO
	}
	<-req.AckCh
	return req.Err
}

// ByteDisk layers byte-granular ReadAt/WriteAt over a block-granular
// BlkDevice, handling partial head and tail blocks by read-modify-write
// in a plain synchronous loop (one blocking block request at a time).
type ByteDisk struct {
	disk     *Disk
	blkSize  int
	blkCount int
}

// NewByteDisk wraps disk for byte-addressed access.
func NewByteDisk(disk *Disk, dev BlkDevice) *ByteDisk {
	return &ByteDisk{disk: disk, blkSize: dev.BlkSize(), blkCount: dev.BlkCount()}
}

// ReadAt reads len(p) bytes starting at byte offset off, handling
// partial head/tail blocks.
func (b *ByteDisk) ReadAt(ctx context.Context, off int64, p []byte) errno.Errno {
	blk := make([]byte, b.blkSize)
	remaining := p
	cur := off
	for len(remaining) > 0 {
		blkNo := int(cur / int64(b.blkSize))
		blkOff := int(cur % int64(b.blkSize))
		if err := b.disk.ReadBlkSync(ctx, blkNo, blk); err != 0 {
			return err
		}
		n := copy(remaining, blk[blkOff:])
		remaining = remaining[n:]
		cur += int64(n)
	}
	return 0
}

// WriteAt writes len(p) bytes starting at byte offset off, doing a
// read-modify-write on any partially-covered head/tail block.
func (b *ByteDisk) WriteAt(ctx context.Context, off int64, p []byte) errno.Errno {
	blk := make([]byte, b.blkSize)
	remaining := p
	cur := off
	for len(remaining) > 0 {
		blkNo := int(cur / int64(b.blkSize))
		blkOff := int(cur % int64(b.blkSize))
		n := len(remaining)
		if blkOff+n > b.blkSize {
			n = b.blkSize - blkOff
		}
		if blkOff != 0 || n != b.blkSize {
			if err := b.disk.ReadBlkSync(ctx, blkNo, blk); err != 0 {
				return err
			}
		}
		copy(blk[blkOff:blkOff+n], remaining[:n])
		if err := b.disk.WriteBlkSync(ctx, blkNo, blk); err != 0 {
			return err
		}
		remaining = remaining[n:]
		cur += int64(n)
	}
	return 0
}
