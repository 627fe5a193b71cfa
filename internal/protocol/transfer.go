package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Adi8712/janus/internal/codec"
)

// ErrFileWriteFailed wraps a write failure encountered while receiving an
// UploadFile's data blocks. The blocks were still fully drained off the
// wire, so the connection stays usable; only this file's eventual ACK
// should report failure.
var ErrFileWriteFailed = errors.New("protocol: file write failed")

// MaxDataBlockSize bounds every DataBlock payload Janus sends, matching
// the archive extractor's ~2 MiB backpressure unit so a single block
// never dominates the bounded channel it ultimately lands in.
const MaxDataBlockSize = 2 << 20

// ClientUploadFile declares and streams one file: the header first,
// then as many DataBlocks as needed to move exactly size bytes from r.
func (c *Connection) ClientUploadFile(nonce uint64, perm uint32, path string, size uint64, r io.Reader) error {
	header := codec.GetUploadFile()
	header.Nonce, header.Perm, header.Size, header.Path = nonce, perm, size, path
	err := c.Send(header)
	codec.Release(header)
	if err != nil {
		return err
	}
	return c.streamDataBlocks(size, r)
}

// ClientUploadArchive declares and streams one packed archive, then
// reads the server's CommonResponse confirming the bytes arrived.
func (c *Connection) ClientUploadArchive(seqID uint64, archive []byte) error {
	if err := c.Send(&codec.UploadArchive{SeqID: seqID, ArchiveSize: uint64(len(archive))}); err != nil {
		return err
	}
	if err := c.streamDataBlocks(uint64(len(archive)), bytes.NewReader(archive)); err != nil {
		return err
	}
	m, err := c.expectType(codec.TypeCommonResponse)
	if err != nil {
		return err
	}
	resp := m.(*codec.CommonResponse)
	code, msg := resp.Code, resp.Msg
	codec.Release(resp)
	if code != codec.CommonResponseCodeSuccess {
		return Fatalf(ErrProtocolMisuse, "upload archive failed: %s", msg)
	}
	return nil
}

func (c *Connection) streamDataBlocks(size uint64, r io.Reader) error {
	buf := make([]byte, MaxDataBlockSize)
	var sent uint64
	for sent < size {
		want := size - sent
		if want > MaxDataBlockSize {
			want = MaxDataBlockSize
		}
		n, err := io.ReadFull(r, buf[:want])
		if err != nil {
			return Fatal(ErrFilesystem, fmt.Errorf("read payload at offset %d: %w", sent, err))
		}
		// block.Payload is pool-owned storage, not an alias into buf: buf
		// keeps getting reused for the next read, and once this block is
		// released another goroutine's decode could reuse the same pooled
		// instance and overwrite whatever backing array Payload pointed at.
		block := codec.GetDataBlock()
		block.Payload = append(block.Payload, buf[:n]...)
		sendErr := c.Send(block)
		codec.Release(block)
		if sendErr != nil {
			return sendErr
		}
		sent += uint64(n)
	}
	return nil
}

// ServerHandleUploadFile receives the DataBlocks following an
// already-received UploadFile header and writes them to w in arrival
// order. It does not itself reply: the server's per-upload ack rides
// the pending-ACK queue drained later by ConfirmFiles.
func (c *Connection) ServerHandleUploadFile(msg *codec.UploadFile, w io.Writer) error {
	return c.recvDataBlocksTo(msg.Size, w)
}

// ServerHandleUploadArchive receives the DataBlocks following an
// already-received UploadArchive header, forwards them into blocks for
// the extractor pool, and acknowledges that the bytes themselves
// arrived intact. Extraction's own success/failure is reported later,
// out of band, via ConfirmArchives.
func (c *Connection) ServerHandleUploadArchive(msg *codec.UploadArchive, blocks chan<- []byte) error {
	if err := c.recvDataBlocksToChannel(msg.ArchiveSize, blocks); err != nil {
		return err
	}
	return c.replyCommonResponse(codec.CommonResponseCodeSuccess, "", nil)
}

// recvDataBlocksTo reads exactly size bytes of DataBlock payloads and
// writes them to w, in arrival order. A write failure does not abort the
// read: the remaining blocks are still drained off the wire (so framing
// stays intact for the next message) and the failure is reported once,
// wrapped in ErrFileWriteFailed, after every block has been consumed.
func (c *Connection) recvDataBlocksTo(size uint64, w io.Writer) error {
	var received uint64
	var writeErr error
	for received < size {
		m, err := c.expectType(codec.TypeDataBlock)
		if err != nil {
			return err
		}
		block := m.(*codec.DataBlock)
		payload := block.Payload
		if received+uint64(len(payload)) > size {
			codec.Release(block)
			return Fatalf(ErrProtocolMisuse, "data block overruns declared size %d", size)
		}
		if writeErr == nil {
			if _, err := w.Write(payload); err != nil {
				writeErr = err
			}
		}
		received += uint64(len(payload))
		codec.Release(block)
	}
	if writeErr != nil {
		return fmt.Errorf("%w: %v", ErrFileWriteFailed, writeErr)
	}
	return nil
}

// recvDataBlocksToChannel reads exactly size bytes of DataBlock payloads
// and forwards each one into blocks, closing it once the declared size is
// fully received. Unlike recvDataBlocksTo, the DataBlock here is
// deliberately never released back to its pool: blocks is drained
// asynchronously by the archive extractor, so the payload slice (and the
// message wrapping it) must outlive this function, not get reset and
// handed to an unrelated decode the moment the extractor falls behind.
func (c *Connection) recvDataBlocksToChannel(size uint64, blocks chan<- []byte) error {
	defer close(blocks)
	var received uint64
	for received < size {
		m, err := c.expectType(codec.TypeDataBlock)
		if err != nil {
			return err
		}
		payload := m.(*codec.DataBlock).Payload
		if received+uint64(len(payload)) > size {
			return Fatalf(ErrProtocolMisuse, "data block overruns declared size %d", size)
		}
		blocks <- payload
		received += uint64(len(payload))
	}
	return nil
}
