// Package fileaio implements the file/aio capability: a pollable,
// frame-oriented sandboxed filesystem service fronted by the ZCL1
// wire protocol (spec.md §4.7, §6).
package fileaio

import (
	"encoding/binary"
	"fmt"
)

// Op numbers for the ZCL1 request protocol (spec.md §4.7).
const (
	OpOpen    = 1
	OpClose   = 2
	OpRead    = 3
	OpWrite   = 4
	OpMkdir   = 5
	OpRmdir   = 6
	OpUnlink  = 7
	OpStat    = 8
	OpReaddir = 9

	// OpDone is the completion op stamped on every DONE frame; the
	// original request op travels in the payload head.
	OpDone = 100
)

const (
	magic       = "ZCL1"
	version     = 1
	headerSize  = 24
	statusOK    = 1
	statusError = 0
)

// Header is the 24-byte ZCL1 frame header (spec.md §6). All
// multi-byte fields are little-endian.
type Header struct {
	Op         uint16
	RID        uint32
	Status     uint32
	Reserved   uint32
	PayloadLen uint32
}

// Encode writes header h followed by payload into a single frame.
func Encode(h Header, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Op)
	binary.LittleEndian.PutUint32(buf[8:12], h.RID)
	binary.LittleEndian.PutUint32(buf[12:16], h.Status)
	binary.LittleEndian.PutUint32(buf[16:20], h.Reserved)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

// Decode parses one full frame (header + payload) from the front of
// buf, returning the header, payload, and number of bytes consumed.
// ok is false if buf does not yet hold a complete frame.
func Decode(buf []byte) (h Header, payload []byte, consumed int, ok bool, err error) {
	if len(buf) < headerSize {
		return Header{}, nil, 0, false, nil
	}
	if string(buf[0:4]) != magic {
		return Header{}, nil, 0, false, fmt.Errorf("fileaio: bad frame magic %q", buf[0:4])
	}
	ver := binary.LittleEndian.Uint16(buf[4:6])
	if ver != version {
		return Header{}, nil, 0, false, fmt.Errorf("fileaio: unsupported frame version %d", ver)
	}
	h.Op = binary.LittleEndian.Uint16(buf[6:8])
	h.RID = binary.LittleEndian.Uint32(buf[8:12])
	h.Status = binary.LittleEndian.Uint32(buf[12:16])
	h.Reserved = binary.LittleEndian.Uint32(buf[16:20])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[20:24])

	total := headerSize + int(h.PayloadLen)
	if len(buf) < total {
		return Header{}, nil, 0, false, nil
	}
	payload = append([]byte(nil), buf[headerSize:total]...)
	return h, payload, total, true, nil
}

// EncodeOK builds a success response frame for op/rid with payload.
func EncodeOK(op uint16, rid uint32, payload []byte) []byte {
	return Encode(Header{Op: op, RID: rid, Status: statusOK}, payload)
}

// EncodeError builds a failure response frame carrying a short
// diagnostic message as its payload (spec.md §4.7 "Error completion").
func EncodeError(op uint16, rid uint32, msg string) []byte {
	return Encode(Header{Op: op, RID: rid, Status: statusError}, []byte(msg))
}

// EncodeDone builds a completion (DONE) frame. payload's first two
// bytes record the original request op so the guest can dispatch the
// completion even though op is uniformly OpDone (spec.md §4.7 "worker
// path").
func EncodeDone(origOp uint16, rid uint32, ok bool, payload []byte) []byte {
	head := make([]byte, 2)
	binary.LittleEndian.PutUint16(head, origOp)
	full := append(head, payload...)
	status := uint32(statusError)
	if ok {
		status = statusOK
	}
	return Encode(Header{Op: OpDone, RID: rid, Status: status}, full)
}
