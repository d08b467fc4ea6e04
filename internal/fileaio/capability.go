package fileaio

import (
	"github.com/sirtoolchain/sircc/internal/zabi"
)

// ctxState adapts a Context onto the zabi handle table's ReadOps/
// PollOps contract: ReadOps drains whole output frames into the
// guest's read buffer (short reads when the frame doesn't fit, same
// as a stream socket), PollOps reports READABLE/WRITABLE without a
// real OS fd since file/aio's readiness is entirely software-level
// (spec.md §4.7 "Readiness").
type ctxState struct {
	ctx *Context
	buf []byte // leftover bytes from a frame that didn't fully fit the caller's buffer
}

func readOps(c any, p []byte) (int, error) {
	st := c.(*ctxState)
	if len(st.buf) == 0 {
		frame, ok := st.ctx.DrainOutput()
		if !ok {
			return 0, nil
		}
		st.buf = frame
	}
	n := copy(p, st.buf)
	st.buf = st.buf[n:]
	return n, nil
}

func pollOps(c any) (int, zabi.HFlag) {
	st := c.(*ctxState)
	var flags zabi.HFlag
	readable, writable := st.ctx.Ready()
	if readable || len(st.buf) > 0 {
		flags |= zabi.Readable
	}
	if writable {
		flags |= zabi.Writable
	}
	return -1, flags
}

// Opener builds a zabi.Opener for the "file/aio@v1" capability,
// rooted at fsRoot (empty disables sandboxing, spec.md §6
// ZI_FS_ROOT). Registering it is the glue between zABI's cap.open
// surface (component K) and this package's worker (spec.md §4.6,
// §4.7).
func Opener(fsRoot string) func() (zabi.ReadOps, zabi.PollOps, any, zabi.HFlag, func(), error) {
	return func() (zabi.ReadOps, zabi.PollOps, any, zabi.HFlag, func(), error) {
		ctx, err := NewContext(fsRoot)
		if err != nil {
			return nil, nil, nil, 0, nil, err
		}
		st := &ctxState{ctx: ctx}
		return readOps, pollOps, st, zabi.Readable | zabi.Writable, ctx.End, nil
	}
}
