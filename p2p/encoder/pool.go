package encoder

import (
	"io"
	"sync"

	"github.com/golang/snappy"
)

// bufReaderPool and bufWriterPool recycle snappy framed-stream readers/writers across
// Req/Resp chunks; allocating a fresh one per chunk would otherwise dominate chunk codec
// allocations (spec §9 "chunk decode and ownership"). Gossip payloads use snappy block
// encoding directly and do not go through these pools.
var bufReaderPool = new(sync.Pool)
var bufWriterPool = new(sync.Pool)

func newBufferedReader(r io.Reader) *snappy.Reader {
	if rdr, ok := bufReaderPool.Get().(*snappy.Reader); ok {
		rdr.Reset(r)
		return rdr
	}
	return snappy.NewReader(r)
}

func newBufferedWriter(w io.Writer) *snappy.Writer {
	if wr, ok := bufWriterPool.Get().(*snappy.Writer); ok {
		wr.Reset(w)
		return wr
	}
	return snappy.NewBufferedWriter(w)
}
