package mux

import (
	"io"
	"sync"
)

// pipeBufferSize is the per-direction message buffer of an in-memory
// pipe.
const pipeBufferSize = 64

// PipeDuplex is an in-memory Duplex. Pipe returns two connected ends;
// closing either end surfaces io.EOF on the other, mirroring a remote
// peer ending a real channel. It is used by tests and by hosts that
// embed the wallet process in the same binary.
type PipeDuplex struct {
	read  chan []byte
	write chan []byte

	localDone  chan struct{}
	remoteDone chan struct{}
	closeOnce  sync.Once
}

var _ Duplex = (*PipeDuplex)(nil)

// Pipe creates a connected pair of in-memory duplex channels.
func Pipe() (*PipeDuplex, *PipeDuplex) {
	aToB := make(chan []byte, pipeBufferSize)
	bToA := make(chan []byte, pipeBufferSize)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &PipeDuplex{read: bToA, write: aToB, localDone: aDone, remoteDone: bDone}
	b := &PipeDuplex{read: aToB, write: bToA, localDone: bDone, remoteDone: aDone}
	return a, b
}

// ReadMessage reads the next message from the peer. Messages already
// queued when the peer closes are still delivered before io.EOF.
func (p *PipeDuplex) ReadMessage() ([]byte, error) {
	select {
	case <-p.localDone:
		return nil, io.ErrClosedPipe
	default:
	}

	select {
	case msg := <-p.read:
		return msg, nil
	case <-p.localDone:
		return nil, io.ErrClosedPipe
	case <-p.remoteDone:
		select {
		case msg := <-p.read:
			return msg, nil
		default:
			return nil, io.EOF
		}
	}
}

// WriteMessage delivers a message to the peer.
func (p *PipeDuplex) WriteMessage(data []byte) error {
	select {
	case p.write <- data:
		return nil
	case <-p.remoteDone:
		return io.ErrClosedPipe
	case <-p.localDone:
		return io.ErrClosedPipe
	}
}

// Close closes this end of the pipe. The peer observes io.EOF.
func (p *PipeDuplex) Close() error {
	p.closeOnce.Do(func() {
		close(p.localDone)
	})
	return nil
}
