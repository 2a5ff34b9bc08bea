package instrument

import (
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial"
)

const (
	SOF0       = 0xAA
	SOF1       = 0x55
	CmdActuate = 0x20
)

// EncodeActuate builds the on-wire command for one pick:
//
//	[SOF0][SOF1][LEN][CMD][pick][seq][CKS]
//
// LEN counts CMD plus payload; CKS is the XOR of LEN, CMD and payload.
func EncodeActuate(pick int, seq byte) []byte {
	payload := []byte{byte(pick), seq}
	length := byte(len(payload) + 1)
	cks := length ^ CmdActuate
	for _, b := range payload {
		cks ^= b
	}
	out := []byte{SOF0, SOF1, length, CmdActuate}
	out = append(out, payload...)
	return append(out, cks)
}

// Serial drives the pick solenoids through a microcontroller on a serial
// line.
type Serial struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	seq byte
}

// NewSerial wraps any writer, e.g. a port opened elsewhere or a buffer.
func NewSerial(w io.Writer) *Serial {
	s := &Serial{w: w}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// OpenSerial opens a serial device at the given baud rate.
func OpenSerial(device string, baud int) (*Serial, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	log.Printf("Serial port %s opened at %d baud", device, baud)
	return NewSerial(port), nil
}

// Actuate sends one actuation frame. Write errors are logged and dropped.
func (s *Serial) Actuate(pick int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := EncodeActuate(pick, s.seq)
	s.seq++
	if _, err := s.w.Write(frame); err != nil {
		log.Printf("Serial write error (pick %d): %v", pick, err)
	}
}

// Close closes the underlying port, if it can be closed.
func (s *Serial) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
