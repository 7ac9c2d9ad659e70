package core

import (
	"bytes"
	"fmt"
	"time"
)

const mimeText = "text/plain; charset=utf-8"

type SpoolBuffer struct {
	Bytes     []byte
	MIME      string
	CreatedAt time.Time
}

type SpoolResult struct {
	OK     bool
	Buffer *SpoolBuffer
	Err    string
}

// Spooler turns a job's payload into spooled content. Implementations must
// report failure through the result instead of panicking.
type Spooler interface {
	Spool(job *Job) SpoolResult
}

// Backend delivers a job's payload to its destination. Any internal error is
// collapsed into a false return.
type Backend interface {
	Print(job *Job, payload []byte) bool
}

// TextSpooler renders the payload below a short plain-text header.
type TextSpooler struct{}

func NewTextSpooler() *TextSpooler {
	return &TextSpooler{}
}

func (s *TextSpooler) Spool(job *Job) SpoolResult {
	var buf bytes.Buffer
	buf.WriteString("=== PrintPipe Spool ===\n")
	fmt.Fprintf(&buf, "Job: %s\n", job.Name())
	buf.WriteString("Payload:\n")
	buf.Write(job.Payload())

	return SpoolResult{
		OK: true,
		Buffer: &SpoolBuffer{
			Bytes:     buf.Bytes(),
			MIME:      mimeText,
			CreatedAt: time.Now(),
		},
	}
}
