package agent

import (
	"io"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Request operations.
const (
	OpExec     = "exec"
	OpCancel   = "cancel"
	OpEnviron  = "environ"
	OpPlatform = "platform"
)

// Response types.
const (
	TypeStdout   = "stdout"
	TypeStderr   = "stderr"
	TypeExit     = "exit"
	TypeError    = "error"
	TypeEnviron  = "environ"
	TypePlatform = "platform"
)

// Request is a frame sent by the bridge to the agent.
type Request struct {
	ID   uint64       `cbor:"id"`
	Op   string       `cbor:"op"`
	Exec *ExecRequest `cbor:"exec,omitempty"`
}

// ExecRequest is the command to execute by the agent.
type ExecRequest struct {
	Args       []string          `cbor:"args,omitempty"`
	Shell      string            `cbor:"shell,omitempty"`
	WorkingDir string            `cbor:"working_dir,omitempty"`
	Env        map[string]string `cbor:"env"`
	// TimeoutMS is the execution deadline in milliseconds, 0 means no deadline.
	TimeoutMS int64  `cbor:"timeout_ms,omitempty"`
	Stdin     []byte `cbor:"stdin,omitempty"`
}

// Response is a frame sent by the agent to the bridge. A request receives zero or more
// output frames and finishes with exactly one exit, error, environ or platform frame.
type Response struct {
	ID        uint64            `cbor:"id"`
	Type      string            `cbor:"type"`
	Data      []byte            `cbor:"data,omitempty"`
	ExitCode  int               `cbor:"exit_code,omitempty"`
	ErrorKind string            `cbor:"error_kind,omitempty"`
	Error     string            `cbor:"error,omitempty"`
	Env       map[string]string `cbor:"env,omitempty"`
	OS        string            `cbor:"os,omitempty"`
	Arch      string            `cbor:"arch,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("agent: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("agent: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encoder writes frames to a stream, it's safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewEncoder returns a frame encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: encMode.NewEncoder(w)}
}

// Encode writes a frame.
func (e *Encoder) Encode(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(v)
}

// Decoder reads frames from a stream.
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder returns a frame decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(r)}
}

// Decode reads the next frame into v.
func (d *Decoder) Decode(v any) error { return d.dec.Decode(v) }

// frameWriter sends everything written as output frames.
type frameWriter struct {
	enc *Encoder
	id  uint64
	typ string
}

func (f frameWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data := append([]byte(nil), p...)
	if err := f.enc.Encode(Response{ID: f.id, Type: f.typ, Data: data}); err != nil {
		return 0, err
	}
	return len(p), nil
}
