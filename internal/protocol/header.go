package protocol

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxRequestFields  = 4
	maxResponseFields = 3
)

// ErrEmptyHeader is returned when a header block contains only padding.
// The connection treats it as end of session.
var ErrEmptyHeader = &ProtocolError{Reason: "empty header"}

// Encode joins fields with '\n' and pads the result with spaces to exactly
// HeaderSize bytes. It fails with ErrHeaderTooLong if the joined content does
// not fit.
func Encode(fields []string) ([]byte, error) {
	joined := strings.Join(fields, "\n")
	if len(joined) > HeaderSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrHeaderTooLong, len(joined), HeaderSize)
	}

	block := make([]byte, HeaderSize)
	n := copy(block, joined)
	for i := n; i < HeaderSize; i++ {
		block[i] = ' '
	}
	return block, nil
}

// Decode strips trailing whitespace from a header block and splits it on
// '\n'. A block made only of padding decodes to nil.
func Decode(block []byte) []string {
	trimmed := strings.TrimRightFunc(string(block), unicode.IsSpace)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// trimTrailingEmpty drops empty trailing fields so that Encode(Decode(x))
// is stable: Decode can never recover trailing empty fields.
func trimTrailingEmpty(fields []string) []string {
	for len(fields) > 1 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

func parseSize(fields []string, raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, newProtocolError(fields, "filesize %q is not a base-10 integer", raw)
	}
	if size < 0 {
		return 0, newProtocolError(fields, "filesize %d is negative", size)
	}
	return size, nil
}

func checkField(name, value string) error {
	if strings.ContainsAny(value, "\n\r") {
		return newProtocolError(nil, "%s contains a line break", name)
	}
	return nil
}

// ============================================================================
// Requests
// ============================================================================

// Request is a decoded client request header.
type Request struct {
	Command  Command
	Filename string
	Filesize int64
	Mode     Mode
}

// Fields returns the wire fields of the request in order.
func (r *Request) Fields() []string {
	size := ""
	if r.Command == CmdPut || r.Filesize != 0 {
		size = strconv.FormatInt(r.Filesize, 10)
	}
	return trimTrailingEmpty([]string{string(r.Command), r.Filename, size, string(r.Mode)})
}

// Encode serializes the request into a HeaderSize block.
func (r *Request) Encode() ([]byte, error) {
	if r.Command == "" {
		return nil, newProtocolError(nil, "request without command")
	}
	if err := checkField("filename", r.Filename); err != nil {
		return nil, err
	}
	if r.Filesize < 0 {
		return nil, newProtocolError(nil, "filesize %d is negative", r.Filesize)
	}
	if !r.Mode.IsValid() {
		return nil, newProtocolError(nil, "unknown mode %q", r.Mode)
	}
	return Encode(r.Fields())
}

// DecodeRequest parses a request header block. Missing trailing fields
// default to empty values; more than four fields is a protocol error.
// The command itself is not checked against the vocabulary so the
// dispatcher can answer unknown commands.
func DecodeRequest(block []byte) (*Request, error) {
	fields := Decode(block)
	if len(fields) == 0 {
		return nil, ErrEmptyHeader
	}
	if len(fields) > maxRequestFields {
		return nil, newProtocolError(fields, "request has %d fields, want at most %d", len(fields), maxRequestFields)
	}

	padded := make([]string, maxRequestFields)
	copy(padded, fields)

	size, err := parseSize(fields, padded[2])
	if err != nil {
		return nil, err
	}

	mode := Mode(padded[3])
	if !mode.IsValid() {
		return nil, newProtocolError(fields, "unknown mode %q", padded[3])
	}

	return &Request{
		Command:  Command(padded[0]),
		Filename: padded[1],
		Filesize: size,
		Mode:     mode,
	}, nil
}

// ============================================================================
// Responses
// ============================================================================

// Response is a decoded server response header.
type Response struct {
	Status   Status
	Message  string
	Filesize int64
}

// NewError builds an ERROR response carrying msg.
func NewError(msg string) *Response {
	return &Response{Status: StatusError, Message: msg}
}

// Fields returns the wire fields of the response in order. LIST and READY
// always carry their size, even when it is zero.
func (r *Response) Fields() []string {
	size := ""
	if r.Status == StatusList || r.Status == StatusReady || r.Filesize != 0 {
		size = strconv.FormatInt(r.Filesize, 10)
	}
	return trimTrailingEmpty([]string{string(r.Status), r.Message, size})
}

// Encode serializes the response into a HeaderSize block.
func (r *Response) Encode() ([]byte, error) {
	if !r.Status.IsKnown() {
		return nil, newProtocolError(nil, "unknown status %q", r.Status)
	}
	if err := checkField("message", r.Message); err != nil {
		return nil, err
	}
	if r.Filesize < 0 {
		return nil, newProtocolError(nil, "filesize %d is negative", r.Filesize)
	}
	return Encode(r.Fields())
}

// DecodeResponse parses a response header block.
func DecodeResponse(block []byte) (*Response, error) {
	fields := Decode(block)
	if len(fields) == 0 {
		return nil, ErrEmptyHeader
	}
	if len(fields) > maxResponseFields {
		return nil, newProtocolError(fields, "response has %d fields, want at most %d", len(fields), maxResponseFields)
	}

	padded := make([]string, maxResponseFields)
	copy(padded, fields)

	status := Status(padded[0])
	if !status.IsKnown() {
		return nil, newProtocolError(fields, "unknown status %q", padded[0])
	}

	size, err := parseSize(fields, padded[2])
	if err != nil {
		return nil, err
	}

	return &Response{
		Status:   status,
		Message:  padded[1],
		Filesize: size,
	}, nil
}

// ============================================================================
// Stream helpers
// ============================================================================

// ReadHeader reads exactly one HeaderSize block from r.
//
// Returns io.EOF when the peer closed the stream before sending any byte
// (a clean end of session) and an error wrapping io.ErrUnexpectedEOF when
// the stream ended part way through the block.
func ReadHeader(r io.Reader) ([]byte, error) {
	block := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, block)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("short header (%d of %d bytes): %w", n, HeaderSize, err)
		}
		return nil, err
	}
	return block, nil
}

// ReadRequest reads and decodes one request header.
func ReadRequest(r io.Reader) (*Request, error) {
	block, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(block)
}

// ReadResponse reads and decodes one response header.
func ReadResponse(r io.Reader) (*Response, error) {
	block, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(block)
}

// WriteRequest encodes req and writes the full block to w.
func WriteRequest(w io.Writer, req *Request) error {
	block, err := req.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(block)
	return err
}

// WriteResponse encodes resp and writes the full block to w.
func WriteResponse(w io.Writer, resp *Response) error {
	block, err := resp.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(block)
	return err
}
