// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package formdata decodes multipart/form-data request bodies into fields and
// files.
//
// The Parser is a push-driven state machine: callers Write chunks as they
// arrive and Close once the underlying source reports end of stream. A parse
// only completes when the closing boundary was seen before Close, so a
// truncated body is always an error rather than a short result.
//
//	AwaitingBoundary -> InHeaders -> InBody -> AwaitingBoundary ... -> Complete
//
// Any state can move to Aborted, which is terminal.
package formdata

import (
	"bytes"
	"fmt"
	"mime"
	"net/textproto"
	"strings"

	"github.com/LeeDigitalWorks/zapupload/pkg/uploaderr"
)

type state int

const (
	stateAwaitingBoundary state = iota
	stateInHeaders
	stateInBody
	stateComplete
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateAwaitingBoundary:
		return "AwaitingBoundary"
	case stateInHeaders:
		return "InHeaders"
	case stateInBody:
		return "InBody"
	case stateComplete:
		return "Complete"
	case stateAborted:
		return "Aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	// DefaultMaxHeaderBytes bounds the header block of a single part.
	DefaultMaxHeaderBytes = 16 << 10

	// RFC 2046 5.1.1
	maxBoundaryLength = 70

	// Linear whitespace tolerated between a boundary and its CRLF.
	maxTransportPadding = 64

	defaultFileContentType  = "application/octet-stream"
	defaultFieldContentType = "text/plain"
	defaultTransferEncoding = "7bit"
)

var (
	crlf             = []byte("\r\n")
	headerTerminator = []byte("\r\n\r\n")
)

type parserOptions struct {
	maxHeaderBytes int
	maxFileBytes   int64
	maxFieldBytes  int64
}

// ParserOption configures a Parser.
type ParserOption func(*parserOptions)

// WithMaxHeaderBytes overrides DefaultMaxHeaderBytes.
func WithMaxHeaderBytes(n int) ParserOption {
	return func(o *parserOptions) {
		if n > 0 {
			o.maxHeaderBytes = n
		}
	}
}

// WithMaxFileBytes aborts the parse as soon as one file part grows past n
// bytes, before the rest of the body is buffered. Zero means unlimited.
func WithMaxFileBytes(n int64) ParserOption {
	return func(o *parserOptions) {
		o.maxFileBytes = n
	}
}

// WithMaxFieldBytes is WithMaxFileBytes for plain form fields.
func WithMaxFieldBytes(n int64) ParserOption {
	return func(o *parserOptions) {
		o.maxFieldBytes = n
	}
}

// part accumulates one body part between its headers and the next boundary.
type part struct {
	fieldName   string
	fileName    string
	contentType string
	encoding    string
	isFile      bool
	skip        bool

	data   bytes.Buffer
	events int
}

// Parser is not safe for concurrent use; one request owns one Parser.
type Parser struct {
	opts parserOptions

	dashBoundary []byte // "--" boundary
	delimiter    []byte // CRLF "--" boundary

	state state
	buf   []byte
	part  *part
	err   error

	// preamble is set until the first boundary line; lineStart reports
	// whether buf[0] begins a line.
	preamble  bool
	lineStart bool

	files  []ParsedFile
	fields map[string]string
}

// NewParser returns a Parser for the boundary declared in contentType.
func NewParser(contentType string, opts ...ParserOption) (*Parser, error) {
	boundary, err := Boundary(contentType)
	if err != nil {
		return nil, err
	}

	o := parserOptions{maxHeaderBytes: DefaultMaxHeaderBytes}
	for _, opt := range opts {
		opt(&o)
	}

	return &Parser{
		opts:         o,
		dashBoundary: []byte("--" + boundary),
		delimiter:    []byte("\r\n--" + boundary),
		state:        stateAwaitingBoundary,
		fields:       make(map[string]string),
		preamble:     true,
		lineStart:    true,
	}, nil
}

// Boundary extracts the multipart boundary from a content-type header.
func Boundary(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", uploaderr.New(uploaderr.ErrParse, "missing content-type header")
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", uploaderr.Errorf(uploaderr.ErrParse, "malformed content-type %q: %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", uploaderr.Errorf(uploaderr.ErrParse, "unsupported content type: %s", mediaType)
	}

	boundary := params["boundary"]
	switch {
	case boundary == "":
		return "", uploaderr.New(uploaderr.ErrParse, "malformed boundary: boundary not found")
	case len(boundary) > maxBoundaryLength:
		return "", uploaderr.Errorf(uploaderr.ErrParse, "malformed boundary: longer than %d characters", maxBoundaryLength)
	case strings.HasSuffix(boundary, " "):
		return "", uploaderr.New(uploaderr.ErrParse, "malformed boundary: trailing space")
	}
	return boundary, nil
}

// Write feeds the next chunk of the body. Chunks may split boundaries and
// headers anywhere. After the closing boundary further bytes are ignored.
func (p *Parser) Write(chunk []byte) (int, error) {
	switch p.state {
	case stateAborted:
		return 0, p.err
	case stateComplete:
		return len(chunk), nil
	}

	p.buf = append(p.buf, chunk...)
	if err := p.advance(); err != nil {
		p.Abort(err)
		return 0, p.err
	}
	return len(chunk), nil
}

// Close signals end of stream and returns the result. It fails unless the
// closing boundary has been consumed.
func (p *Parser) Close() (*ParseResult, error) {
	switch p.state {
	case stateAborted:
		return nil, p.err
	case stateComplete:
		return newParseResult(p.files, p.fields), nil
	}

	p.Abort(uploaderr.Errorf(uploaderr.ErrParse, "unexpected end of multipart stream in state %s", p.state))
	return nil, p.err
}

// Abort moves the parser to its terminal failed state, discarding everything
// accumulated so far. Errors without a code are tagged ErrParse.
func (p *Parser) Abort(err error) {
	if p.state == stateAborted {
		return
	}
	if err == nil {
		err = uploaderr.New(uploaderr.ErrParse, "multipart parse aborted")
	}
	p.err = uploaderr.Wrap(uploaderr.ErrParse, err)
	p.state = stateAborted
	p.buf = nil
	p.part = nil
	p.files = nil
	p.fields = nil
}

// Err returns the error that aborted the parse, if any.
func (p *Parser) Err() error {
	return p.err
}

// advance runs state transitions until the buffered bytes are exhausted or
// more input is needed.
func (p *Parser) advance() error {
	for {
		var (
			progressed bool
			err        error
		)

		switch p.state {
		case stateAwaitingBoundary:
			progressed, err = p.readBoundary()
		case stateInHeaders:
			progressed, err = p.readHeaders()
		case stateInBody:
			progressed, err = p.readBody()
		default:
			p.buf = nil
			return nil
		}

		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// consume drops the first n buffered bytes, compacting the remainder to the
// front of the buffer.
func (p *Parser) consume(n int) {
	rest := copy(p.buf, p.buf[n:])
	p.buf = p.buf[:rest]
}

func (p *Parser) readBoundary() (bool, error) {
	from := 0
	for {
		idx := bytes.Index(p.buf[from:], p.dashBoundary)
		if idx < 0 {
			// Preamble. Keep what could be a CRLF plus the start of a boundary.
			if keep := len(p.dashBoundary) + 1; len(p.buf) > keep {
				p.consume(len(p.buf) - keep)
				p.lineStart = false
			}
			return false, nil
		}
		idx += from

		// A boundary only counts at the start of a line.
		if !p.atLineStart(idx) {
			from = idx + 1
			continue
		}

		rest := p.buf[idx+len(p.dashBoundary):]
		if len(rest) < 2 {
			return false, nil
		}
		if rest[0] == '-' && rest[1] == '-' {
			p.state = stateComplete
			p.buf = nil
			return true, nil
		}

		pad := 0
		for pad < len(rest) && (rest[pad] == ' ' || rest[pad] == '\t') {
			pad++
		}
		if pad > maxTransportPadding {
			return false, uploaderr.New(uploaderr.ErrParse, "malformed boundary line: excessive padding")
		}
		if len(rest)-pad < 2 {
			return false, nil
		}
		if rest[pad] != '\r' || rest[pad+1] != '\n' {
			if p.preamble {
				from = idx + 1
				continue
			}
			return false, uploaderr.New(uploaderr.ErrParse, "malformed boundary line")
		}

		p.consume(idx + len(p.dashBoundary) + pad + 2)
		p.preamble = false
		p.lineStart = true
		p.state = stateInHeaders
		return true, nil
	}
}

func (p *Parser) atLineStart(idx int) bool {
	if idx == 0 {
		return p.lineStart
	}
	return idx >= 2 && p.buf[idx-2] == '\r' && p.buf[idx-1] == '\n'
}

func (p *Parser) readHeaders() (bool, error) {
	var block []byte
	var n int

	if bytes.HasPrefix(p.buf, crlf) {
		n = len(crlf)
	} else if idx := bytes.Index(p.buf, headerTerminator); idx >= 0 {
		block, n = p.buf[:idx], idx+len(headerTerminator)
	} else {
		if len(p.buf) > p.opts.maxHeaderBytes {
			return false, uploaderr.Errorf(uploaderr.ErrParse, "part header exceeds %d bytes", p.opts.maxHeaderBytes)
		}
		return false, nil
	}

	if len(block) > p.opts.maxHeaderBytes {
		return false, uploaderr.Errorf(uploaderr.ErrParse, "part header exceeds %d bytes", p.opts.maxHeaderBytes)
	}

	header, err := parseHeaderBlock(block)
	if err != nil {
		return false, err
	}
	pt, err := newPart(header)
	if err != nil {
		return false, err
	}

	p.consume(n)
	p.part = pt
	p.state = stateInBody
	return true, nil
}

func (p *Parser) readBody() (bool, error) {
	idx := bytes.Index(p.buf, p.delimiter)
	if idx < 0 {
		// Everything except a possible partial delimiter at the end is data.
		if safe := len(p.buf) - (len(p.delimiter) - 1); safe > 0 {
			if err := p.appendData(p.buf[:safe]); err != nil {
				return false, err
			}
			p.consume(safe)
		}
		return false, nil
	}

	if idx > 0 {
		if err := p.appendData(p.buf[:idx]); err != nil {
			return false, err
		}
	}

	// Leave "--boundary" in place; readBoundary decides what follows it.
	p.consume(idx + len(crlf))
	p.lineStart = true
	p.finishPart()
	p.state = stateAwaitingBoundary
	return true, nil
}

func (p *Parser) appendData(data []byte) error {
	pt := p.part
	if pt.skip {
		return nil
	}

	limit := p.opts.maxFieldBytes
	if pt.isFile {
		limit = p.opts.maxFileBytes
	}
	if limit > 0 && int64(pt.data.Len()+len(data)) > limit {
		if pt.isFile {
			return uploaderr.Errorf(uploaderr.ErrValidationRejected,
				"file size not allowed: %q exceeds maximum of %d bytes", pt.fileName, limit)
		}
		return uploaderr.Errorf(uploaderr.ErrParse, "field %q exceeds %d bytes", pt.fieldName, limit)
	}

	pt.data.Write(data)
	pt.events++
	return nil
}

func (p *Parser) finishPart() {
	pt := p.part
	p.part = nil
	if pt == nil || pt.skip {
		return
	}

	if !pt.isFile {
		p.fields[pt.fieldName] = pt.data.String()
		return
	}

	// A file part that never received data is dropped, not kept as empty.
	if pt.events == 0 {
		return
	}
	p.files = append(p.files, ParsedFile{
		FieldName:   pt.fieldName,
		FileName:    pt.fileName,
		ContentType: pt.contentType,
		Encoding:    pt.encoding,
		Content:     pt.data.Bytes(),
	})
}

// parseHeaderBlock parses CRLF separated "Name: value" lines, joining folded
// continuation lines onto the previous header.
func parseHeaderBlock(block []byte) (textproto.MIMEHeader, error) {
	header := make(textproto.MIMEHeader)
	if len(block) == 0 {
		return header, nil
	}

	var lastKey string
	for _, line := range strings.Split(string(block), "\r\n") {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if lastKey == "" {
				return nil, uploaderr.Errorf(uploaderr.ErrParse, "malformed part header %q", line)
			}
			values := header[lastKey]
			values[len(values)-1] += " " + strings.TrimSpace(line)
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, uploaderr.Errorf(uploaderr.ErrParse, "malformed part header %q", line)
		}
		name := line[:colon]
		if strings.ContainsAny(name, " \t") {
			return nil, uploaderr.Errorf(uploaderr.ErrParse, "malformed part header name %q", name)
		}

		lastKey = textproto.CanonicalMIMEHeaderKey(name)
		header.Add(lastKey, strings.TrimSpace(line[colon+1:]))
	}
	return header, nil
}

func newPart(header textproto.MIMEHeader) (*part, error) {
	cd := header.Get("Content-Disposition")
	if cd == "" {
		return &part{skip: true}, nil
	}

	disposition, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return nil, uploaderr.Errorf(uploaderr.ErrParse, "malformed content-disposition %q: %w", cd, err)
	}

	name := params["name"]
	if disposition != "form-data" || name == "" {
		return &part{skip: true}, nil
	}

	fileName, isFile := params["filename"]

	contentType := defaultFieldContentType
	if isFile {
		contentType = defaultFileContentType
	}
	if ct := header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			contentType = mediaType
		} else {
			contentType = strings.TrimSpace(ct)
		}
	}

	encoding := defaultTransferEncoding
	if cte := header.Get("Content-Transfer-Encoding"); cte != "" {
		encoding = strings.ToLower(cte)
	}

	return &part{
		fieldName:   name,
		fileName:    fileName,
		contentType: contentType,
		encoding:    encoding,
		isFile:      isFile,
	}, nil
}
