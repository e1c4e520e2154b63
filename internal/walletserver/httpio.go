package walletserver

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxHeaderSize bounds the request line plus headers, per spec.md §4.7.
const MaxHeaderSize = 8192

// MaxBodySize bounds the request body, per spec.md §4.7.
const MaxBodySize = 10 * 1024 * 1024

// ErrHeaderTooLarge is returned when the request line and headers exceed
// MaxHeaderSize before a blank line is seen.
var ErrHeaderTooLarge = errors.New("walletserver: request header too large")

// ErrBodyTooLarge is returned when Content-Length exceeds MaxBodySize.
var ErrBodyTooLarge = errors.New("walletserver: request body too large")

// ErrMalformedRequest covers any other request-line/header parse failure.
var ErrMalformedRequest = errors.New("walletserver: malformed request")

// rawRequest is the HTTP/1.1 request line plus the headers this server
// cares about.
type rawRequest struct {
	Method        string
	Path          string
	Version       string
	ContentLength int
	ContentType   string
	KeepAlive     bool
	Body          []byte
}

// readRawRequest reads one pipelined HTTP/1.1 request off r: request line,
// headers up to a blank line, then exactly Content-Length body bytes.
func readRawRequest(r *bufio.Reader) (rawRequest, error) {
	var req rawRequest
	var headerBytes int

	line, err := readLine(r, &headerBytes)
	if err != nil {
		return req, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return req, errors.Wrapf(ErrMalformedRequest, "request line %q", line)
	}
	req.Method, req.Path, req.Version = parts[0], parts[1], parts[2]
	req.KeepAlive = req.Version == "HTTP/1.1"

	haveContentLength := false
	for {
		line, err := readLine(r, &headerBytes)
		if err != nil {
			return req, err
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return req, errors.Wrapf(ErrMalformedRequest, "header %q", line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		switch strings.ToLower(name) {
		case "content-length":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return req, errors.Wrapf(ErrMalformedRequest, "content-length %q", value)
			}
			req.ContentLength = n
			haveContentLength = true
		case "content-type":
			req.ContentType = value
		case "connection":
			switch strings.ToLower(value) {
			case "close":
				req.KeepAlive = false
			case "keep-alive":
				req.KeepAlive = true
			}
		}
	}

	if !haveContentLength {
		return req, errors.Wrap(ErrMalformedRequest, "missing Content-Length")
	}
	if req.ContentLength > MaxBodySize {
		return req, ErrBodyTooLarge
	}

	req.Body = make([]byte, req.ContentLength)
	if req.ContentLength > 0 {
		if _, err := io.ReadFull(r, req.Body); err != nil {
			return req, errors.Wrap(err, "walletserver: read body")
		}
	}
	return req, nil
}

// readLine reads one CRLF- or LF-terminated line, tracking cumulative
// bytes read into *headerBytes against MaxHeaderSize.
func readLine(r *bufio.Reader, headerBytes *int) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	*headerBytes += len(line)
	if *headerBytes > MaxHeaderSize {
		return "", ErrHeaderTooLarge
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// rawResponse is what writeRawResponse serializes onto the wire.
type rawResponse struct {
	StatusCode  int
	StatusText  string
	ContentType string
	Body        []byte
	KeepAlive   bool
}

func writeRawResponse(w io.Writer, resp rawResponse) error {
	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(resp.StatusCode))
	b.WriteString(" ")
	b.WriteString(resp.StatusText)
	b.WriteString("\r\n")
	b.WriteString("Content-Type: ")
	b.WriteString(resp.ContentType)
	b.WriteString("\r\n")
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(resp.Body)))
	b.WriteString("\r\n")
	if resp.KeepAlive {
		b.WriteString("Connection: keep-alive\r\n")
	} else {
		b.WriteString("Connection: close\r\n")
	}
	b.WriteString("\r\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			return err
		}
	}
	return nil
}
