/*
Package protocol is the line codec spoken between the server and its clients.

Requests are one line each, terminated by "\n":

	PUT <key> <value>
	PUT <key>          (empty value, deletes key)
	GET <key>

Responses always carry three fields and end in "\r\n":

	<STATUS> <key> <value>
*/
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRequest is returned by Decode for any line that is not a valid request.
var ErrMalformedRequest = errors.New("malformed request")

// ErrMalformedResponse is returned by DecodeResponse for any line that is not a valid response.
var ErrMalformedResponse = errors.New("malformed response")

// Command is a request verb.
type Command string

const (
	Put Command = "PUT"
	Get Command = "GET"
)

// Request is one decoded request line.
type Request struct {
	Command Command
	Key     string
	Value   string
}

// IsDelete reports whether the request is a PUT with an empty value.
func (r Request) IsDelete() bool {
	return r.Command == Put && r.Value == ""
}

// StatusType is the first field of every response.
type StatusType string

const (
	PutSuccess    StatusType = "PUT_SUCCESS"
	PutUpdate     StatusType = "PUT_UPDATE"
	PutError      StatusType = "PUT_ERROR"
	GetSuccess    StatusType = "GET_SUCCESS"
	GetError      StatusType = "GET_ERROR"
	DeleteSuccess StatusType = "DELETE_SUCCESS"
	DeleteError   StatusType = "DELETE_ERROR"
)

// Valid reports whether s is one of the known statuses.
func (s StatusType) Valid() bool {
	switch s {
	case PutSuccess, PutUpdate, PutError,
		GetSuccess, GetError,
		DeleteSuccess, DeleteError:
		return true
	}
	return false
}

// Response is one response line.
type Response struct {
	Status StatusType
	Key    string
	Value  string
}

/*
Decode parses a single request line.

The line is split on single spaces into at most three fields, so the value
keeps any spaces it contains. A trailing "\r\n" or "\n" is ignored and the
command is matched case-insensitively.

On failure the returned Request still carries the key when one could be
read, so the caller can echo it back in the error response.
*/
func Decode(line string) (Request, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	parts := strings.SplitN(line, " ", 3)

	var req Request
	if len(parts) > 1 {
		req.Key = parts[1]
	}
	if len(parts) > 2 {
		req.Value = parts[2]
	}

	switch Command(strings.ToUpper(parts[0])) {
	case Put:
		req.Command = Put
	case Get:
		req.Command = Get
	case "":
		return req, fmt.Errorf("%w: missing command", ErrMalformedRequest)
	default:
		return req, fmt.Errorf("%w: unknown command %q", ErrMalformedRequest, parts[0])
	}

	if req.Key == "" {
		return req, fmt.Errorf("%w: missing key", ErrMalformedRequest)
	}
	if strings.Contains(req.Key, ",") {
		return req, fmt.Errorf("%w: key %q contains a comma", ErrMalformedRequest, req.Key)
	}
	if req.Command == Get && req.Value != "" {
		return req, fmt.Errorf("%w: GET takes no value", ErrMalformedRequest)
	}

	return req, nil
}

// Encode renders a response line, terminator included.
func Encode(resp Response) string {
	return string(resp.Status) + " " + resp.Key + " " + resp.Value + "\r\n"
}

// EncodeRequest renders a request line, terminator included.
func EncodeRequest(req Request) string {
	return string(req.Command) + " " + req.Key + " " + req.Value + "\n"
}

// DecodeResponse parses a response line produced by Encode.
func DecodeResponse(line string) (Response, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}

	resp := Response{Status: StatusType(parts[0]), Key: parts[1]}
	if len(parts) == 3 {
		resp.Value = parts[2]
	}
	if !resp.Status.Valid() {
		return Response{}, fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, parts[0])
	}
	return resp, nil
}
