// Package keepalive implements the heartbeat failure detector: a one-shot
// TCP request/response protocol, the server that turns heartbeats into
// registry resets, the patrol that turns silence into expiry, and the client
// that keeps a remote monitor informed.
package keepalive

import (
	"bufio"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxPacketSize bounds the request line the server is willing to read.
const MaxPacketSize = 1024

// Raw replies written by the server on failure. They are not Packets.
const (
	replyInvalidMessage = "invalid message"
	replyUnauthorized   = "unauthorized"
	pongMessage         = "see you next period"
)

var (
	// ErrInvalidMessage is a protocol error: oversized, empty or malformed packet.
	ErrInvalidMessage = errors.New(replyInvalidMessage)
	// ErrUnauthorized is an auth error: the packet key does not match.
	ErrUnauthorized = errors.New(replyUnauthorized)
	// ErrMalformedResponse is returned by the client for a reply that is
	// neither a Packet nor one of the known raw error texts.
	ErrMalformedResponse = errors.New("malformed response")
)

// Packet is both the heartbeat request and the pong response.
// In a request Key is the presented secret; in a response it echoes the
// server's own secret.
type Packet struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// Encode serializes p as compact JSON terminated by a newline.
func Encode(p Packet) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decode(data []byte) (Packet, error) {
	// encoding/json would map distinct invalid names onto U+FFFD.
	if !utf8.Valid(data) {
		return Packet{}, errors.New("packet is not valid UTF-8")
	}
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, err
	}
	if p.Name == "" {
		return Packet{}, errors.New("name is required")
	}
	return p, nil
}

// ReadPacket reads one request line of at most MaxPacketSize bytes and
// decodes it. A peer that closes without a terminator is accepted if what it
// sent decodes.
func ReadPacket(r io.Reader) (Packet, error) {
	br := bufio.NewReader(io.LimitReader(r, MaxPacketSize))
	line, err := br.ReadBytes('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return Packet{}, fmt.Errorf("read packet: %w", err)
		}
		if len(line) >= MaxPacketSize {
			return Packet{}, fmt.Errorf("%w: exceeds %d bytes", ErrInvalidMessage, MaxPacketSize)
		}
	}
	p, err := decode(line)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: %v: %q", ErrInvalidMessage, err, line)
	}
	return p, nil
}

// Exchange runs the server side of one heartbeat on rw: read and validate a
// packet, check its key against secret, and answer with a pong carrying
// serverName. On protocol or auth failure the matching raw text is written
// and the error is returned; the caller must not touch the registry.
func Exchange(rw io.ReadWriter, serverName, secret string) (Packet, error) {
	p, err := ReadPacket(rw)
	if err != nil {
		if errors.Is(err, ErrInvalidMessage) {
			return Packet{}, reply(rw, replyInvalidMessage, err)
		}
		return Packet{}, err
	}

	if subtle.ConstantTimeCompare([]byte(p.Key), []byte(secret)) != 1 {
		return Packet{}, reply(rw, replyUnauthorized, fmt.Errorf("%w: client %q", ErrUnauthorized, p.Name))
	}

	pong, err := json.Marshal(Packet{Key: secret, Name: serverName, Msg: pongMessage})
	if err != nil {
		return Packet{}, err
	}
	if _, err := rw.Write(pong); err != nil {
		return Packet{}, fmt.Errorf("write pong: %w", err)
	}
	return p, nil
}

// reply writes a raw error text and returns cause, joined with the write
// failure if there was one.
func reply(w io.Writer, text string, cause error) error {
	if _, err := io.WriteString(w, text); err != nil {
		return errors.Join(cause, fmt.Errorf("sending failed: %w", err))
	}
	return cause
}

// DecodeResponse parses a server reply as seen by the client.
func DecodeResponse(body []byte) (Packet, error) {
	switch string(body) {
	case replyUnauthorized:
		return Packet{}, ErrUnauthorized
	case replyInvalidMessage:
		return Packet{}, ErrInvalidMessage
	}
	p, err := decode(body)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: %v: %q", ErrMalformedResponse, err, body)
	}
	return p, nil
}

// Error classes used in logs and metrics.
const (
	ClassProtocol  = "protocol"
	ClassAuth      = "auth"
	ClassTransport = "transport"
)

// Classify names the class of a heartbeat error.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return ClassAuth
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrMalformedResponse):
		return ClassProtocol
	default:
		return ClassTransport
	}
}
