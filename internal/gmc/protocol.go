// Package gmc talks to GQ Electronics GMC Geiger counters over a serial
// line using the RFC1801 command protocol.
//
// Commands are ASCII strings framed as <CMD>>. Replies are either fixed
// length binary (GETCPM, GETSERIAL, GETDATETIME), fixed length ASCII
// (GETVOLT) or variable length ASCII terminated by the read timeout
// (GETVER).
package gmc

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	cmdGetCPM       = "GETCPM"
	cmdGetVersion   = "GETVER"
	cmdGetVoltage   = "GETVOLT"
	cmdGetSerial    = "GETSERIAL"
	cmdGetDateTime  = "GETDATETIME"
	cmdHeartbeatOff = "HEARTBEAT0"
	cmdSpeakerOn    = "SPEAKER1"
	cmdSpeakerOff   = "SPEAKER0"
)

const (
	cpmResponseLen      = 4
	voltageResponseLen  = 5
	serialResponseLen   = 7
	dateTimeResponseLen = 7
)

var (
	// ErrNoResponse is returned when the device sends nothing before the
	// read timeout expires.
	ErrNoResponse = errors.New("no response from device")

	// ErrShortResponse is returned when the device reply is truncated.
	ErrShortResponse = errors.New("short response from device")
)

// framedCommand wraps an RFC1801 command for the wire: <CMD>>.
func framedCommand(cmd string) []byte {
	return []byte(fmt.Sprintf("<%s>>", cmd))
}

// DecodeCPM decodes a GETCPM reply: a 4-byte big-endian unsigned counter.
func DecodeCPM(raw []byte) (int, error) {
	if len(raw) == 0 {
		return 0, ErrNoResponse
	}
	if len(raw) < cpmResponseLen {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrShortResponse, len(raw), cpmResponseLen)
	}
	return int(binary.BigEndian.Uint32(raw[:cpmResponseLen])), nil
}

// DecodeSerialNumber formats a GETSERIAL reply as an uppercase hex string.
func DecodeSerialNumber(raw []byte) (string, error) {
	if len(raw) < serialResponseLen {
		return "", fmt.Errorf("%w: got %d bytes, want %d", ErrShortResponse, len(raw), serialResponseLen)
	}
	return strings.ToUpper(hex.EncodeToString(raw[:serialResponseLen])), nil
}

// DecodeDateTime decodes a GETDATETIME reply: year (offset 2000), month,
// day, hour, minute, second, followed by a trailing marker byte.
func DecodeDateTime(raw []byte) (time.Time, error) {
	if len(raw) < dateTimeResponseLen {
		return time.Time{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortResponse, len(raw), dateTimeResponseLen)
	}
	return time.Date(
		2000+int(raw[0]),
		time.Month(raw[1]),
		int(raw[2]),
		int(raw[3]),
		int(raw[4]),
		int(raw[5]),
		0,
		time.UTC,
	), nil
}
