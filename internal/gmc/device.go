package gmc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// commandDelay gives the device time to process a command before we read
// the reply. GMC units drop bytes when commands arrive back to back.
const commandDelay = 100 * time.Millisecond

// Device is a serial-connected GMC Geiger counter.
//
// The mutex serializes port access: the publish cycle and the speaker
// command handler may both issue commands.
type Device struct {
	mu          sync.Mutex
	port        serial.Port
	readTimeout time.Duration
}

// Open opens the serial port and configures the read timeout. The timeout
// bounds every poll; a silent device surfaces as ErrNoResponse rather than
// a hang.
func Open(portName string, baudRate int, readTimeout time.Duration) (*Device, error) {
	mode := &serial.Mode{BaudRate: baudRate}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Device{
		port:        port,
		readTimeout: readTimeout,
	}, nil
}

// ReadCPM polls the current counts-per-minute reading. Transport errors
// and truncated replies are both plain errors; the caller treats them the
// same way (skip the cycle).
func (d *Device) ReadCPM() (int, error) {
	raw, err := d.sendCommand(cmdGetCPM, cpmResponseLen)
	if err != nil {
		return 0, err
	}
	return DecodeCPM(raw)
}

// Version queries the firmware version string.
func (d *Device) Version() (string, error) {
	return d.readVariableASCII(cmdGetVersion)
}

// Voltage queries the battery voltage as reported by the device.
func (d *Device) Voltage() (string, error) {
	raw, err := d.sendCommand(cmdGetVoltage, voltageResponseLen)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// SerialNumber queries the device serial number.
func (d *Device) SerialNumber() (string, error) {
	raw, err := d.sendCommand(cmdGetSerial, serialResponseLen)
	if err != nil {
		return "", err
	}
	return DecodeSerialNumber(raw)
}

// DateTime queries the device real-time clock.
func (d *Device) DateTime() (time.Time, error) {
	raw, err := d.sendCommand(cmdGetDateTime, dateTimeResponseLen)
	if err != nil {
		return time.Time{}, err
	}
	return DecodeDateTime(raw)
}

// DisableHeartbeat turns off unsolicited per-second count frames. Must be
// sent before polling starts or heartbeat bytes corrupt command replies.
func (d *Device) DisableHeartbeat() error {
	_, err := d.sendCommand(cmdHeartbeatOff, 0)
	return err
}

// SetSpeaker switches the device click speaker on or off.
func (d *Device) SetSpeaker(on bool) error {
	cmd := cmdSpeakerOff
	if on {
		cmd = cmdSpeakerOn
	}
	_, err := d.sendCommand(cmd, 0)
	return err
}

// Close releases the serial port.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port.Close()
}

// sendCommand writes a framed command and reads exactly respLen reply
// bytes. respLen 0 means fire and forget.
func (d *Device) sendCommand(cmd string, respLen int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("failed to reset input buffer: %w", err)
	}

	if _, err := d.port.Write(framedCommand(cmd)); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	time.Sleep(commandDelay)

	if respLen <= 0 {
		return nil, nil
	}

	buf := make([]byte, respLen)
	read := 0
	for read < respLen {
		n, err := d.port.Read(buf[read:])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s reply: %w", cmd, err)
		}
		if n == 0 {
			// Read timeout expired.
			break
		}
		read += n
	}

	if read == 0 {
		return nil, fmt.Errorf("%s: %w", cmd, ErrNoResponse)
	}
	if read < respLen {
		return nil, fmt.Errorf("%s: %w: got %d bytes, want %d", cmd, ErrShortResponse, read, respLen)
	}
	return buf, nil
}

// readVariableASCII handles commands whose reply length is not fixed
// (GETVER). It accumulates bytes until the read timeout expires.
func (d *Device) readVariableASCII(cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.port.ResetInputBuffer(); err != nil {
		return "", fmt.Errorf("failed to reset input buffer: %w", err)
	}

	if _, err := d.port.Write(framedCommand(cmd)); err != nil {
		return "", fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	var sb strings.Builder
	chunk := make([]byte, 1)
	for {
		n, err := d.port.Read(chunk)
		if err != nil {
			return "", fmt.Errorf("failed to read %s reply: %w", cmd, err)
		}
		if n == 0 {
			break
		}
		sb.WriteByte(chunk[0])
	}

	resp := strings.TrimSpace(sb.String())
	if resp == "" {
		return "", fmt.Errorf("%s: %w", cmd, ErrNoResponse)
	}
	return resp, nil
}
