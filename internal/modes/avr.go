package modes

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadAVR is returned for lines that are not AVR frames
var ErrBadAVR = errors.New("malformed AVR frame")

// ParseAVR parses one AVR text frame as emitted by dump1090 on port 30002.
// Both the plain "*<hex>;" form and the MLAT "@<12 hex clock><hex>;" form are
// accepted. received stamps the returned frame.
func ParseAVR(line string, received time.Time) (Frame, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || !strings.HasSuffix(line, ";") {
		return Frame{}, fmt.Errorf("%w: %q", ErrBadAVR, line)
	}

	var clock uint64
	body := line[1 : len(line)-1]
	switch line[0] {
	case '*':
	case '@':
		if len(body) < 12 {
			return Frame{}, fmt.Errorf("%w: short MLAT timestamp", ErrBadAVR)
		}
		ts, err := strconv.ParseUint(body[:12], 16, 64)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrBadAVR, err)
		}
		clock = ts
		body = body[12:]
	default:
		return Frame{}, fmt.Errorf("%w: unexpected prefix %q", ErrBadAVR, line[0])
	}

	data, err := hex.DecodeString(body)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadAVR, err)
	}
	if len(data) != ShortFrameLen && len(data) != LongFrameLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrBadAVR, len(data))
	}

	return Frame{Data: data, Received: received, Timestamp: clock}, nil
}

// FormatAVR renders a frame back into its plain AVR form
func FormatAVR(f Frame) string {
	return "*" + f.Hex() + ";"
}
