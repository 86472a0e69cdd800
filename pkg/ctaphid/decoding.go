package ctaphid

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

var errShortHeader = errors.New("ctaphid: short packet header")

// ReadFrom reads packets until the payload length announced by the init packet is complete.
// Padding after the payload in the last report is discarded.
func (m *Message) ReadFrom(device io.Reader) (int64, error) {
	buf := bufio.NewReaderSize(device, reportSize)
	var bytesRead int

	remaining := -1
	for remaining != 0 {
		var p packet

		cid := make([]byte, 4)
		n, err := io.ReadFull(buf, cid)
		if err != nil {
			return 0, err
		}
		bytesRead += n
		p.cid = ChannelID(cid)

		cmdOrSeq, err := buf.ReadByte()
		if err != nil {
			return 0, err
		}
		bytesRead++
		headerLen := 5

		if cmdOrSeq&INIT_PACKET_BIT != 0 {
			p.command = Command(cmdOrSeq &^ INIT_PACKET_BIT)

			bcnt := make([]byte, 2)
			if _, err := io.ReadFull(buf, bcnt); err != nil {
				return 0, errShortHeader
			}
			bytesRead += 2
			headerLen += 2

			p.length = binary.BigEndian.Uint16(bcnt)
			remaining = int(p.length)
		} else {
			if remaining < 0 {
				return 0, ErrInvalidResponseMessage
			}
			p.sequence = cmdOrSeq
			p.continuation = true
		}

		p.data = make([]byte, min(remaining, reportSize-headerLen))
		n, err = io.ReadFull(buf, p.data)
		if err != nil {
			return 0, err
		}
		bytesRead += n

		remaining -= n
		*m = append(*m, &p)
	}

	return int64(bytesRead), nil
}
