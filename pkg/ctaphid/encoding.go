package ctaphid

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/samber/lo"
)

const (
	// reportSize is the HID report length used by FIDO authenticators.
	reportSize = 64
	// initDataSize is the payload room of an init packet (CID 4, CMD 1, BCNT 2).
	initDataSize = reportSize - 7
	// contDataSize is the payload room of a continuation packet (CID 4, SEQ 1).
	contDataSize = reportSize - 5
	// maxPayloadSize is one init packet plus 128 continuation packets.
	maxPayloadSize = initDataSize + 128*contDataSize
)

// NewMessage splits data into an init packet followed by continuation packets.
func NewMessage(cid ChannelID, cmd Command, data []byte) (Message, error) {
	if len(data) > maxPayloadSize {
		return nil, ErrMessageTooLarge
	}

	msg := Message{&packet{
		cid:     cid,
		command: cmd,
		length:  uint16(len(data)),
		data:    lo.Slice(data, 0, initDataSize),
	}}

	if len(data) > initDataSize {
		for i, chunk := range lo.Chunk(data[initDataSize:], contDataSize) {
			msg = append(msg, &packet{
				cid:          cid,
				sequence:     byte(i),
				data:         chunk,
				continuation: true,
			})
		}
	}

	return msg, nil
}

// WriteTo writes every packet as its own HID report, prefixed with report ID 0.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, p := range m {
		// Every packet must reach the device in a single write.
		buf := bufio.NewWriterSize(w, reportSize+1)

		if err := buf.WriteByte(0x00); err != nil {
			return 0, err
		}
		total++

		n, err := p.WriteTo(buf)
		if err != nil {
			return 0, err
		}
		total += n

		if err := buf.Flush(); err != nil {
			return 0, err
		}
	}

	return total, nil
}

// WriteTo writes the packet header and payload.
func (p *packet) WriteTo(w io.Writer) (int64, error) {
	header := make([]byte, 0, 7)
	header = append(header, p.cid[:]...)

	if p.continuation {
		header = append(header, p.sequence)
	} else {
		header = append(header, byte(p.command)|INIT_PACKET_BIT)
		header = binary.BigEndian.AppendUint16(header, p.length)
	}

	n, err := w.Write(header)
	if err != nil {
		return 0, err
	}

	dataCnt, err := w.Write(p.data)
	if err != nil {
		return 0, err
	}

	return int64(n + dataCnt), nil
}

// Reports renders the message as an authenticator sends it: zero-padded
// 64-byte reports without a report ID.
func (m Message) Reports() ([][]byte, error) {
	reports := make([][]byte, 0, len(m))
	for _, p := range m {
		buf := bytes.NewBuffer(make([]byte, 0, reportSize))
		if _, err := p.WriteTo(buf); err != nil {
			return nil, err
		}

		report := make([]byte, reportSize)
		copy(report, buf.Bytes())
		reports = append(reports, report)
	}
	return reports, nil
}
