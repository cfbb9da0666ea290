package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	challengeRecordVersion1 = 1
	assertionRecordVersion1 = 1
)

var errRecordCorrupt = errors.New("stored record is corrupt")

func encodeChallenge(record *LoginChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.UserID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Email); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*LoginChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != challengeRecordVersion1 {
		return nil, errRecordCorrupt
	}

	record := &LoginChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errRecordCorrupt
	}
	if record.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Email, err = readString(reader); err != nil {
		return nil, err
	}
	return record, nil
}

func encodeAssertion(record *Assertion) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(assertionRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.VerifiedAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.UserID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAssertion(data []byte) (*Assertion, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != assertionRecordVersion1 {
		return nil, errRecordCorrupt
	}

	record := &Assertion{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.VerifiedAt); err != nil {
		return nil, errRecordCorrupt
	}
	if record.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	return record, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("record field length exceeded")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", errRecordCorrupt
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", errRecordCorrupt
	}
	return string(raw), nil
}
