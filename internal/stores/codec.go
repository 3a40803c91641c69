package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/dramauth/store"
)

const (
	tokenRecordVersion1        = 1
	confirmationRecordVersion1 = 1
)

var errRecordVersion = errors.New("invalid record version")

func encodeTokenRecord(record *store.TokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersion1)
	buf.WriteByte(byte(record.Kind))
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}
	for _, field := range []string{record.ID, record.Email, record.AccountID, record.Token} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*store.TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersion1 {
		return nil, errRecordVersion
	}
	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	var expires int64
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, err
	}

	record := &store.TokenRecord{Kind: store.TokenKind(kind), ExpiresAt: time.Unix(0, expires)}
	for _, field := range []*string{&record.ID, &record.Email, &record.AccountID, &record.Token} {
		if *field, err = readString(reader); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func encodeConfirmation(c *store.TwoFactorConfirmation) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(confirmationRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, c.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := writeString(&buf, c.ID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeConfirmation(accountID string, data []byte) (*store.TwoFactorConfirmation, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != confirmationRecordVersion1 {
		return nil, errRecordVersion
	}
	var expires int64
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, err
	}
	id, err := readString(reader)
	if err != nil {
		return nil, err
	}
	return &store.TwoFactorConfirmation{ID: id, AccountID: accountID, ExpiresAt: time.Unix(0, expires)}, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("record field too long")
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
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
