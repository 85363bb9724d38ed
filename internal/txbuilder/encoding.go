package txbuilder

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/fairlens/escrow-engine/pkg/utils"
)

// Wire format of an unsigned application-call transaction. All integers are
// fixed-width big-endian; byte fields are uint32-length-prefixed.
//
//	magic "FLTX" | version(1) | sender | appID(8) | fee(8) |
//	firstValid(8) | lastValid(8) | genesisID | genesisHash |
//	argCount(2) | { arg }*
var (
	txnMagic    = []byte("FLTX")
	signedMagic = []byte("FLSG")
)

const wireVersion = 1

// EncodeUint64 encodes a numeric argument as 8 big-endian bytes
func EncodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeUint64 is the inverse of EncodeUint64
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, utils.NewAppError(utils.ErrCodeInvalidArgument, "Numeric argument must be 8 bytes",
			fmt.Sprintf("got %d", len(b)))
	}
	return binary.BigEndian.Uint64(b), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if uint32(r.Len()) < n {
		return nil, fmt.Errorf("truncated field: want %d bytes, have %d", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Encode serializes the transaction into its canonical byte form, which is
// also the message wallets sign.
func (t *Transaction) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(txnMagic)
	buf.WriteByte(wireVersion)
	writeBytes(&buf, []byte(t.Sender))
	buf.Write(EncodeUint64(t.AppID))
	buf.Write(EncodeUint64(t.Fee))
	buf.Write(EncodeUint64(t.FirstValid))
	buf.Write(EncodeUint64(t.LastValid))
	writeBytes(&buf, []byte(t.GenesisID))
	writeBytes(&buf, t.GenesisHash)

	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(t.AppArgs)))
	buf.Write(countBuf[:])
	for _, arg := range t.AppArgs {
		writeBytes(&buf, arg)
	}
	return buf.Bytes()
}

// DecodeTransaction parses canonical transaction bytes
func DecodeTransaction(raw []byte) (*Transaction, error) {
	r := bytes.NewReader(raw)

	magic := make([]byte, len(txnMagic))
	if _, err := r.Read(magic); err != nil || !bytes.Equal(magic, txnMagic) {
		return nil, utils.NewAppError(utils.ErrCodeRejected, "Not a transaction payload")
	}
	version, err := r.ReadByte()
	if err != nil || version != wireVersion {
		return nil, utils.NewAppError(utils.ErrCodeRejected, "Unsupported transaction version")
	}

	t := &Transaction{}
	fail := func(field string, err error) (*Transaction, error) {
		return nil, utils.NewAppError(utils.ErrCodeRejected, "Malformed transaction", field+": "+err.Error())
	}

	sender, err := readBytes(r)
	if err != nil {
		return fail("sender", err)
	}
	t.Sender = string(sender)

	for _, dst := range []*uint64{&t.AppID, &t.Fee, &t.FirstValid, &t.LastValid} {
		var numBuf [8]byte
		if _, err := r.Read(numBuf[:]); err != nil {
			return fail("header", err)
		}
		*dst = binary.BigEndian.Uint64(numBuf[:])
	}

	genesisID, err := readBytes(r)
	if err != nil {
		return fail("genesisID", err)
	}
	t.GenesisID = string(genesisID)

	if t.GenesisHash, err = readBytes(r); err != nil {
		return fail("genesisHash", err)
	}

	var countBuf [2]byte
	if _, err := r.Read(countBuf[:]); err != nil {
		return fail("argCount", err)
	}
	count := binary.BigEndian.Uint16(countBuf[:])
	t.AppArgs = make([][]byte, 0, count)
	for i := 0; i < int(count); i++ {
		arg, err := readBytes(r)
		if err != nil {
			return fail("appArgs", err)
		}
		t.AppArgs = append(t.AppArgs, arg)
	}

	return t, nil
}

// SignedTransaction pairs canonical transaction bytes with the sender's
// ed25519 signature over them. The sender address encodes the public key,
// so no separate key field travels on the wire.
type SignedTransaction struct {
	TxnBytes  []byte
	Signature []byte
}

// Encode serializes a signed transaction for submission
func (s *SignedTransaction) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(signedMagic)
	buf.WriteByte(wireVersion)
	writeBytes(&buf, s.TxnBytes)
	writeBytes(&buf, s.Signature)
	return buf.Bytes()
}

// DecodeSignedTransaction parses raw signed bytes
func DecodeSignedTransaction(raw []byte) (*SignedTransaction, error) {
	r := bytes.NewReader(raw)

	magic := make([]byte, len(signedMagic))
	if _, err := r.Read(magic); err != nil || !bytes.Equal(magic, signedMagic) {
		return nil, utils.NewAppError(utils.ErrCodeRejected, "Not a signed transaction payload")
	}
	version, err := r.ReadByte()
	if err != nil || version != wireVersion {
		return nil, utils.NewAppError(utils.ErrCodeRejected, "Unsupported transaction version")
	}

	txnBytes, err := readBytes(r)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeRejected, "Malformed signed transaction", err.Error())
	}
	sig, err := readBytes(r)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeRejected, "Malformed signed transaction", err.Error())
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, utils.NewAppError(utils.ErrCodeRejected, "Signature must be 64 bytes",
			fmt.Sprintf("got %d", len(sig)))
	}

	return &SignedTransaction{TxnBytes: txnBytes, Signature: sig}, nil
}
