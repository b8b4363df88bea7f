package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// signatureSize is the length of an ed25519 signature.
const signatureSize = 64

// System program instruction indexes and SPL token instruction tags used by
// the transfer builders.
const (
	systemInstructionTransfer   = 2
	tokenInstructionTransfer    = 3
	ataInstructionCreateIdemp   = 1
	maxRequiredSignaturesParsed = 16
)

// Signer signs a transaction message and exposes its public key. Implemented
// by wallet keypairs; the solana package never sees raw secret bytes.
type Signer interface {
	PublicKey() ed25519.PublicKey
	Sign(message []byte) []byte
}

// SignTransaction signs a base64-encoded transaction by replacing the
// signer's signature slot in place. The transaction may be legacy or
// versioned; the message bytes are never modified, so signatures produced
// by other parties stay valid.
func SignTransaction(txBase64 string, signer Signer) (signedBase64, signature string, err error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", "", fmt.Errorf("decode transaction base64: %w", err)
	}

	sigs, message, err := splitTransaction(raw)
	if err != nil {
		return "", "", err
	}

	idx, err := signerIndex(message, signer.PublicKey())
	if err != nil {
		return "", "", err
	}
	if idx >= len(sigs) {
		return "", "", fmt.Errorf("signer index %d exceeds signature count %d", idx, len(sigs))
	}

	sig := signer.Sign(message)
	sigs[idx] = sig

	return AssembleTransaction(sigs, message), base58.Encode(sig), nil
}

// AssembleTransaction serializes signatures and message into a base64
// wire-format transaction.
func AssembleTransaction(signatures [][]byte, message []byte) string {
	var buf bytes.Buffer
	buf.Write(encodeCompactU16(len(signatures)))
	for _, sig := range signatures {
		buf.Write(sig)
	}
	buf.Write(message)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// splitTransaction separates the signature table from the message bytes.
func splitTransaction(raw []byte) (sigs [][]byte, message []byte, err error) {
	count, n, err := decodeCompactU16(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse signature count: %w", err)
	}
	offset := n
	if count == 0 || count > maxRequiredSignaturesParsed {
		return nil, nil, fmt.Errorf("implausible signature count %d", count)
	}
	if len(raw) < offset+count*signatureSize {
		return nil, nil, fmt.Errorf("transaction truncated: %d signatures declared, %d bytes left", count, len(raw)-offset)
	}

	sigs = make([][]byte, count)
	for i := 0; i < count; i++ {
		sigs[i] = append([]byte(nil), raw[offset:offset+signatureSize]...)
		offset += signatureSize
	}
	return sigs, raw[offset:], nil
}

// signerIndex locates the public key among the message's required signers.
// Handles both legacy messages and versioned messages (high bit prefix).
func signerIndex(message []byte, pubkey ed25519.PublicKey) (int, error) {
	body := message
	if len(body) == 0 {
		return 0, fmt.Errorf("empty message")
	}
	if body[0]&0x80 != 0 {
		// Versioned message: one version byte, then the legacy layout
		body = body[1:]
	}
	if len(body) < 3 {
		return 0, fmt.Errorf("message header truncated")
	}

	numRequired := int(body[0])
	keysCount, n, err := decodeCompactU16(body[3:])
	if err != nil {
		return 0, fmt.Errorf("parse account key count: %w", err)
	}
	keysStart := 3 + n
	if len(body) < keysStart+keysCount*32 {
		return 0, fmt.Errorf("account keys truncated")
	}
	if numRequired > keysCount {
		return 0, fmt.Errorf("required signers %d exceed account keys %d", numRequired, keysCount)
	}

	for i := 0; i < numRequired; i++ {
		key := body[keysStart+i*32 : keysStart+(i+1)*32]
		if bytes.Equal(key, pubkey) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("signer %s is not a required signer of this transaction", base58.Encode(pubkey))
}

// NewSolTransferMessage builds a legacy message moving lamports between two
// system accounts. The sender is the fee payer and sole signer.
func NewSolTransferMessage(from, to string, lamports uint64, blockhash string) ([]byte, error) {
	fromKey, err := decodeKey(from, "from address")
	if err != nil {
		return nil, err
	}
	toKey, err := decodeKey(to, "to address")
	if err != nil {
		return nil, err
	}
	systemKey, _ := base58.Decode(SystemProgramID)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemInstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return buildLegacyMessage(
		messageHeader{numRequiredSignatures: 1, numReadonlySigned: 0, numReadonlyUnsigned: 1},
		[][]byte{fromKey, toKey, systemKey},
		blockhash,
		[]instruction{{
			programIDIndex: 2,
			accounts:       []byte{0, 1},
			data:           data,
		}},
	)
}

// NewTokenTransferMessage builds a legacy message moving SPL tokens between
// two owners' associated token accounts. The recipient's account is created
// idempotently so a transfer to a fresh wallet does not fail.
func NewTokenTransferMessage(owner, recipient, mint string, amount uint64, blockhash string) ([]byte, error) {
	ownerKey, err := decodeKey(owner, "owner address")
	if err != nil {
		return nil, err
	}
	recipientKey, err := decodeKey(recipient, "recipient address")
	if err != nil {
		return nil, err
	}
	mintKey, err := decodeKey(mint, "mint address")
	if err != nil {
		return nil, err
	}

	sourceATA, err := DeriveAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	destATA, err := DeriveAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}
	sourceKey, _ := base58.Decode(sourceATA)
	destKey, _ := base58.Decode(destATA)
	systemKey, _ := base58.Decode(SystemProgramID)
	tokenKey, _ := base58.Decode(TokenProgramID)
	ataKey, _ := base58.Decode(AssociatedTokenProgramID)

	// Account table:
	//   0 owner (signer, writable, fee payer)
	//   1 source ATA (writable)
	//   2 dest ATA (writable)
	//   3 recipient
	//   4 mint
	//   5 system program
	//   6 token program
	//   7 associated token program
	keys := [][]byte{ownerKey, sourceKey, destKey, recipientKey, mintKey, systemKey, tokenKey, ataKey}

	transferData := make([]byte, 9)
	transferData[0] = tokenInstructionTransfer
	binary.LittleEndian.PutUint64(transferData[1:9], amount)

	return buildLegacyMessage(
		messageHeader{numRequiredSignatures: 1, numReadonlySigned: 0, numReadonlyUnsigned: 5},
		keys,
		blockhash,
		[]instruction{
			{
				programIDIndex: 7,
				accounts:       []byte{0, 2, 3, 4, 5, 6},
				data:           []byte{ataInstructionCreateIdemp},
			},
			{
				programIDIndex: 6,
				accounts:       []byte{1, 2, 0},
				data:           transferData,
			},
		},
	)
}

// DeriveAssociatedTokenAddress derives an owner's associated token account
// for a mint via the standard PDA algorithm: append a bump seed, the program
// id and the PDA marker, hash, and take the first off-curve result.
func DeriveAssociatedTokenAddress(owner, mint string) (string, error) {
	ownerKey, err := decodeKey(owner, "owner address")
	if err != nil {
		return "", err
	}
	mintKey, err := decodeKey(mint, "mint address")
	if err != nil {
		return "", err
	}
	tokenKey, _ := base58.Decode(TokenProgramID)
	ataKey, _ := base58.Decode(AssociatedTokenProgramID)

	seeds := [][]byte{ownerKey, tokenKey, mintKey}
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, ataKey...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}
	return "", fmt.Errorf("no valid bump seed for owner %s mint %s", owner, mint)
}

// isOnCurve reports whether the bytes decode to a point on the ed25519 curve.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

type messageHeader struct {
	numRequiredSignatures byte
	numReadonlySigned     byte
	numReadonlyUnsigned   byte
}

type instruction struct {
	programIDIndex byte
	accounts       []byte
	data           []byte
}

// buildLegacyMessage serializes a legacy (pre-versioned) transaction message.
func buildLegacyMessage(header messageHeader, keys [][]byte, blockhash string, instrs []instruction) ([]byte, error) {
	hashBytes, err := base58.Decode(blockhash)
	if err != nil || len(hashBytes) != 32 {
		return nil, fmt.Errorf("blockhash must be 32 base58 bytes")
	}

	var buf bytes.Buffer
	buf.WriteByte(header.numRequiredSignatures)
	buf.WriteByte(header.numReadonlySigned)
	buf.WriteByte(header.numReadonlyUnsigned)

	buf.Write(encodeCompactU16(len(keys)))
	for _, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("account key must be 32 bytes, got %d", len(key))
		}
		buf.Write(key)
	}

	buf.Write(hashBytes)

	buf.Write(encodeCompactU16(len(instrs)))
	for _, in := range instrs {
		buf.WriteByte(in.programIDIndex)
		buf.Write(encodeCompactU16(len(in.accounts)))
		buf.Write(in.accounts)
		buf.Write(encodeCompactU16(len(in.data)))
		buf.Write(in.data)
	}

	return buf.Bytes(), nil
}

func decodeKey(address, what string) ([]byte, error) {
	key, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%s is not base58: %w", what, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", what, len(key))
	}
	return key, nil
}

// encodeCompactU16 encodes a length in the compact-u16 format used by the
// Solana wire protocol (LEB128-style, 7 bits per byte).
func encodeCompactU16(n int) []byte {
	var out []byte
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// decodeCompactU16 decodes a compact-u16 length, returning the value and the
// number of bytes consumed.
func decodeCompactU16(data []byte) (int, int, error) {
	var value uint32
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("compact-u16 truncated")
		}
		b := data[i]
		value |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if value > 0xffff {
				return 0, 0, fmt.Errorf("compact-u16 overflow")
			}
			return int(value), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}
