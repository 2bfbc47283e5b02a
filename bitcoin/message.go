package bitcoin

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const signedMessageMagic = "Bitcoin Signed Message:\n"

// MessageVerifier checks base64 compact signatures made with "signmessage".
type MessageVerifier struct {
	params *chaincfg.Params
}

func NewMessageVerifier(params *chaincfg.Params) *MessageVerifier {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &MessageVerifier{params: params}
}

func messageHash(message string) []byte {
	var buf bytes.Buffer
	wire.WriteVarString(&buf, 0, signedMessageMagic)
	wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// Verify reports whether signature over message was made by the key behind
// the P2PKH address.
func (v *MessageVerifier) Verify(message, address, signature string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("malformed signature: %w", err)
	}
	pk, wasCompressed, err := ecdsa.RecoverCompact(sig, messageHash(message))
	if err != nil {
		// a signature that recovers nothing is simply invalid
		return false, nil
	}

	var serialized []byte
	if wasCompressed {
		serialized = pk.SerializeCompressed()
	} else {
		serialized = pk.SerializeUncompressed()
	}
	recovered, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(serialized), v.params)
	if err != nil {
		return false, err
	}
	return recovered.EncodeAddress() == address, nil
}
