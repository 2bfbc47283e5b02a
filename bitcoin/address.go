package bitcoin

import (
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var errNoMatch = errors.New("script does not match")

// AddressForOutput derives the address an output pays. Bare multisig, null
// data and non-standard scripts have none.
func AddressForOutput(out *Output, params *chaincfg.Params) string {
	return out.memo(func() string {
		class, addrs, _, err := txscript.ExtractPkScriptAddrs(out.TxOut.PkScript, params)
		if err != nil || len(addrs) != 1 || class == txscript.MultiSigTy {
			return ""
		}
		return addrs[0].EncodeAddress()
	})
}

type inputStrategy func(in *Input, params *chaincfg.Params) (btcutil.Address, error)

// tried in order, the first one that decodes wins
var inputStrategies = []inputStrategy{
	p2pkhInput,
	p2wpkhInput,
	p2wshInput,
	p2shInput,
	p2pkInput,
	multisigInput,
}

// AddressForInput recovers the address an input spends from, or "" when no
// strategy decodes. P2PK and multisig need the previous output attached.
func AddressForInput(in *Input, params *chaincfg.Params) string {
	return in.memo(func() string {
		if in.IsCoinbase() {
			return ""
		}
		for _, strategy := range inputStrategies {
			addr, err := strategy(in, params)
			if err == nil && addr != nil {
				return addr.EncodeAddress()
			}
		}
		return ""
	})
}

// pushes returns the data pushes of a push-only script.
func pushes(script []byte) ([][]byte, error) {
	var data [][]byte
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		if tokenizer.Opcode() > txscript.OP_16 {
			return nil, errNoMatch
		}
		data = append(data, tokenizer.Data())
	}
	if err := tokenizer.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

func isPubKey(b []byte) bool {
	if len(b) != 33 && len(b) != 65 {
		return false
	}
	_, err := btcec.ParsePubKey(b)
	return err == nil
}

func p2pkhInput(in *Input, params *chaincfg.Params) (btcutil.Address, error) {
	if len(in.TxIn.Witness) > 0 {
		return nil, errNoMatch
	}
	data, err := pushes(in.TxIn.SignatureScript)
	if err != nil || len(data) != 2 || !isPubKey(data[1]) {
		return nil, errNoMatch
	}
	return btcutil.NewAddressPubKeyHash(btcutil.Hash160(data[1]), params)
}

func p2wpkhInput(in *Input, params *chaincfg.Params) (btcutil.Address, error) {
	w := in.TxIn.Witness
	if len(in.TxIn.SignatureScript) > 0 || len(w) != 2 || len(w[1]) != 33 || !isPubKey(w[1]) {
		return nil, errNoMatch
	}
	return btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(w[1]), params)
}

func p2wshInput(in *Input, params *chaincfg.Params) (btcutil.Address, error) {
	w := in.TxIn.Witness
	if len(in.TxIn.SignatureScript) > 0 || len(w) < 2 {
		return nil, errNoMatch
	}
	witnessScript := w[len(w)-1]
	if len(witnessScript) == 0 || isPubKey(witnessScript) {
		return nil, errNoMatch
	}
	hash := sha256.Sum256(witnessScript)
	return btcutil.NewAddressWitnessScriptHash(hash[:], params)
}

func p2shInput(in *Input, params *chaincfg.Params) (btcutil.Address, error) {
	data, err := pushes(in.TxIn.SignatureScript)
	if err != nil || len(data) == 0 {
		return nil, errNoMatch
	}
	redeem := data[len(data)-1]
	if len(redeem) == 0 || txscript.GetScriptClass(redeem) == txscript.NonStandardTy {
		return nil, errNoMatch
	}
	return btcutil.NewAddressScriptHash(redeem, params)
}

// prevOutAddresses runs under in.mu, held by memo.
func prevOutAddresses(in *Input, params *chaincfg.Params, want txscript.ScriptClass) ([]btcutil.Address, error) {
	prev := in.prevOut
	if prev == nil {
		return nil, errNoMatch
	}
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(prev.TxOut.PkScript, params)
	if err != nil || class != want || len(addrs) == 0 {
		return nil, errNoMatch
	}
	return addrs, nil
}

func p2pkInput(in *Input, params *chaincfg.Params) (btcutil.Address, error) {
	addrs, err := prevOutAddresses(in, params, txscript.PubKeyTy)
	if err != nil {
		return nil, err
	}
	pk, ok := addrs[0].(*btcutil.AddressPubKey)
	if !ok {
		return nil, errNoMatch
	}
	return pk.AddressPubKeyHash(), nil
}

// multisigInput reports the first key of a bare multisig output.
func multisigInput(in *Input, params *chaincfg.Params) (btcutil.Address, error) {
	addrs, err := prevOutAddresses(in, params, txscript.MultiSigTy)
	if err != nil {
		return nil, err
	}
	pk, ok := addrs[0].(*btcutil.AddressPubKey)
	if !ok {
		return nil, errNoMatch
	}
	return pk.AddressPubKeyHash(), nil
}
