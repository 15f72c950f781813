package verifier

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// tronAddressVersion prefixes every Tron mainnet address payload.
const tronAddressVersion = 0x41

const addressPayloadLen = 20

// CanonicalAddress maps the accepted spellings of one address onto a single
// string: Tron base58check ("T...") and Tron hex ("41...") both become
// base58check, EVM hex ("0x...") becomes its EIP-55 checksummed form.
func CanonicalAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	switch {
	case address == "":
		return "", errors.New("empty address")

	case strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X"):
		if !common.IsHexAddress(address) {
			return "", errors.Errorf("malformed evm address %q", address)
		}
		return common.HexToAddress(address).Hex(), nil

	case len(address) == 2*(addressPayloadLen+1) && strings.HasPrefix(address, "41"):
		raw, err := hex.DecodeString(address)
		if err != nil {
			return "", errors.Wrapf(err, "malformed tron hex address %q", address)
		}
		return base58.CheckEncode(raw[1:], tronAddressVersion), nil

	default:
		payload, version, err := base58.CheckDecode(address)
		if err != nil {
			return "", errors.Wrapf(err, "malformed tron address %q", address)
		}
		if version != tronAddressVersion || len(payload) != addressPayloadLen {
			return "", errors.Errorf("not a tron address %q", address)
		}
		return base58.CheckEncode(payload, tronAddressVersion), nil
	}
}

// ValidateAddress reports whether address is in an accepted format.
func ValidateAddress(address string) error {
	_, err := CanonicalAddress(address)
	return err
}

// SameAddress compares two addresses in canonical form. Unparseable
// addresses never match.
func SameAddress(a, b string) bool {
	ca, err := CanonicalAddress(a)
	if err != nil {
		return false
	}
	cb, err := CanonicalAddress(b)
	if err != nil {
		return false
	}
	return ca == cb
}

// NormalizeTxID returns the lowercase 64 hex digit form of a transaction
// hash, accepting an optional 0x prefix.
func NormalizeTxID(txID string) (string, error) {
	txID = strings.ToLower(strings.TrimSpace(txID))
	txID = strings.TrimPrefix(txID, "0x")
	if len(txID) != chainhash.MaxHashStringSize {
		return "", errors.Errorf("transaction hash must be %d hex digits", chainhash.MaxHashStringSize)
	}
	if _, err := chainhash.NewHashFromStr(txID); err != nil {
		return "", errors.Wrap(err, "transaction hash is not hex")
	}
	return txID, nil
}
