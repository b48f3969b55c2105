package vault

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
)

const (
	wordSize         = 32
	operateWordCount = 5
	operateDataLen   = wordSize * operateWordCount
)

// ErrMalformedPayload marks a log whose data section does not carry the five
// packed words of an operate event. Callers skip the entry rather than abort
// the batch.
var ErrMalformedPayload = errors.New("vault: malformed operate payload")

// VaultContext carries the per-vault token metadata needed to denominate
// decoded ledger rows.
type VaultContext struct {
	VaultAddress common.Address
	Collateral   TokenMetadata
	Debt         TokenMetadata
}

// OperateEvent is the decoded form of a single operate log: the position NFT
// it touched and the ledger rows it expands into.
type OperateEvent struct {
	NftID *big.Int
	Rows  []LedgerRow
}

// DecodeOperateLog decodes one raw operate log into zero, one or two ledger
// rows. The payload is five consecutive 32-byte words: user address
// (ignored), nftId, signed collateral delta, signed debt delta and recipient
// (ignored). A log with both deltas zero decodes to nil, which callers treat
// as a filtered no-op rather than an error.
func DecodeOperateLog(entry RawLogEntry, vctx VaultContext, prices PriceMap) (*OperateEvent, error) {
	if len(entry.Data) != operateDataLen {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedPayload, len(entry.Data), operateDataLen)
	}

	nftID := new(uint256.Int).SetBytes32(word(entry.Data, 1)).ToBig()
	collateralDelta := signedWord(entry.Data, 2)
	debtDelta := signedWord(entry.Data, 3)

	if collateralDelta.Sign() == 0 && debtDelta.Sign() == 0 {
		return nil, nil
	}

	date := time.Unix(int64(entry.BlockTimestamp), 0).UTC()
	rows := make([]LedgerRow, 0, 2)
	if collateralDelta.Sign() != 0 {
		kind := RowDeposit
		if collateralDelta.Sign() < 0 {
			kind = RowWithdrawal
		}
		rows = append(rows, newRow(date, kind, vctx.Collateral, collateralDelta, prices, entry.TxHash))
	}
	if debtDelta.Sign() != 0 {
		kind := RowBorrow
		if debtDelta.Sign() < 0 {
			kind = RowRepayment
		}
		rows = append(rows, newRow(date, kind, vctx.Debt, debtDelta, prices, entry.TxHash))
	}

	return &OperateEvent{NftID: nftID, Rows: rows}, nil
}

func newRow(date time.Time, kind RowKind, token TokenMetadata, delta *big.Int, prices PriceMap, tx common.Hash) LedgerRow {
	amount := ToDecimal(delta, token.Decimals)
	return LedgerRow{
		Date:        date,
		Description: kind,
		Asset:       token.Symbol,
		Amount:      amount,
		USDValue:    amount.Abs().Mul(prices.USD(token.Symbol)),
		TxHash:      tx,
		IsCredit:    delta.Sign() < 0,
	}
}

func word(data []byte, index int) []byte {
	return data[index*wordSize : (index+1)*wordSize]
}

// signedWord reads a 32-byte word as an exact two's-complement 256-bit
// integer. Values with the top bit set come back negative.
func signedWord(data []byte, index int) *big.Int {
	unsigned := new(uint256.Int).SetBytes32(word(data, index)).ToBig()
	return gethmath.S256(unsigned)
}
