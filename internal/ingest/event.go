// Package ingest turns raw transaction feeds into buy events for the
// signal pipeline. It accepts enhanced-transaction webhooks and a
// websocket stream, verifies webhook authenticity, and rate limits
// callers.
package ingest

import (
	"time"

	"github.com/solpulse/engine/internal/signal"
)

// Swap program IDs used for platform attribution
const (
	PumpFunProgramID    = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	RaydiumAMMProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

	wrappedSOLMint = "So11111111111111111111111111111111111111112"

	lamportsPerSOL = 1e9
)

// Transaction is an enhanced transaction as delivered by the RPC
// provider's webhook and stream feeds
type Transaction struct {
	Type      string `json:"type"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	FeePayer  string `json:"feePayer"`

	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	Instructions    []Instruction    `json:"instructions"`
}

// NativeTransfer is a SOL movement in lamports
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// TokenTransfer is an SPL token movement
type TokenTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"`
}

// Instruction carries only the program attribution we need
type Instruction struct {
	ProgramID string `json:"programId"`
}

// ParsedSwap is a buy extracted from a transaction
type ParsedSwap struct {
	Event    signal.BuyEvent
	Platform string
}

// ParseSwap extracts a buy from an enhanced transaction: the fee payer
// spends SOL and receives a non-SOL token. Returns nil for anything
// else (sells, transfers, swaps between two tokens).
func ParseSwap(tx *Transaction) *ParsedSwap {
	if tx.Type != "SWAP" || tx.FeePayer == "" {
		return nil
	}

	var solOut float64
	for _, nt := range tx.NativeTransfers {
		if nt.FromUserAccount == tx.FeePayer {
			solOut += float64(nt.Amount) / lamportsPerSOL
		}
	}

	var tokenIn float64
	var tokenAddress string
	for _, tt := range tx.TokenTransfers {
		if tt.Mint == wrappedSOLMint {
			continue
		}
		if tt.ToUserAccount == tx.FeePayer {
			tokenIn += tt.TokenAmount
			tokenAddress = tt.Mint
		}
	}

	if solOut <= 0 || tokenIn <= 0 || tokenAddress == "" {
		return nil
	}

	blockTime := time.Now().UTC()
	if tx.Timestamp > 0 {
		blockTime = time.Unix(tx.Timestamp, 0).UTC()
	}

	platform := "unknown"
	for _, inst := range tx.Instructions {
		switch inst.ProgramID {
		case PumpFunProgramID:
			platform = "pump_fun"
		case RaydiumAMMProgramID:
			platform = "raydium"
		default:
			continue
		}
		break
	}

	return &ParsedSwap{
		Event: signal.BuyEvent{
			WalletAddress: tx.FeePayer,
			TokenAddress:  tokenAddress,
			SOLAmount:     solOut,
			TokenAmount:   tokenIn,
			TxSignature:   tx.Signature,
			BlockTime:     blockTime,
		},
		Platform: platform,
	}
}
