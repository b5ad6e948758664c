// Package ethereum submits ledger entries to the SimpleFraudDetection
// contract over JSON-RPC and reads them back.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/ledger"
)

// ErrReverted is returned when the submission was mined but failed.
var ErrReverted = errors.New("ledger transaction reverted")

// Backend is what the ledger needs from a node connection. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config holds the connection settings.
type Config struct {
	NetworkURL      string
	ContractAddress string
	// PrivateKey is hex, with or without 0x. Empty gives a read-only ledger.
	PrivateKey string
	// ChainID is queried from the node when zero.
	ChainID int64
}

// Ledger is the contract-backed ledger.
type Ledger struct {
	backend  Backend
	closer   func()
	contract *bind.BoundContract
	address  common.Address
	signer   *bind.TransactOpts
	log      zerolog.Logger
}

// Dial connects to cfg.NetworkURL and binds the contract.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Ledger, error) {
	client, err := ethclient.DialContext(ctx, cfg.NetworkURL)
	if err != nil {
		return nil, fmt.Errorf("Dial: connecting to %s: %w", cfg.NetworkURL, err)
	}
	l, err := New(ctx, client, cfg, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	l.closer = client.Close
	return l, nil
}

// New binds the contract on an existing backend.
func New(ctx context.Context, backend Backend, cfg Config, log zerolog.Logger) (*Ledger, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("New: invalid contract address %q", cfg.ContractAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("New: parsing ABI: %w", err)
	}
	address := common.HexToAddress(cfg.ContractAddress)

	l := &Ledger{
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		address:  address,
		log:      log.With().Str("component", "ethereum_ledger").Str("contract", address.Hex()).Logger(),
	}

	if cfg.PrivateKey != "" {
		key, err := parseKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		chainID := big.NewInt(cfg.ChainID)
		if cfg.ChainID == 0 {
			if chainID, err = backend.ChainID(ctx); err != nil {
				return nil, fmt.Errorf("New: querying chain id: %w", err)
			}
		}
		if l.signer, err = bind.NewKeyedTransactorWithChainID(key, chainID); err != nil {
			return nil, fmt.Errorf("New: creating transactor: %w", err)
		}
		l.log = l.log.With().Str("sender", l.signer.From.Hex()).Logger()
	}

	return l, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}

// Sender returns the signing address, or the zero address for a read-only ledger.
func (l *Ledger) Sender() common.Address {
	if l.signer == nil {
		return common.Address{}
	}
	return l.signer.From
}

// Submit sends recordTransaction and waits for it to be mined. The nonce is
// taken from the node's pending state, so callers must not overlap Submits
// from the same key.
func (l *Ledger) Submit(ctx context.Context, dataHash [32]byte, isFraudulent bool, companyID [32]byte) (domain.LedgerReceipt, error) {
	if l.signer == nil {
		return domain.LedgerReceipt{}, errors.New("Submit: ledger has no signing key")
	}

	opts := *l.signer
	opts.Context = ctx

	tx, err := l.contract.Transact(&opts, methodRecord, dataHash, isFraudulent, companyID)
	if err != nil {
		return domain.LedgerReceipt{}, fmt.Errorf("Submit: sending transaction: %w", err)
	}
	l.log.Debug().Str("tx_hash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).Msg("Submitted ledger transaction")

	receipt, err := bind.WaitMined(ctx, l.backend, tx)
	if err != nil {
		return domain.LedgerReceipt{ConfirmationID: tx.Hash().Hex()}, fmt.Errorf("Submit: waiting for %s: %w", tx.Hash().Hex(), err)
	}

	out := domain.LedgerReceipt{
		ConfirmationID: tx.Hash().Hex(),
		Success:        receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !out.Success {
		return out, fmt.Errorf("Submit: %s: %w", tx.Hash().Hex(), ErrReverted)
	}
	return out, nil
}

// EntryCount calls transactionCount().
func (l *Ledger) EntryCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodCount); err != nil {
		return 0, fmt.Errorf("EntryCount: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("EntryCount: unexpected output length %d", len(out))
	}
	count := *abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	if !count.IsUint64() {
		return 0, fmt.Errorf("EntryCount: count %s overflows uint64", count.String())
	}
	return count.Uint64(), nil
}

// Entry calls transactions(index).
func (l *Ledger) Entry(ctx context.Context, index uint64) (domain.LedgerEntry, error) {
	if index == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("Entry %d: %w", index, ledger.ErrIndexOutOfRange)
	}
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodEntry, new(big.Int).SetUint64(index)); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("Entry %d: %w", index, err)
	}
	entry, err := decodeEntry(out)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("Entry %d: %w", index, err)
	}
	// solidity mappings return zero structs for unknown keys
	if entry.ID == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("Entry %d: %w", index, ledger.ErrIndexOutOfRange)
	}
	return entry, nil
}

func decodeEntry(out []interface{}) (domain.LedgerEntry, error) {
	if len(out) != 4 {
		return domain.LedgerEntry{}, fmt.Errorf("unexpected output length %d", len(out))
	}
	id := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	if !id.IsUint64() {
		return domain.LedgerEntry{}, fmt.Errorf("id %s overflows uint64", id.String())
	}
	return domain.LedgerEntry{
		ID:           id.Uint64(),
		DataHash:     *abi.ConvertType(out[1], new([32]byte)).(*[32]byte),
		IsFraudulent: *abi.ConvertType(out[2], new(bool)).(*bool),
		CompanyID:    *abi.ConvertType(out[3], new([32]byte)).(*[32]byte),
	}, nil
}

// Close releases the node connection when Dial opened it.
func (l *Ledger) Close() error {
	if l.closer != nil {
		l.closer()
	}
	return nil
}

var _ ledger.Ledger = (*Ledger)(nil)
