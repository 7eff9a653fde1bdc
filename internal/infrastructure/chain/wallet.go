package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Backend is what a signing wallet needs from the node. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// KeyedWallet signs with a local private key and broadcasts through the backend.
type KeyedWallet struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	logger  *logger.Logger
}

func NewKeyedWallet(backend Backend, hexKey string, chainID int64, log *logger.Logger) (*KeyedWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}

	return &KeyedWallet{
		backend: backend,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		logger:  log,
	}, nil
}

func (w *KeyedWallet) Address() common.Address {
	return w.address
}

// Send signs a transaction carrying data to the given contract. Nonce, gas and fees are
// filled in from the backend.
func (w *KeyedWallet) Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(to, abi.ABI{}, w.backend, w.backend, w.backend)
	tx, err := contract.RawTransact(opts, data)
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.logger.Infow("Transaction sent",
		"from", w.address.Hex(),
		"to", to.Hex(),
		"tx_hash", tx.Hash().Hex(),
		"nonce", tx.Nonce(),
	)

	return tx, nil
}

func (w *KeyedWallet) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, w.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}
