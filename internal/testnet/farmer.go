// Package testnet generates organic testnet transaction history for
// airdrop-qualification purposes: on each cycle it self-transfers a
// dust amount on every configured testnet chain whose wallet carries a
// nonzero balance, grounded on testnet_farmer.py's balance-check +
// self-transfer loop (the original's faucet-claiming step is manual
// and out of scope here).
package testnet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/atlas-desktop/trading-backend/internal/chain"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const selfTransferGas = 21000
const dustTransferWei = 1_000_000_000_000 // 0.000001 ETH equivalent

// Farmer runs one testnet farming cycle across every configured
// testnet chain.
type Farmer struct {
	logger *zap.Logger
	chains *chain.Manager
	testnets []types.ChainConfig
	key    *ecdsa.PrivateKey
	addr   common.Address
}

// New constructs a Farmer. configs should be the full farming chain
// list; only entries with Type == ChainTypeTestnet are farmed.
func New(logger *zap.Logger, chains *chain.Manager, configs []types.ChainConfig, key *ecdsa.PrivateKey) *Farmer {
	var testnets []types.ChainConfig
	for _, c := range configs {
		if c.Type == types.ChainTypeTestnet {
			testnets = append(testnets, c)
		}
	}
	return &Farmer{
		logger:   logger,
		chains:   chains,
		testnets: testnets,
		key:      key,
		addr:     crypto.PubkeyToAddress(key.PublicKey),
	}
}

// RunCycle implements farming.TestnetFarmer: it self-transfers dust on
// every funded testnet chain, logging and skipping unfunded or
// unreachable ones rather than failing the whole cycle.
func (f *Farmer) RunCycle(ctx context.Context) error {
	if len(f.testnets) == 0 {
		return nil
	}

	var lastErr error
	for _, cfg := range f.testnets {
		balance, err := f.chains.BalanceEth(ctx, cfg.Name, f.addr.Hex())
		if err != nil {
			f.logger.Warn("testnet balance check failed", zap.String("chain", cfg.Name), zap.Error(err))
			continue
		}
		if balance.IsZero() {
			f.logger.Debug("testnet chain unfunded, skipping", zap.String("chain", cfg.Name))
			continue
		}

		txHash, err := f.chains.SendTransaction(ctx, cfg.Name, f.key, f.addr, big.NewInt(dustTransferWei), nil, selfTransferGas)
		if err != nil {
			f.logger.Error("testnet self-transfer failed", zap.String("chain", cfg.Name), zap.Error(err))
			lastErr = err
			continue
		}
		f.logger.Info("testnet farming transaction sent", zap.String("chain", cfg.Name), zap.String("tx", txHash))
	}
	if lastErr != nil {
		return fmt.Errorf("testnet: one or more chains failed: %w", lastErr)
	}
	return nil
}
