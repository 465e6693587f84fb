// Package evm bridges ERC20 value between external wallets and the ledger's
// custody account. Deposits pull tokens into custody via transferFrom (the
// bettor grants an allowance first); withdrawals transfer tokens back out.
// The ledger's internal account balance is only touched by the caller after
// the on-chain transfer is mined, so a failed transfer never dirties the
// ledger.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20ABI covers the two methods the bridge calls.
const erc20ABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const (
	transferGasLimit   = 100_000
	receiptPollEvery   = 2 * time.Second
	receiptPollTimeout = 2 * time.Minute
)

// ledgerDecimals is the precision of internal micro-unit amounts.
const ledgerDecimals = 6

// Config holds the bridge's chain parameters.
type Config struct {
	RPCURL        string
	ChainID       int64
	Token         common.Address // ERC20 the ledger settles in
	TokenDecimals int            // defaults to 6 (USDC-style)
}

// Bridge signs and submits custody transfers for the configured token.
type Bridge struct {
	client   *ethclient.Client
	erc20    abi.ABI
	token    common.Address
	custody  common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	decimals int
	logger   *slog.Logger
}

// New dials the RPC endpoint and prepares the bridge with the custody key.
func New(ctx context.Context, cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) (*Bridge, error) {
	if cfg.Token == (common.Address{}) {
		return nil, errors.New("evm: token address is required")
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("evm: parse erc20 abi: %w", err)
	}

	decimals := cfg.TokenDecimals
	if decimals == 0 {
		decimals = ledgerDecimals
	}

	return &Bridge{
		client:   client,
		erc20:    parsed,
		token:    cfg.Token,
		custody:  ethcrypto.PubkeyToAddress(key.PublicKey),
		key:      key,
		chainID:  big.NewInt(cfg.ChainID),
		decimals: decimals,
		logger:   logger.With(slog.String("component", "evm_bridge")),
	}, nil
}

// Custody returns the custody account address derived from the signing key.
func (b *Bridge) Custody() common.Address {
	return b.custody
}

// Close releases the RPC connection.
func (b *Bridge) Close() {
	b.client.Close()
}

// TransferIn pulls amount (micro-units) from the depositor's wallet into
// custody via transferFrom. The depositor must have approved the custody
// address beforehand.
func (b *Bridge) TransferIn(ctx context.Context, from common.Address, amount int64) (common.Hash, error) {
	input, err := b.erc20.Pack("transferFrom", from, b.custody, b.toTokenUnits(amount))
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: pack transferFrom: %w", err)
	}
	return b.submit(ctx, input)
}

// TransferOut sends amount (micro-units) from custody to the given wallet.
func (b *Bridge) TransferOut(ctx context.Context, to common.Address, amount int64) (common.Hash, error) {
	input, err := b.erc20.Pack("transfer", to, b.toTokenUnits(amount))
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: pack transfer: %w", err)
	}
	return b.submit(ctx, input)
}

// toTokenUnits scales a micro-unit amount to the token's native decimals.
func (b *Bridge) toTokenUnits(amount int64) *big.Int {
	v := big.NewInt(amount)
	switch {
	case b.decimals > ledgerDecimals:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(b.decimals-ledgerDecimals)), nil)
		v.Mul(v, exp)
	case b.decimals < ledgerDecimals:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(ledgerDecimals-b.decimals)), nil)
		v.Quo(v, exp)
	}
	return v
}

// submit signs a token-contract call from the custody account, broadcasts
// it, and waits for a successful receipt.
func (b *Bridge) submit(ctx context.Context, input []byte) (common.Hash, error) {
	nonce, err := b.client.PendingNonceAt(ctx, b.custody)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: pending nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &b.token,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: sign tx: %w", err)
	}

	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("evm: send tx: %w", err)
	}

	hash := signed.Hash()
	b.logger.InfoContext(ctx, "custody transfer submitted",
		slog.String("tx", hash.Hex()),
	)

	if err := b.waitMined(ctx, hash); err != nil {
		return hash, err
	}
	return hash, nil
}

// waitMined polls for the transaction receipt until it lands or the timeout
// elapses, and rejects reverted transactions.
func (b *Bridge) waitMined(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, receiptPollTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollEvery)
	defer ticker.Stop()

	for {
		receipt, err := b.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("evm: tx %s reverted", hash.Hex())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("evm: receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("evm: waiting for tx %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
