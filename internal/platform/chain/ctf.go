// Package chain provides the on-chain client for the Gnosis Conditional
// Tokens Framework (CTF) contract. The arbitrage engine uses it to mint
// full outcome sets by splitting collateral.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// splitPositionABI covers the single CTF method the engine calls.
const splitPositionABI = `[{"inputs":[{"internalType":"contract IERC20","name":"collateralToken","type":"address"},{"internalType":"bytes32","name":"parentCollectionId","type":"bytes32"},{"internalType":"bytes32","name":"conditionId","type":"bytes32"},{"internalType":"uint256[]","name":"partition","type":"uint256[]"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"splitPosition","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// receiptPollInterval is how often WaitForReceipt re-queries the node.
const receiptPollInterval = 2 * time.Second

// Config holds the contract addresses and gas parameters for split
// transactions.
type Config struct {
	RPCURL            string
	ChainID           int64
	CTFAddress        string
	CollateralAddress string
	GasLimit          uint64
	GasPriceGwei      int64
	// SplitAmountUnits is the collateral amount per split in base units
	// (1e6 = 1 USDC).
	SplitAmountUnits int64
}

// CTFClient submits splitPosition transactions and waits for their receipts.
type CTFClient struct {
	client    *ethclient.Client
	parsedABI abi.ABI
	signer    *crypto.Signer
	cfg       Config
	logger    *slog.Logger
}

// NewCTFClient dials the RPC endpoint and prepares the CTF ABI.
func NewCTFClient(cfg Config, signer *crypto.Signer, logger *slog.Logger) (*CTFClient, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain/ctf: dial %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(splitPositionABI))
	if err != nil {
		return nil, fmt.Errorf("chain/ctf: parse ABI: %w", err)
	}

	return &CTFClient{
		client:    client,
		parsedABI: parsed,
		signer:    signer,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "ctf_client")),
	}, nil
}

// SplitPosition sends a splitPosition transaction minting one full outcome
// set per SplitAmountUnits of collateral for the given condition. It
// returns the transaction hash without waiting for inclusion.
func (c *CTFClient) SplitPosition(ctx context.Context, conditionID string, outcomeCount int) (string, error) {
	if outcomeCount < 2 {
		return "", fmt.Errorf("chain/ctf: condition %s has %d outcomes, need at least 2", conditionID, outcomeCount)
	}

	// Index-set partition covering every outcome slot.
	partition := make([]*big.Int, 0, outcomeCount)
	for i := 1; i <= outcomeCount; i++ {
		partition = append(partition, big.NewInt(int64(i)))
	}

	var conditionHash common.Hash
	condBytes := common.FromHex(conditionID)
	if len(condBytes) != common.HashLength {
		return "", fmt.Errorf("chain/ctf: condition ID %q is not a 32-byte hex value", conditionID)
	}
	conditionHash = common.BytesToHash(condBytes)

	data, err := c.parsedABI.Pack(
		"splitPosition",
		common.HexToAddress(c.cfg.CollateralAddress),
		common.Hash{}, // parent collection: top level
		conditionHash,
		partition,
		big.NewInt(c.cfg.SplitAmountUnits),
	)
	if err != nil {
		return "", fmt.Errorf("chain/ctf: pack splitPosition: %w", err)
	}

	from := c.signer.Address()
	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("chain/ctf: pending nonce: %w", err)
	}

	gasPrice := new(big.Int).Mul(big.NewInt(c.cfg.GasPriceGwei), big.NewInt(1e9))
	to := common.HexToAddress(c.cfg.CTFAddress)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      c.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(c.cfg.ChainID)), c.signer.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("chain/ctf: sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("chain/ctf: send transaction: %w", err)
	}

	hash := signedTx.Hash().Hex()
	c.logger.Info("split transaction sent",
		slog.String("tx_hash", hash),
		slog.String("condition_id", conditionID),
		slog.Int("outcomes", outcomeCount),
		slog.Int64("amount_units", c.cfg.SplitAmountUnits))

	return hash, nil
}

// WaitForReceipt polls the node until the transaction is mined or ctx is
// cancelled. A mined transaction with a failure status returns
// domain.ErrSettlementFailed.
func (c *CTFClient) WaitForReceipt(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("chain/ctf: tx %s reverted: %w", txHash, domain.ErrSettlementFailed)
			}
			c.logger.Info("split transaction confirmed",
				slog.String("tx_hash", txHash),
				slog.Uint64("block", receipt.BlockNumber.Uint64()),
				slog.Uint64("gas_used", receipt.GasUsed))
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("chain/ctf: waiting for tx %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the underlying RPC connection.
func (c *CTFClient) Close() {
	c.client.Close()
}
