package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"pool-onboarding-go/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const memberlistABI = `[
	{"type":"function","name":"updateMember","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"validUntil","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"hasMember","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

// gasPriceMultiplier is the static bump over the node's suggested gas price
var gasPriceMultiplier = decimal.RequireFromString("1.25")

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrReverted       = errors.New("transaction reverted")
)

// TxHandle identifies a submitted membership transaction
type TxHandle struct {
	tx *types.Transaction
}

func NewTxHandle(tx *types.Transaction) *TxHandle {
	return &TxHandle{tx: tx}
}

func (h *TxHandle) Hash() string {
	return h.tx.Hash().Hex()
}

func (h *TxHandle) Transaction() *types.Transaction {
	return h.tx
}

// Registry is the on-chain membership registry. SubmitMembership must only be
// called through a Signer.
type Registry interface {
	SubmitMembership(ctx context.Context, registryAddress, member string, validUntil time.Time) (*TxHandle, error)
	WaitMined(ctx context.Context, tx *TxHandle) error
	IsMember(ctx context.Context, registryAddress, member string) (bool, error)
}

// Backend is the subset of the RPC client the registry needs
type Backend interface {
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthRegistry submits memberlist transactions from a single signing key and
// tracks its nonce locally.
type EthRegistry struct {
	backend       Backend
	key           *ecdsa.PrivateKey
	from          common.Address
	signer        types.Signer
	gasLimit      uint64
	submitTimeout time.Duration
	abi           abi.ABI

	mu        sync.Mutex
	nextNonce *uint64
}

var _ Registry = (*EthRegistry)(nil)

// DialRegistry connects to the configured RPC endpoint.
func DialRegistry(ctx context.Context, cfg models.ChainConfig) (*EthRegistry, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain rpc url cannot be empty")
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("unable to dial chain rpc: %w", err)
	}
	r, err := NewRegistry(ctx, client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

func NewRegistry(ctx context.Context, backend Backend, cfg models.ChainConfig) (*EthRegistry, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(memberlistABI))
	if err != nil {
		return nil, fmt.Errorf("unable to parse memberlist abi: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get chain id: %w", err)
	}

	r := &EthRegistry{
		backend:       backend,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		signer:        types.LatestSignerForChainID(chainID),
		gasLimit:      cfg.GasLimit,
		submitTimeout: cfg.SubmitTimeout,
		abi:           parsed,
	}
	zap.L().Info("Membership registry signer ready",
		zap.String("from", r.from.Hex()),
		zap.String("chain_id", chainID.String()))
	return r, nil
}

// Close releases the RPC connection when the backend holds one.
func (r *EthRegistry) Close() {
	if c, ok := r.backend.(interface{ Close() }); ok {
		c.Close()
	}
}

// From returns the signer address.
func (r *EthRegistry) From() string {
	return r.from.Hex()
}

func (r *EthRegistry) SubmitMembership(ctx context.Context, registryAddress, member string, validUntil time.Time) (*TxHandle, error) {
	if !common.IsHexAddress(registryAddress) {
		return nil, fmt.Errorf("%w: registry %q", ErrInvalidAddress, registryAddress)
	}
	if !common.IsHexAddress(member) {
		return nil, fmt.Errorf("%w: member %q", ErrInvalidAddress, member)
	}
	if r.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.submitTimeout)
		defer cancel()
	}

	data, err := r.abi.Pack("updateMember", common.HexToAddress(member), big.NewInt(validUntil.Unix()))
	if err != nil {
		return nil, fmt.Errorf("unable to encode updateMember: %w", err)
	}

	suggested, err := r.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get gas price: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nonce, err := r.nonce(ctx)
	if err != nil {
		return nil, err
	}

	to := common.HexToAddress(registryAddress)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      r.gasLimit,
		GasPrice: BumpGasPrice(suggested),
		Data:     data,
	})
	signed, err := types.SignTx(tx, r.signer, r.key)
	if err != nil {
		return nil, fmt.Errorf("unable to sign transaction: %w", err)
	}

	if err := r.backend.SendTransaction(ctx, signed); err != nil {
		// resync from the node on the next submission
		r.nextNonce = nil
		return nil, fmt.Errorf("unable to send transaction: %w", err)
	}

	next := nonce + 1
	r.nextNonce = &next

	zap.L().Info("Membership transaction submitted",
		zap.String("registry", to.Hex()),
		zap.String("member", member),
		zap.Uint64("nonce", nonce),
		zap.String("tx_hash", signed.Hash().Hex()))
	return NewTxHandle(signed), nil
}

func (r *EthRegistry) nonce(ctx context.Context) (uint64, error) {
	if r.nextNonce != nil {
		return *r.nextNonce, nil
	}
	n, err := r.backend.PendingNonceAt(ctx, r.from)
	if err != nil {
		return 0, fmt.Errorf("unable to get pending nonce: %w", err)
	}
	return n, nil
}

// WaitMined blocks until the transaction is mined, bounded only by ctx.
func (r *EthRegistry) WaitMined(ctx context.Context, tx *TxHandle) error {
	receipt, err := bind.WaitMined(ctx, r.backend, tx.tx)
	if err != nil {
		return fmt.Errorf("unable to wait for %s: %w", tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrReverted, tx.Hash())
	}
	return nil
}

func (r *EthRegistry) IsMember(ctx context.Context, registryAddress, member string) (bool, error) {
	if !common.IsHexAddress(registryAddress) || !common.IsHexAddress(member) {
		return false, fmt.Errorf("%w: %q / %q", ErrInvalidAddress, registryAddress, member)
	}

	data, err := r.abi.Pack("hasMember", common.HexToAddress(member))
	if err != nil {
		return false, fmt.Errorf("unable to encode hasMember: %w", err)
	}
	to := common.HexToAddress(registryAddress)
	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{From: r.from, To: &to, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("unable to call hasMember: %w", err)
	}

	values, err := r.abi.Unpack("hasMember", out)
	if err != nil {
		return false, fmt.Errorf("unable to decode hasMember: %w", err)
	}
	if len(values) != 1 {
		return false, fmt.Errorf("unexpected hasMember result length %d", len(values))
	}
	isMember, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected hasMember result type %T", values[0])
	}
	return isMember, nil
}

// BumpGasPrice applies the static 25% premium.
func BumpGasPrice(suggested *big.Int) *big.Int {
	return decimal.NewFromBigInt(suggested, 0).Mul(gasPriceMultiplier).Ceil().BigInt()
}
