package app

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/genip/business/wallet/domain"
	"github.com/fd1az/genip/internal/apperror"
	"github.com/fd1az/genip/internal/ratelimit"
)

// walletWriter signs and sends through the wallet for one account on one
// chain. Any account or chain change discards it.
type walletWriter struct {
	bridge  *Bridge
	from    common.Address
	chainID uint64
}

func (w *walletWriter) sendTransaction(ctx context.Context, req domain.TxRequest) (common.Hash, error) {
	// Refuse to sign for a chain other than the required one, even if the
	// wallet changed networks without telling us yet.
	current, err := w.bridge.chainID(ctx)
	if err != nil {
		return common.Hash{}, callError(apperror.CodeTransactionFailed, "eth_chainId", err)
	}
	if current != w.bridge.config.Chain.ID {
		return common.Hash{}, apperror.New(apperror.CodeWrongNetwork,
			apperror.WithContext("wallet on chain "+hexutil.EncodeUint64(current)))
	}

	var hash common.Hash
	if err := w.bridge.call(ctx, "eth_sendTransaction", &hash, req.Args(w.from)); err != nil {
		return common.Hash{}, callError(apperror.CodeTransactionFailed, "eth_sendTransaction", err)
	}
	return hash, nil
}

func (w *walletWriter) signMessage(ctx context.Context, text string) ([]byte, error) {
	var sig hexutil.Bytes
	if err := w.bridge.call(ctx, "personal_sign", &sig, hexutil.Encode([]byte(text)), w.from); err != nil {
		return nil, callError(apperror.CodeSignatureFailed, "personal_sign", err)
	}
	return sig, nil
}

// activeWriter returns the writer for the current account and chain,
// building a new one when either changed.
func (b *Bridge) activeWriter() (*walletWriter, error) {
	st := b.tracker.Get()
	if !st.IsConnected || st.Address == nil {
		return nil, apperror.New(apperror.CodeNotConnected)
	}
	var chainID uint64
	if st.ChainID != nil {
		chainID = *st.ChainID
	}

	b.writerMu.Lock()
	defer b.writerMu.Unlock()

	if b.writer == nil || b.writer.from != *st.Address || b.writer.chainID != chainID {
		b.writer = &walletWriter{bridge: b, from: *st.Address, chainID: chainID}
	}
	return b.writer, nil
}

func (b *Bridge) invalidateWriter() {
	b.writerMu.Lock()
	b.writer = nil
	b.writerMu.Unlock()
}

// SendTransaction asks the wallet to sign and broadcast req.
func (b *Bridge) SendTransaction(ctx context.Context, req domain.TxRequest) (common.Hash, error) {
	ctx, span := b.tracer.Start(ctx, "wallet.send_transaction")
	defer span.End()
	start := time.Now()
	defer b.observe(ctx, "send_transaction", start)

	w, err := b.activeWriter()
	if err != nil {
		return common.Hash{}, spanError(span, err)
	}

	hash, err := w.sendTransaction(ctx, req)
	if err != nil {
		b.logger.Warn(ctx, "transaction failed", logFields(err)...)
		return common.Hash{}, spanError(span, err)
	}

	span.SetAttributes(attribute.String("tx_hash", hash.Hex()))
	span.SetStatus(codes.Ok, "sent")
	b.logger.Info(ctx, "transaction sent", "hash", hash.Hex(), "explorer", b.config.Chain.ExplorerTxURL(hash.Hex()))
	return hash, nil
}

// WriteContract sends a state-changing contract call with an optional value.
func (b *Bridge) WriteContract(ctx context.Context, call domain.ContractCall, value *big.Int) (common.Hash, error) {
	data, err := call.Pack()
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("pack "+call.Method), apperror.WithCause(err))
	}
	to := call.Address
	return b.SendTransaction(ctx, domain.TxRequest{To: &to, Value: value, Data: data})
}

// SignMessage asks the wallet for a personal_sign signature over text.
func (b *Bridge) SignMessage(ctx context.Context, text string) ([]byte, error) {
	ctx, span := b.tracer.Start(ctx, "wallet.sign_message")
	defer span.End()
	start := time.Now()
	defer b.observe(ctx, "sign_message", start)

	w, err := b.activeWriter()
	if err != nil {
		return nil, spanError(span, err)
	}

	sig, err := w.signMessage(ctx, text)
	if err != nil {
		b.logger.Warn(ctx, "message signing failed", logFields(err)...)
		return nil, spanError(span, err)
	}

	span.SetStatus(codes.Ok, "signed")
	return sig, nil
}

// Query performs a read-only contract call against the chain reader.
func (b *Bridge) Query(ctx context.Context, call domain.ContractCall) ([]any, error) {
	ctx, span := b.tracer.Start(ctx, "wallet.query",
		trace.WithAttributes(
			attribute.String("contract", call.Address.Hex()),
			attribute.String("method", call.Method),
		))
	defer span.End()
	start := time.Now()
	defer b.observe(ctx, "query", start)

	st := b.tracker.Get()
	if !st.IsConnected || st.Address == nil {
		return nil, spanError(span, apperror.New(apperror.CodeNotConnected))
	}

	data, err := call.Pack()
	if err != nil {
		return nil, spanError(span, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("pack "+call.Method), apperror.WithCause(err)))
	}

	to := call.Address
	out, err := b.reader.CallContract(ctx, ethereum.CallMsg{From: *st.Address, To: &to, Data: data}, nil)
	if err != nil {
		return nil, spanError(span, callError(apperror.CodeContractCallFailed, call.Method, err))
	}

	res, err := call.Unpack(out)
	if err != nil {
		return nil, spanError(span, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unpack "+call.Method), apperror.WithCause(err)))
	}

	span.SetStatus(codes.Ok, "ok")
	return res, nil
}

// WaitForConfirmation polls for the receipt of hash. A timeout <= 0 uses the
// configured default. Running out of time yields CodeConfirmationTimeout and
// is not retried.
func (b *Bridge) WaitForConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, span := b.tracer.Start(ctx, "wallet.wait_for_confirmation",
		trace.WithAttributes(attribute.String("tx_hash", hash.Hex())))
	defer span.End()
	start := time.Now()
	defer b.observe(ctx, "wait_for_confirmation", start)

	if _, err := b.activeWriter(); err != nil {
		return nil, spanError(span, err)
	}
	if timeout <= 0 {
		timeout = b.config.ConfirmationTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := ratelimit.Every(b.config.ReceiptPollInterval)

	var lastErr error
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// The limiter refuses waits that would overrun the deadline;
			// sit out the remaining time instead of failing early.
			<-waitCtx.Done()
			break
		}

		receipt, err := b.reader.TransactionReceipt(waitCtx, hash)
		if err == nil {
			span.SetAttributes(attribute.Int64("status", int64(receipt.Status)))
			span.SetStatus(codes.Ok, "confirmed")
			b.logger.Info(ctx, "transaction confirmed",
				"hash", hash.Hex(),
				"block", receipt.BlockNumber,
				"status", receipt.Status)
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			lastErr = err
			b.logger.Debug(ctx, "receipt poll failed", logFields(err)...)
		}
		if waitCtx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return nil, spanError(span, ctx.Err())
	}
	return nil, spanError(span, apperror.New(apperror.CodeConfirmationTimeout,
		apperror.WithContext(hash.Hex()+" after "+timeout.String()),
		apperror.WithCause(lastErr)))
}

// callError maps a provider or RPC failure to an operation error, keeping
// user rejections distinguishable.
func callError(code apperror.Code, op string, err error) *apperror.AppError {
	if apperror.IsAppError(err) {
		return apperror.Wrap(err, code, op)
	}
	if domain.ProviderErrorCode(err) == domain.ProviderCodeUserRejected {
		return apperror.New(apperror.CodeUserRejected, apperror.WithContext(op), apperror.WithCause(err))
	}
	return apperror.External(code, op, err)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperror.GetCode(err)))
	return err
}
