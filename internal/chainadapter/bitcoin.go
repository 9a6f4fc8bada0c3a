package chainadapter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160"

	"github.com/klingon-exchange/atomiq-core/internal/backend"
	"github.com/klingon-exchange/atomiq-core/internal/chain"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/internal/wallet"
	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// BitcoinKeySource resolves an address to the private key that can spend
// from it, the Bitcoin-family counterpart to KeySource.
type BitcoinKeySource interface {
	PrivateKeyFor(address string) (*btcec.PrivateKey, error)
}

// BitcoinAdapter implements Contract over a standard CLTV/HASH160 HTLC
// script, broadcast and observed through internal/backend's Backend
// interface (blockbook/esplora/electrum/mempool, whichever the caller
// wired) instead of a direct node RPC.
type BitcoinAdapter struct {
	backend backend.Backend
	params  *chain.Params
	net     *chaincfg.Params
	keys    BitcoinKeySource
	chainID string
	log     *logging.Logger
}

// NewBitcoinAdapter wraps an already-connected backend.Backend for one
// Bitcoin-family chain (Bitcoin, Litecoin, Dogecoin — anything chain.Params
// describes with a UTXO model). net must match params (mainnet/testnet).
func NewBitcoinAdapter(chainID string, b backend.Backend, params *chain.Params, net *chaincfg.Params, keys BitcoinKeySource) *BitcoinAdapter {
	return &BitcoinAdapter{
		backend: b,
		params:  params,
		net:     net,
		keys:    keys,
		chainID: chainID,
		log:     logging.GetDefault().Component("chainadapter-btc").With("chain", chainID),
	}
}

func (a *BitcoinAdapter) ChainID() string { return a.chainID }

// htlcScript builds the standard two-branch HTLC redeem script:
// claim path requires the preimage and the claimer's signature, refund
// path requires the timelock to have passed and the offerer's signature.
// Grounded on the CLTV-HTLC shape used by BOLT-3-style scripts, expressed
// with btcd/txscript the same way wallet/tx.go builds its P2WPKH/P2TR
// scripts.
func htlcScript(claimHash [32]byte, claimerPKH, offererPKH []byte, expiry int64) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_SHA256)
	b.AddData(claimHash[:])
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(claimerPKH)
	b.AddOp(txscript.OP_ELSE)
	b.AddInt64(expiry)
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(offererPKH)
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

func hash160(pub []byte) []byte {
	sh := sha256.Sum256(pub)
	r := ripemd160.New()
	r.Write(sh[:])
	return r.Sum(nil)
}

func (a *BitcoinAdapter) netParams() *chaincfg.Params { return a.net }

// pkhFor extracts the 20-byte hash160 a P2PKH/P2WPKH address commits to,
// the form the HTLC script's OP_HASH160 branches check against.
func (a *BitcoinAdapter) pkhFor(address string) ([]byte, error) {
	decoded, _, err := wallet.ParseAddress(address, a.params)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: parse address: %w", err)
	}
	switch addr := decoded.(type) {
	case *btcutil.AddressPubKeyHash:
		h := addr.Hash160()
		return h[:], nil
	case *btcutil.AddressWitnessPubKeyHash:
		h := addr.Hash160()
		return h[:], nil
	default:
		return nil, fmt.Errorf("chainadapter: address %s is not a pubkey-hash address", address)
	}
}

// CreateSwapData derives the HTLC script (and its P2WSH address) for the
// escrow; the script itself becomes the opaque Payload, and the script's
// witness-program address is where the offerer's commit transaction pays.
func (a *BitcoinAdapter) CreateSwapData(ctx context.Context, p SwapParams) (*swapcore.SwapData, error) {
	if p.Type == swapcore.SPVVaultFromBTC {
		return a.createVaultSwapData(p)
	}
	claimerPKH, err := a.pkhFor(p.Claimer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: claimer: %w", err)
	}
	offererPKH, err := a.pkhFor(p.Offerer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: offerer: %w", err)
	}
	script, err := htlcScript(p.ClaimHash, claimerPKH, offererPKH, p.Expiry)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: build htlc script: %w", err)
	}

	return &swapcore.SwapData{
		Offerer:   p.Offerer,
		Claimer:   p.Claimer,
		Token:     p.Token,
		Amount:    p.Amount,
		ClaimHash: p.ClaimHash,
		Sequence:  p.Sequence,
		Expiry:    p.Expiry,
		PayIn:     p.PayIn,
		PayOut:    p.PayOut,
		Deposit:   p.Deposit,
		Bounty:    p.Bounty,
		Payload:   script,
	}, nil
}

// createVaultSwapData handles SPV_VAULT_FROM_BTC: Offerer/Claimer carry
// hex-encoded compressed pubkeys rather than addresses (vaultKeyFromHex),
// since the escrow is a key-path-only Taproot output, not a hash160
// witness program. Payload carries the 32-byte x-only output key so
// GetCommitStatus can recompute the same address; the PSBT skeleton that
// leaves the LP-output amount open for the user's coin-selection is the
// LP wrapper's own responsibility and never constructed here.
func (a *BitcoinAdapter) createVaultSwapData(p SwapParams) (*swapcore.SwapData, error) {
	offererPub, err := vaultKeyFromHex(p.Offerer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: vault offerer: %w", err)
	}
	claimerPub, err := vaultKeyFromHex(p.Claimer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: vault claimer: %w", err)
	}
	_, outputKey, err := vaultTaprootAddress(offererPub, claimerPub, a.net)
	if err != nil {
		return nil, err
	}

	return &swapcore.SwapData{
		Offerer:   p.Offerer,
		Claimer:   p.Claimer,
		Token:     p.Token,
		Amount:    p.Amount,
		ClaimHash: p.ClaimHash,
		Sequence:  p.Sequence,
		Expiry:    p.Expiry,
		PayIn:     p.PayIn,
		PayOut:    p.PayOut,
		Deposit:   p.Deposit,
		Bounty:    p.Bounty,
		Payload:   outputKey,
	}, nil
}

// GetHashForHTLC rehashes into HASH160(payment_hash) the way a Bitcoin
// script's OP_HASH160 check expects, rather than the raw sha256 digest
// Lightning invoices carry.
func (a *BitcoinAdapter) GetHashForHTLC(paymentHash [32]byte) [32]byte {
	var out [32]byte
	copy(out[:20], hash160(paymentHash[:]))
	return out
}

// IsValidDataSignature recovers the signer's pubkey from a 65-byte
// recoverable ECDSA signature (the same SignCompact shape
// internal/wallet.EVMSign produces for its chain) over data's
// double-sha256 digest, then checks its hash160 against address.
func (a *BitcoinAdapter) IsValidDataSignature(data []byte, signature []byte, address string) (bool, error) {
	pkh, err := a.pkhFor(address)
	if err != nil {
		return false, err
	}
	digest := chainhash.DoubleHashB(data)
	pub, _, err := btcecdsa.RecoverCompact(signature, digest)
	if err != nil {
		return false, nil
	}
	got := hash160(pub.SerializeCompressed())
	return bytes.Equal(got, pkh), nil
}

// IsValidInitAuthorization checks that the intermediary signed this
// escrow's script bytes.
func (a *BitcoinAdapter) IsValidInitAuthorization(ctx context.Context, initiator string, data *swapcore.SwapData, signature []byte, feeRate []byte) (bool, error) {
	msg := append(append([]byte(nil), data.Payload...), feeRate...)
	return a.IsValidDataSignature(msg, signature, initiator)
}

// htlcAddress recomputes the escrow address from data.Payload. A 32-byte
// payload is a vault's raw Taproot x-only output key (createVaultSwapData);
// anything else is an HTLC redeem script, hashed into its P2WSH address.
func (a *BitcoinAdapter) htlcAddress(data *swapcore.SwapData) (btcutil.Address, error) {
	if len(data.Payload) == 32 {
		return btcutil.NewAddressTaproot(data.Payload, a.netParams())
	}
	witnessProgram := sha256.Sum256(data.Payload)
	return btcutil.NewAddressWitnessScriptHash(witnessProgram[:], a.netParams())
}

// GetCommitStatus inspects the escrow address for spends: no UTXO at the
// address and no history means NOT_COMMITED, an unspent output means
// COMMITED. For an HTLC escrow a spend reveals either a claim (witness
// holds the preimage) or a refund (witness holds only the offerer's
// signature); for a vault escrow (32-byte Payload, key-path spend) any
// spend at all counts as Paid, since claim-vs-refund there is a smart-chain
// SPV-proof decision this module has no way to read off the Bitcoin side.
func (a *BitcoinAdapter) GetCommitStatus(ctx context.Context, signer string, data *swapcore.SwapData) (CommitStatus, error) {
	addr, err := a.htlcAddress(data)
	if err != nil {
		return CommitStatus{}, fmt.Errorf("chainadapter: htlc address: %w", err)
	}
	utxos, err := a.backend.GetAddressUTXOs(ctx, addr.EncodeAddress())
	if err != nil {
		return CommitStatus{}, fmt.Errorf("chainadapter: get utxos: %w", err)
	}
	if len(utxos) > 0 {
		return CommitStatus{State: Committed}, nil
	}

	txs, err := a.backend.GetAddressTxs(ctx, addr.EncodeAddress(), "")
	if err != nil {
		return CommitStatus{}, fmt.Errorf("chainadapter: get address txs: %w", err)
	}
	if len(txs) == 0 {
		return CommitStatus{State: NotCommitted}, nil
	}

	isVault := len(data.Payload) == 32
	for _, tx := range txs {
		for _, in := range tx.Inputs {
			if isVault && len(in.Witness) >= 1 {
				return CommitStatus{State: Paid, ClaimTxID: tx.TxID}, nil
			}
			if !isVault && len(in.Witness) >= 5 {
				return CommitStatus{State: Paid, ClaimTxID: tx.TxID}, nil
			}
		}
	}
	return CommitStatus{State: Expired}, nil
}

func (a *BitcoinAdapter) GetCommitStatuses(ctx context.Context, signer string, datas []*swapcore.SwapData) ([]CommitStatus, error) {
	out := make([]CommitStatus, len(datas))
	for i, d := range datas {
		st, err := a.GetCommitStatus(ctx, signer, d)
		if err != nil {
			return nil, err
		}
		out[i] = st
	}
	return out, nil
}

// TxsCommit funds the HTLC script's P2WSH address from the offerer's own
// UTXOs, reusing wallet/tx.go's standard P2WPKH send path since paying
// into a witness-program address needs no custom signing logic.
func (a *BitcoinAdapter) TxsCommit(ctx context.Context, signer string, data *swapcore.SwapData, feeRate []byte) (TxSet, error) {
	key, err := a.keys.PrivateKeyFor(signer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: signer key: %w", err)
	}
	addr, err := a.htlcAddress(data)
	if err != nil {
		return nil, err
	}
	utxos, err := a.backend.GetAddressUTXOs(ctx, signer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: get utxos: %w", err)
	}
	rate := feeRateFromBytes(feeRate)
	hexTx, err := wallet.BuildAndSignTx(key, utxos, addr.EncodeAddress(), signer, data.Amount, rate, a.params)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: build commit tx: %w", err)
	}
	return TxSet{[]byte(hexTx)}, nil
}

// TxsClaimWithSecret spends the escrow's OP_IF branch, witness
// [sig, pubkey, secret, OP_TRUE, redeemScript].
func (a *BitcoinAdapter) TxsClaimWithSecret(ctx context.Context, signer string, data *swapcore.SwapData, secret [32]byte, check bool, rehash bool) (TxSet, error) {
	key, err := a.keys.PrivateKeyFor(signer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: signer key: %w", err)
	}
	utxo, err := a.findEscrowUTXO(ctx, data)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	outpoint, err := outPointFor(utxo)
	if err != nil {
		return nil, err
	}
	tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))

	destPKH, err := a.pkhFor(data.Claimer)
	if err != nil {
		return nil, err
	}
	destScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddData(destPKH).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).Script()
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(int64(utxo.Amount), destScript))

	witnessProgram := sha256.Sum256(data.Payload)
	fetcher := txscript.NewCannedPrevOutputFetcher(p2wshScript(witnessProgram[:]), int64(utxo.Amount))
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, 0, int64(utxo.Amount), data.Payload, txscript.SigHashAll, key)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: sign claim: %w", err)
	}

	tx.TxIn[0].Witness = wire.TxWitness{
		sig,
		key.PubKey().SerializeCompressed(),
		secret[:],
		{1},
		data.Payload,
	}

	raw, err := serializeTx(tx)
	if err != nil {
		return nil, err
	}
	return TxSet{raw}, nil
}

// TxsRefund spends the escrow's OP_ELSE branch after the timelock,
// witness [sig, pubkey, OP_FALSE, redeemScript].
func (a *BitcoinAdapter) TxsRefund(ctx context.Context, signer string, data *swapcore.SwapData, feeRate []byte) (TxSet, error) {
	key, err := a.keys.PrivateKeyFor(signer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: signer key: %w", err)
	}
	utxo, err := a.findEscrowUTXO(ctx, data)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	tx.LockTime = uint32(data.Expiry)
	outpoint, err := outPointFor(utxo)
	if err != nil {
		return nil, err
	}
	txIn := wire.NewTxIn(outpoint, nil, nil)
	txIn.Sequence = wire.MaxTxInSequenceNum - 1
	tx.AddTxIn(txIn)

	destPKH, err := a.pkhFor(data.Offerer)
	if err != nil {
		return nil, err
	}
	destScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddData(destPKH).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).Script()
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(int64(utxo.Amount), destScript))

	witnessProgram := sha256.Sum256(data.Payload)
	fetcher := txscript.NewCannedPrevOutputFetcher(p2wshScript(witnessProgram[:]), int64(utxo.Amount))
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, 0, int64(utxo.Amount), data.Payload, txscript.SigHashAll, key)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: sign refund: %w", err)
	}

	tx.TxIn[0].Witness = wire.TxWitness{
		sig,
		key.PubKey().SerializeCompressed(),
		{},
		data.Payload,
	}

	raw, err := serializeTx(tx)
	if err != nil {
		return nil, err
	}
	return TxSet{raw}, nil
}

func (a *BitcoinAdapter) GetCommitFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error) {
	est, err := a.backend.GetFeeEstimates(ctx)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: fee estimates: %w", err)
	}
	return est.HalfHourFee * 250, nil
}

func (a *BitcoinAdapter) GetClaimFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error) {
	est, err := a.backend.GetFeeEstimates(ctx)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: fee estimates: %w", err)
	}
	return est.HalfHourFee * 180, nil
}

func (a *BitcoinAdapter) GetRefundFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error) {
	return a.GetClaimFee(ctx, data, feeRate)
}

func (a *BitcoinAdapter) GetInitFeeRate(ctx context.Context) ([]byte, error) {
	est, err := a.backend.GetFeeEstimates(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: fee estimates: %w", err)
	}
	return uint64ToBytes(est.HalfHourFee), nil
}

func (a *BitcoinAdapter) findEscrowUTXO(ctx context.Context, data *swapcore.SwapData) (backend.UTXO, error) {
	addr, err := a.htlcAddress(data)
	if err != nil {
		return backend.UTXO{}, err
	}
	utxos, err := a.backend.GetAddressUTXOs(ctx, addr.EncodeAddress())
	if err != nil {
		return backend.UTXO{}, fmt.Errorf("chainadapter: get utxos: %w", err)
	}
	if len(utxos) == 0 {
		return backend.UTXO{}, fmt.Errorf("chainadapter: escrow has no unspent output")
	}
	return utxos[0], nil
}

func outPointFor(u backend.UTXO) (*wire.OutPoint, error) {
	h, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: invalid utxo txid: %w", err)
	}
	return wire.NewOutPoint(h, u.Vout), nil
}

func p2wshScript(witnessProgram []byte) []byte {
	script, _ := txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(witnessProgram).Script()
	return script
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	buf := make([]byte, 0, tx.SerializeSize())
	w := &byteWriter{buf: buf}
	if err := tx.Serialize(w); err != nil {
		return nil, fmt.Errorf("chainadapter: serialize tx: %w", err)
	}
	return w.buf, nil
}

type byteWriter struct{ buf []byte }

func (w *byteWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// feeRateFromBytes decodes a big-endian sat/vB fee rate, defaulting to 1
// when the quote carried none.
func feeRateFromBytes(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	if v == 0 {
		return 1
	}
	return v
}

func uint64ToBytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(v >> (8 * i))
	}
	return out
}

var _ Contract = (*BitcoinAdapter)(nil)
