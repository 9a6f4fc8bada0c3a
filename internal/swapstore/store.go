package swapstore

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// Config configures a Store (mirrors internal/storage.Config's DataDir idiom).
type Config struct {
	DataDir  string
	FileName string // default "swaps.db"
}

// Store is the SQLite-backed swap store. Single-writer discipline is
// enforced with one open connection and a process-wide RWMutex guarding
// every statement.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log *logging.Logger
}

// New opens (creating if absent) the swap store at cfg.DataDir, runs the
// schema, and migrates either legacy layout found in the same database file.
func New(cfg Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("swapstore: create data dir: %w", err)
	}

	fileName := cfg.FileName
	if fileName == "" {
		fileName = "swaps.db"
	}
	dbPath := filepath.Join(dataDir, fileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrStoreUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:  db,
		log: logging.GetDefault().Component("swapstore"),
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("swapstore: init schema: %w", err)
	}

	if err := s.migrateLegacy(); err != nil {
		db.Close()
		return nil, fmt.Errorf("swapstore: legacy migration: %w", err)
	}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

// row is the flat column shape persisted in the "swaps" table.
type row struct {
	id, chainID, initiatorAddress    string
	typ, state                       int
	paymentHash, escrowHash          sql.NullString
	inputKind                        int
	inputChainID, inputTokenAddr     sql.NullString
	inputDecimals                    sql.NullInt64
	inputAmount                      int64
	outputKind                       int
	outputChainID, outputTokenAddr   sql.NullString
	outputDecimals                   sql.NullInt64
	outputAmount                     int64
	initialSwapData, realSwapData    []byte
	fees, pricingInfo                []byte
	preimageSecret                   []byte
	paymentRequest                   sql.NullString
	lnurlState, signatureBundle      []byte
	createdAt, quoteExpiry, quoteSoft, htlcExpiry int64
	committedAt                       sql.NullInt64
	commitTxID, claimTxID, refundTxID sql.NullString
	updatedAt                         int64
}

// jsonSwapData is the JSON-serializable mirror of swapcore.SwapData (the
// Payload field is hex-encoded since it is opaque chain-adapter bytes).
type jsonSwapData struct {
	Offerer       string `json:"offerer"`
	Claimer       string `json:"claimer"`
	TokenKind     int    `json:"token_kind"`
	TokenChainID  string `json:"token_chain_id,omitempty"`
	TokenAddress  string `json:"token_address,omitempty"`
	TokenDecimals int    `json:"token_decimals,omitempty"`
	Amount        uint64 `json:"amount"`
	ClaimHash     string `json:"claim_hash"`
	Sequence      uint64 `json:"sequence"`
	Expiry        int64  `json:"expiry"`
	PayIn         bool   `json:"pay_in"`
	PayOut        bool   `json:"pay_out"`
	Deposit       uint64 `json:"deposit"`
	DepositKind   int    `json:"deposit_kind"`
	DepositChain  string `json:"deposit_chain,omitempty"`
	DepositAddr   string `json:"deposit_addr,omitempty"`
	Bounty        uint64 `json:"bounty"`
	Payload       string `json:"payload,omitempty"`
}

func toJSONSwapData(d *swapcore.SwapData) *jsonSwapData {
	if d == nil {
		return nil
	}
	return &jsonSwapData{
		Offerer:       d.Offerer,
		Claimer:       d.Claimer,
		TokenKind:     int(d.Token.Kind),
		TokenChainID:  d.Token.ChainID,
		TokenAddress:  d.Token.Address,
		TokenDecimals: int(d.Token.Decimals),
		Amount:        d.Amount,
		ClaimHash:     hex.EncodeToString(d.ClaimHash[:]),
		Sequence:      d.Sequence,
		Expiry:        d.Expiry,
		PayIn:         d.PayIn,
		PayOut:        d.PayOut,
		Deposit:       d.Deposit,
		DepositKind:   int(d.DepositTok.Kind),
		DepositChain:  d.DepositTok.ChainID,
		DepositAddr:   d.DepositTok.Address,
		Bounty:        d.Bounty,
		Payload:       hex.EncodeToString(d.Payload),
	}
}

func fromJSONSwapData(j *jsonSwapData) (*swapcore.SwapData, error) {
	if j == nil {
		return nil, nil
	}
	claimHash, err := hex.DecodeString(j.ClaimHash)
	if err != nil {
		return nil, fmt.Errorf("%w: claim_hash: %v", ErrSerializationError, err)
	}
	payload, err := hex.DecodeString(j.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrSerializationError, err)
	}
	d := &swapcore.SwapData{
		Offerer: j.Offerer,
		Claimer: j.Claimer,
		Token: swapcore.Token{
			Kind:     swapcore.TokenKind(j.TokenKind),
			ChainID:  j.TokenChainID,
			Address:  j.TokenAddress,
			Decimals: uint8(j.TokenDecimals),
		},
		Amount:   j.Amount,
		Sequence: j.Sequence,
		Expiry:   j.Expiry,
		PayIn:    j.PayIn,
		PayOut:   j.PayOut,
		Deposit:  j.Deposit,
		DepositTok: swapcore.Token{
			Kind:    swapcore.TokenKind(j.DepositKind),
			ChainID: j.DepositChain,
			Address: j.DepositAddr,
		},
		Bounty:  j.Bounty,
		Payload: payload,
	}
	copy(d.ClaimHash[:], claimHash)
	return d, nil
}

// toRow flattens a swapcore.Swap into its persisted column shape.
func toRow(s *swapcore.Swap) (*row, error) {
	r := &row{
		id:               s.ID,
		typ:              int(s.Type),
		state:            int(s.State),
		chainID:          s.ChainID,
		initiatorAddress: s.InitiatorAddress,
		inputKind:        int(s.Input.Token.Kind),
		inputAmount:      int64(s.Input.RawAmount),
		outputKind:       int(s.Output.Token.Kind),
		outputAmount:     int64(s.Output.RawAmount),
		createdAt:        s.CreatedAt.Unix(),
		quoteExpiry:      s.QuoteExpiry.Unix(),
		quoteSoft:        s.QuoteSoft.Unix(),
		htlcExpiry:       s.HTLCExpiry.Unix(),
		updatedAt:        time.Now().Unix(),
	}
	if s.Input.Token.ChainID != "" {
		r.inputChainID = sql.NullString{String: s.Input.Token.ChainID, Valid: true}
	}
	if s.Input.Token.Address != "" {
		r.inputTokenAddr = sql.NullString{String: s.Input.Token.Address, Valid: true}
		r.inputDecimals = sql.NullInt64{Int64: int64(s.Input.Token.Decimals), Valid: true}
	}
	if s.Output.Token.ChainID != "" {
		r.outputChainID = sql.NullString{String: s.Output.Token.ChainID, Valid: true}
	}
	if s.Output.Token.Address != "" {
		r.outputTokenAddr = sql.NullString{String: s.Output.Token.Address, Valid: true}
		r.outputDecimals = sql.NullInt64{Int64: int64(s.Output.Token.Decimals), Valid: true}
	}
	if s.PaymentHashSet {
		r.paymentHash = sql.NullString{String: hex.EncodeToString(s.PaymentHash[:]), Valid: true}
	}
	if data := s.EffectiveSwapData(); data != nil {
		r.escrowHash = sql.NullString{String: hex.EncodeToString(data.ClaimHash[:]), Valid: true}
	}

	var err error
	if r.initialSwapData, err = json.Marshal(toJSONSwapData(s.InitialSwapData)); err != nil {
		return nil, fmt.Errorf("%w: initial_swap_data: %v", ErrSerializationError, err)
	}
	if r.realSwapData, err = json.Marshal(toJSONSwapData(s.RealSwapData)); err != nil {
		return nil, fmt.Errorf("%w: real_swap_data: %v", ErrSerializationError, err)
	}
	if r.fees, err = json.Marshal(s.Fees); err != nil {
		return nil, fmt.Errorf("%w: fees: %v", ErrSerializationError, err)
	}
	if r.pricingInfo, err = json.Marshal(s.PricingInfo); err != nil {
		return nil, fmt.Errorf("%w: pricing_info: %v", ErrSerializationError, err)
	}
	if s.LNURL != nil {
		if r.lnurlState, err = json.Marshal(s.LNURL); err != nil {
			return nil, fmt.Errorf("%w: lnurl_state: %v", ErrSerializationError, err)
		}
	}
	if s.SignatureBundle != nil {
		if r.signatureBundle, err = json.Marshal(s.SignatureBundle); err != nil {
			return nil, fmt.Errorf("%w: signature_bundle: %v", ErrSerializationError, err)
		}
	}

	r.preimageSecret = append([]byte(nil), s.PreimageSecret...)
	if s.PaymentRequest != "" {
		r.paymentRequest = sql.NullString{String: s.PaymentRequest, Valid: true}
	}
	if !s.CommittedAt.IsZero() {
		r.committedAt = sql.NullInt64{Int64: s.CommittedAt.Unix(), Valid: true}
	}
	if s.CommitTxID != "" {
		r.commitTxID = sql.NullString{String: s.CommitTxID, Valid: true}
	}
	if s.ClaimTxID != "" {
		r.claimTxID = sql.NullString{String: s.ClaimTxID, Valid: true}
	}
	if s.RefundTxID != "" {
		r.refundTxID = sql.NullString{String: s.RefundTxID, Valid: true}
	}
	return r, nil
}

// toSwap reconstitutes a swapcore.Swap from its persisted row.
func toSwap(r *row) (*swapcore.Swap, error) {
	var initialJSON, realJSON jsonSwapData
	var initial, real *jsonSwapData
	if len(r.initialSwapData) > 0 && string(r.initialSwapData) != "null" {
		if err := json.Unmarshal(r.initialSwapData, &initialJSON); err != nil {
			return nil, fmt.Errorf("%w: initial_swap_data: %v", ErrSerializationError, err)
		}
		initial = &initialJSON
	}
	if len(r.realSwapData) > 0 && string(r.realSwapData) != "null" {
		if err := json.Unmarshal(r.realSwapData, &realJSON); err != nil {
			return nil, fmt.Errorf("%w: real_swap_data: %v", ErrSerializationError, err)
		}
		real = &realJSON
	}

	initialData, err := fromJSONSwapData(initial)
	if err != nil {
		return nil, err
	}
	realData, err := fromJSONSwapData(real)
	if err != nil {
		return nil, err
	}

	s := &swapcore.Swap{
		ID:               r.id,
		Type:             swapcore.SwapType(r.typ),
		State:            int32(r.state),
		ChainID:          r.chainID,
		InitiatorAddress: r.initiatorAddress,
		Input: swapcore.Amount{
			Token:     swapcore.Token{Kind: swapcore.TokenKind(r.inputKind), ChainID: r.inputChainID.String, Address: r.inputTokenAddr.String, Decimals: uint8(r.inputDecimals.Int64)},
			RawAmount: uint64(r.inputAmount),
		},
		Output: swapcore.Amount{
			Token:     swapcore.Token{Kind: swapcore.TokenKind(r.outputKind), ChainID: r.outputChainID.String, Address: r.outputTokenAddr.String, Decimals: uint8(r.outputDecimals.Int64)},
			RawAmount: uint64(r.outputAmount),
		},
		InitialSwapData: initialData,
		RealSwapData:    realData,
		PreimageSecret:  r.preimageSecret,
		PaymentRequest:  r.paymentRequest.String,
		CreatedAt:       time.Unix(r.createdAt, 0),
		QuoteExpiry:     time.Unix(r.quoteExpiry, 0),
		QuoteSoft:       time.Unix(r.quoteSoft, 0),
		HTLCExpiry:      time.Unix(r.htlcExpiry, 0),
		CommitTxID:      r.commitTxID.String,
		ClaimTxID:       r.claimTxID.String,
		RefundTxID:      r.refundTxID.String,
	}
	if r.paymentHash.Valid {
		ph, err := hex.DecodeString(r.paymentHash.String)
		if err != nil {
			return nil, fmt.Errorf("%w: payment_hash: %v", ErrSerializationError, err)
		}
		copy(s.PaymentHash[:], ph)
		s.PaymentHashSet = true
	}
	if len(r.fees) > 0 {
		if err := json.Unmarshal(r.fees, &s.Fees); err != nil {
			return nil, fmt.Errorf("%w: fees: %v", ErrSerializationError, err)
		}
	}
	if len(r.pricingInfo) > 0 {
		if err := json.Unmarshal(r.pricingInfo, &s.PricingInfo); err != nil {
			return nil, fmt.Errorf("%w: pricing_info: %v", ErrSerializationError, err)
		}
	}
	if len(r.lnurlState) > 0 {
		s.LNURL = &swapcore.LNURLState{}
		if err := json.Unmarshal(r.lnurlState, s.LNURL); err != nil {
			return nil, fmt.Errorf("%w: lnurl_state: %v", ErrSerializationError, err)
		}
	}
	if len(r.signatureBundle) > 0 {
		s.SignatureBundle = &swapcore.SignatureBundle{}
		if err := json.Unmarshal(r.signatureBundle, s.SignatureBundle); err != nil {
			return nil, fmt.Errorf("%w: signature_bundle: %v", ErrSerializationError, err)
		}
	}
	if r.committedAt.Valid {
		s.CommittedAt = time.Unix(r.committedAt.Int64, 0)
	}
	return s, nil
}

const upsertQuery = `
INSERT INTO swaps (
	id, type, state, chain_id, initiator_address, payment_hash, escrow_hash,
	input_kind, input_chain_id, input_token_addr, input_decimals, input_amount,
	output_kind, output_chain_id, output_token_addr, output_decimals, output_amount,
	initial_swap_data, real_swap_data, fees, pricing_info,
	preimage_secret, payment_request, lnurl_state, signature_bundle,
	created_at, quote_expiry, quote_soft, htlc_expiry, committed_at,
	commit_tx_id, claim_tx_id, refund_tx_id, updated_at
) VALUES (?,?,?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?,?,?, ?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	type = excluded.type, state = excluded.state, chain_id = excluded.chain_id,
	initiator_address = excluded.initiator_address, payment_hash = excluded.payment_hash,
	escrow_hash = excluded.escrow_hash,
	input_kind = excluded.input_kind, input_chain_id = excluded.input_chain_id,
	input_token_addr = excluded.input_token_addr, input_decimals = excluded.input_decimals,
	input_amount = excluded.input_amount,
	output_kind = excluded.output_kind, output_chain_id = excluded.output_chain_id,
	output_token_addr = excluded.output_token_addr, output_decimals = excluded.output_decimals,
	output_amount = excluded.output_amount,
	initial_swap_data = excluded.initial_swap_data, real_swap_data = excluded.real_swap_data,
	fees = excluded.fees, pricing_info = excluded.pricing_info,
	preimage_secret = excluded.preimage_secret, payment_request = excluded.payment_request,
	lnurl_state = excluded.lnurl_state, signature_bundle = excluded.signature_bundle,
	quote_expiry = excluded.quote_expiry, quote_soft = excluded.quote_soft,
	htlc_expiry = excluded.htlc_expiry, committed_at = excluded.committed_at,
	commit_tx_id = excluded.commit_tx_id, claim_tx_id = excluded.claim_tx_id,
	refund_tx_id = excluded.refund_tx_id, updated_at = excluded.updated_at
`

// Save writes a single swap record (UPSERT), per §4.1.
func (s *Store) Save(sw *swapcore.Swap) error {
	return s.SaveAll([]*swapcore.Swap{sw})
}

// SaveAll writes multiple records atomically in one transaction, per §4.1
// ("save_all ... atomic per batch").
func (s *Store) SaveAll(swaps []*swapcore.Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]*row, 0, len(swaps))
	for _, sw := range swaps {
		r, err := toRow(sw)
		if err != nil {
			s.log.Error("quarantining swap: serialization failure", "swap_id", sw.ID, "error", err)
			return err
		}
		rows = append(rows, r)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		if _, err := tx.Exec(upsertQuery,
			r.id, r.typ, r.state, r.chainID, r.initiatorAddress, r.paymentHash, r.escrowHash,
			r.inputKind, r.inputChainID, r.inputTokenAddr, r.inputDecimals, r.inputAmount,
			r.outputKind, r.outputChainID, r.outputTokenAddr, r.outputDecimals, r.outputAmount,
			r.initialSwapData, r.realSwapData, r.fees, r.pricingInfo,
			r.preimageSecret, r.paymentRequest, nullBlob(r.lnurlState), nullBlob(r.signatureBundle),
			r.createdAt, r.quoteExpiry, r.quoteSoft, r.htlcExpiry, r.committedAt,
			r.commitTxID, r.claimTxID, r.refundTxID, r.updatedAt,
		); err != nil {
			return fmt.Errorf("%w: exec: %v", ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func nullBlob(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Remove deletes a single swap record by ID.
func (s *Store) Remove(id string) error {
	return s.RemoveAll([]string{id})
}

// RemoveAll deletes multiple swap records atomically.
func (s *Store) RemoveAll(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM swaps WHERE id = ?", id); err != nil {
			return fmt.Errorf("%w: exec: %v", ErrStoreUnavailable, err)
		}
	}
	return tx.Commit()
}

// Get retrieves a single swap by its primary ID.
func (s *Store) Get(id string) (*swapcore.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := scanRow(s.db.QueryRow(selectColumns+" FROM swaps WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return toSwap(r)
}
