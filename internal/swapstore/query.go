package swapstore

import (
	"fmt"
	"strings"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

const selectColumns = `SELECT
	id, type, state, chain_id, initiator_address, payment_hash, escrow_hash,
	input_kind, input_chain_id, input_token_addr, input_decimals, input_amount,
	output_kind, output_chain_id, output_token_addr, output_decimals, output_amount,
	initial_swap_data, real_swap_data, fees, pricing_info,
	preimage_secret, payment_request, lnurl_state, signature_bundle,
	created_at, quote_expiry, quote_soft, htlc_expiry, committed_at,
	commit_tx_id, claim_tx_id, refund_tx_id, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(sc scanner) (*row, error) {
	r := &row{}
	if err := sc.Scan(
		&r.id, &r.typ, &r.state, &r.chainID, &r.initiatorAddress, &r.paymentHash, &r.escrowHash,
		&r.inputKind, &r.inputChainID, &r.inputTokenAddr, &r.inputDecimals, &r.inputAmount,
		&r.outputKind, &r.outputChainID, &r.outputTokenAddr, &r.outputDecimals, &r.outputAmount,
		&r.initialSwapData, &r.realSwapData, &r.fees, &r.pricingInfo,
		&r.preimageSecret, &r.paymentRequest, &r.lnurlState, &r.signatureBundle,
		&r.createdAt, &r.quoteExpiry, &r.quoteSoft, &r.htlcExpiry, &r.committedAt,
		&r.commitTxID, &r.claimTxID, &r.refundTxID, &r.updatedAt,
	); err != nil {
		return nil, err
	}
	return r, nil
}

// Key names the composite-index columns predicates may filter on (§4.1).
type Key string

const (
	KeyType             Key = "type"
	KeyState            Key = "state"
	KeyInitiatorAddress Key = "initiator_address"
	KeyPaymentHash      Key = "payment_hash"
	KeyEscrowHash       Key = "escrow_hash"
	KeyChainID          Key = "chain_id"
)

// Conjunct is one {key, value} or {key, value_set} term, per §4.1 — a single
// value is treated as a one-element set.
type Conjunct struct {
	Key    Key
	Values []interface{}
}

// Conjunction is a set of conjuncts ANDed together.
type Conjunction []Conjunct

// Predicates is a disjunction of conjunctions (§4.1): the query matches a
// record satisfying any one Conjunction.
type Predicates []Conjunction

// On builds a Conjunction in place for fluent query construction, e.g.:
//
//	swapstore.On(swapstore.KeyType, int(swapcore.FromBTCLN)).And(swapstore.KeyState, 1, 2, 3)
func On(key Key, values ...interface{}) Conjunction {
	return Conjunction{{Key: key, Values: values}}
}

// And appends another conjunct to the same conjunction.
func (c Conjunction) And(key Key, values ...interface{}) Conjunction {
	return append(c, Conjunct{Key: key, Values: values})
}

// Or turns this conjunction into the start of a disjunction with another.
func (c Conjunction) Or(other Conjunction) Predicates {
	return Predicates{c, other}
}

func (p Predicates) build() (string, []interface{}) {
	if len(p) == 0 {
		return "", nil
	}
	var clauses []string
	var args []interface{}
	for _, conj := range p {
		if len(conj) == 0 {
			continue
		}
		var terms []string
		for _, cj := range conj {
			if len(cj.Values) == 0 {
				continue
			}
			placeholders := make([]string, len(cj.Values))
			for i, v := range cj.Values {
				placeholders[i] = "?"
				args = append(args, v)
			}
			terms = append(terms, fmt.Sprintf("%s IN (%s)", string(cj.Key), strings.Join(placeholders, ",")))
		}
		if len(terms) > 0 {
			clauses = append(clauses, "("+strings.Join(terms, " AND ")+")")
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " OR "), args
}

// Query returns every record matching the given disjunction of conjunctions.
// An empty Predicates matches every record. Ordering is not guaranteed (§4.1).
func (s *Store) Query(predicates Predicates) ([]*swapcore.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := predicates.build()
	rows, err := s.db.Query(selectColumns+" FROM swaps"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*swapcore.Swap
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStoreUnavailable, err)
		}
		sw, err := toSwap(r)
		if err != nil {
			// A single corrupt record is quarantined, not fatal to the query.
			continue
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

// All returns every stored swap, for bulk reconciliation passes.
func (s *Store) All() ([]*swapcore.Swap, error) {
	return s.Query(nil)
}
