package swapstore

const schema = `
CREATE TABLE IF NOT EXISTS swaps (
	id                 TEXT PRIMARY KEY,
	type               INTEGER NOT NULL,
	state              INTEGER NOT NULL,
	chain_id           TEXT NOT NULL,
	initiator_address  TEXT NOT NULL,
	payment_hash       TEXT,
	escrow_hash        TEXT,

	input_kind         INTEGER NOT NULL,
	input_chain_id     TEXT,
	input_token_addr   TEXT,
	input_decimals     INTEGER,
	input_amount       INTEGER NOT NULL,

	output_kind        INTEGER NOT NULL,
	output_chain_id    TEXT,
	output_token_addr  TEXT,
	output_decimals    INTEGER,
	output_amount      INTEGER NOT NULL,

	initial_swap_data  BLOB,
	real_swap_data     BLOB,

	fees               BLOB,
	pricing_info       BLOB,

	preimage_secret    BLOB,
	payment_request    TEXT,
	lnurl_state        BLOB,
	signature_bundle   BLOB,

	created_at         INTEGER NOT NULL,
	quote_expiry       INTEGER NOT NULL,
	quote_soft         INTEGER NOT NULL,
	htlc_expiry        INTEGER NOT NULL,
	committed_at       INTEGER,

	commit_tx_id       TEXT,
	claim_tx_id        TEXT,
	refund_tx_id       TEXT,

	updated_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_swaps_type ON swaps(type);
CREATE INDEX IF NOT EXISTS idx_swaps_state ON swaps(state);
CREATE INDEX IF NOT EXISTS idx_swaps_initiator ON swaps(initiator_address);
CREATE INDEX IF NOT EXISTS idx_swaps_payment_hash ON swaps(payment_hash);
CREATE INDEX IF NOT EXISTS idx_swaps_escrow_hash ON swaps(escrow_hash);
CREATE INDEX IF NOT EXISTS idx_swaps_chain ON swaps(chain_id);
CREATE INDEX IF NOT EXISTS idx_swaps_composite ON swaps(type, state, chain_id);
`

// legacyKVDetect mirrors a flat "settings" key/value table — one of the
// two prior formats §6 requires a one-time migration from.
const legacyKVDetect = `SELECT name FROM sqlite_master WHERE type='table' AND name='settings'`

// legacyActiveSwapsDetect mirrors an older active_swaps layout, the
// second prior format §6 names.
const legacyActiveSwapsDetect = `SELECT name FROM sqlite_master WHERE type='table' AND name='active_swaps'`
