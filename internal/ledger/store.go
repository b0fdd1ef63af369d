package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-intents/internal/lock"
	"github.com/Klingon-tech/klingnet-intents/internal/kv"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Key prefixes and state keys of the ledger keyspace. Account ids never
// contain '/', so "<account>/" cleanly separates per-account namespaces.
var (
	prefixAccount = []byte("a/") // a/<account> -> account record JSON
	prefixKey     = []byte("k/") // k/<account>/<curve:hex> -> empty
	prefixNonce   = []byte("n/") // n/<account>/<word(31)> -> bits(32)
	prefixBalance = []byte("b/") // b/<account>/<token id> -> U128 (16 BE bytes)
	prefixOutbox  = []byte("w/") // w/<seq(8)> -> Withdrawal JSON
	keyOutboxSeq  = []byte("s/outbox")
	keyGenesis    = []byte("s/genesis") // genesis hash(32)
	keyParams     = []byte("s/params")  // Params JSON
)

// accountFlags is the persisted per-account state besides keys, nonces
// and balances. It is stored wrapped in a lock.Lock.
type accountFlags struct {
	AuthByPredecessorIDDisabled bool `json:"auth_by_predecessor_id_disabled,omitempty"`
	ImplicitKeyRemoved          bool `json:"implicit_key_removed,omitempty"`
}

func accountKey(id types.AccountID) []byte {
	return append(append([]byte(nil), prefixAccount...), id...)
}

func accountPrefix(prefix []byte, id types.AccountID) []byte {
	out := make([]byte, 0, len(prefix)+len(id)+1)
	out = append(out, prefix...)
	out = append(out, id...)
	return append(out, '/')
}

func publicKeyKey(id types.AccountID, pk types.PublicKey) []byte {
	return append(accountPrefix(prefixKey, id), pk.String()...)
}

func outboxKey(seq uint64) []byte {
	key := make([]byte, len(prefixOutbox)+8)
	copy(key, prefixOutbox)
	binary.BigEndian.PutUint64(key[len(prefixOutbox):], seq)
	return key
}

func encodeAccount(rec *lock.Lock[accountFlags]) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("account marshal: %w", err)
	}
	return data, nil
}

func decodeAccount(data []byte) (*lock.Lock[accountFlags], error) {
	rec := lock.Unlocked(accountFlags{})
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("account unmarshal: %w", err)
	}
	return rec, nil
}

// tokenCodec stores token ids in their canonical string form, so balances
// iterate in token order.
var tokenCodec = kv.Codec[types.TokenID]{
	Encode: func(t types.TokenID) []byte { return []byte(t.String()) },
	Decode: func(b []byte) (types.TokenID, error) { return types.ParseTokenID(string(b)) },
}

var u128Codec = kv.Codec[types.U128]{
	Encode: func(a types.U128) []byte { return a.Bytes() },
	Decode: types.U128FromBytes,
}
