package intents

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

func TestIntents_JSONRoundTrip(t *testing.T) {
	deposit := types.NewU128(5)
	in := Intents{
		Transfer{
			ReceiverID: "bob.near",
			Tokens:     map[types.TokenID]types.U128{types.FungibleToken("usdc.near"): types.NewU128(10)},
			Memo:       "rent",
		},
		TokenDiff{Diff: map[types.TokenID]types.I128{
			types.FungibleToken("usdc.near"): types.NewI128(-10),
			types.FungibleToken("wnear.near"): types.NewI128(3),
		}},
		FtWithdraw{Token: "usdc.near", ReceiverID: "bob.near", Amount: types.NewU128(1), StorageDeposit: &deposit},
		SetAuthByPredecessorID{Enabled: false},
		InvalidateNonces{Nonces: []types.Nonce{{1}}},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `{"intent":"transfer","receiver_id":"bob.near"`) {
		t.Errorf("Marshal missing tag: %s", data)
	}

	var out Intents
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d intents, want %d", len(out), len(in))
	}
	for n := range in {
		if out[n].Kind() != in[n].Kind() {
			t.Errorf("intent %d kind = %s, want %s", n, out[n].Kind(), in[n].Kind())
		}
	}
	tr, ok := out[0].(Transfer)
	if !ok {
		t.Fatalf("intent 0 is %T, want Transfer", out[0])
	}
	if got := tr.Tokens[types.FungibleToken("usdc.near")]; got.Cmp(types.NewU128(10)) != 0 {
		t.Errorf("transfer amount = %s", got)
	}
	fw := out[2].(FtWithdraw)
	if fw.StorageDeposit == nil || fw.StorageDeposit.Cmp(deposit) != 0 {
		t.Errorf("storage deposit = %v", fw.StorageDeposit)
	}
}

func TestUnmarshal_EmptyBody(t *testing.T) {
	data, err := Marshal(SetAuthByPredecessorID{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"intent":"set_auth_by_predecessor_id","enabled":false}` {
		t.Errorf("Marshal = %s", data)
	}
	data, err = Marshal(AuthCall{ContractID: "app.near", Msg: "hi"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "attached_deposit") {
		t.Errorf("zero deposit should be omitted: %s", data)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"unknown tag", `{"intent":"mint"}`, ErrUnknownIntent},
		{"missing tag", `{"receiver_id":"bob.near"}`, ErrUnknownIntent},
		{"bad account", `{"intent":"transfer","receiver_id":"Bob","tokens":{}}`, types.ErrInvalidAccountID},
		{"bad token", `{"intent":"token_diff","diff":{"xx:a.near":"1"}}`, types.ErrInvalidTokenID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSortedTokens(t *testing.T) {
	m := map[types.TokenID]types.I128{
		types.MultiToken("m.near", "1"): {},
		types.FungibleToken("b.near"):   {},
		types.FungibleToken("a.near"):   {},
	}
	got := SortedTokens(m)
	want := []string{"ft:a.near", "ft:b.near", "mt:m.near:1"}
	for n := range want {
		if got[n].String() != want[n] {
			t.Errorf("SortedTokens()[%d] = %s, want %s", n, got[n], want[n])
		}
	}
}
