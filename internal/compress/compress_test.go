package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/provenance/internal/ir"
)

type fakeAction struct {
	label    string
	fid      string
	params   ir.IRObject
	requires []int64
	creates  []int64
	removes  []int64
}

func (a *fakeAction) FunctionID() string      { return a.fid }
func (a *fakeAction) Parameters() ir.IRObject { return a.params }
func (a *fakeAction) Requires() []int64       { return a.requires }
func (a *fakeAction) Creates() []int64        { return a.creates }
func (a *fakeAction) Removes() []int64        { return a.removes }

func set(label, key string, value int64) *fakeAction {
	return &fakeAction{
		label:  label,
		fid:    "set",
		params: ir.Object(ir.O("key", ir.IRString(key)), ir.O("value", ir.IRInt(value))),
	}
}

func other(label string) *fakeAction {
	return &fakeAction{label: label, fid: "other", params: ir.IRObject{}}
}

func byKey(params ir.IRObject) string {
	return params.String("key")
}

func labels(chain []Action) []string {
	out := make([]string, len(chain))
	for i, a := range chain {
		out[i] = a.(*fakeAction).label
	}
	return out
}

func TestLastOnly_KeepsLastPerKeyAcrossInterleaving(t *testing.T) {
	chain := []Action{set("a1", "a", 1), other("o"), set("b1", "b", 1), set("a2", "a", 2)}

	got := LastOnly("set", byKey)(chain)

	assert.Equal(t, []string{"o", "b1", "a2"}, labels(got))
}

func TestLastOnly_DefaultKeyUsesWholeBag(t *testing.T) {
	chain := []Action{set("a1", "a", 1), set("a2", "a", 2), set("a3", "a", 1)}

	got := LastOnly("set", nil)(chain)

	assert.Equal(t, []string{"a2", "a3"}, labels(got))
}

func TestLastConsecutive_PreservesSeparatedDuplicates(t *testing.T) {
	chain := []Action{
		set("a1", "a", 1), set("a2", "a", 2), other("o"), set("a3", "a", 3), set("b1", "b", 1),
	}

	got := LastConsecutive("set", byKey)(chain)

	assert.Equal(t, []string{"a2", "o", "a3", "b1"}, labels(got))
}

func TestCreateRemove_CancelsUnusedPair(t *testing.T) {
	chain := []Action{
		&fakeAction{label: "c", fid: "create", creates: []int64{10}},
		other("o"),
		&fakeAction{label: "r", fid: "remove", requires: []int64{10}, removes: []int64{10}},
	}

	got := CreateRemove("create", "remove")(chain)

	assert.Equal(t, []string{"o"}, labels(got))
}

func TestCreateRemove_SkipsWhenObjectUsedInBetween(t *testing.T) {
	chain := []Action{
		&fakeAction{label: "c", fid: "create", creates: []int64{10}},
		&fakeAction{label: "use", fid: "rename", requires: []int64{10}},
		&fakeAction{label: "r", fid: "remove", requires: []int64{10}, removes: []int64{10}},
	}

	got := CreateRemove("create", "remove")(chain)

	assert.Equal(t, []string{"c", "use", "r"}, labels(got))
}

func TestCreateRemove_PartialRemoveKeepsCreate(t *testing.T) {
	chain := []Action{
		&fakeAction{label: "c", fid: "create", creates: []int64{10, 11}},
		&fakeAction{label: "r", fid: "remove", removes: []int64{10}},
	}

	got := CreateRemove("create", "remove")(chain)

	assert.Equal(t, []string{"c", "r"}, labels(got))
}

func TestCreateRemove_MultiplePairs(t *testing.T) {
	chain := []Action{
		&fakeAction{label: "c1", fid: "create", creates: []int64{1}},
		&fakeAction{label: "c2", fid: "create", creates: []int64{2}},
		&fakeAction{label: "r2", fid: "remove", removes: []int64{2}},
		&fakeAction{label: "r1", fid: "remove", removes: []int64{1}},
	}

	got := CreateRemove("create", "remove")(chain)

	assert.Empty(t, got)
}

func TestStrategies_Idempotent(t *testing.T) {
	chain := []Action{
		set("a1", "a", 1), set("a2", "a", 2), other("o1"),
		&fakeAction{label: "c", fid: "create", creates: []int64{5}},
		set("b1", "b", 1), set("b2", "b", 1),
		&fakeAction{label: "r", fid: "remove", removes: []int64{5}},
		set("a3", "a", 3), other("o2"),
	}

	strategies := map[string]Strategy{
		"last-only":        LastOnly("set", byKey),
		"last-consecutive": LastConsecutive("set", byKey),
		"create-remove":    CreateRemove("create", "remove"),
	}
	for name, s := range strategies {
		t.Run(name, func(t *testing.T) {
			once := s(chain)
			twice := s(once)
			assert.Equal(t, labels(once), labels(twice))
		})
	}

	c := NewChain(strategies["last-consecutive"], strategies["create-remove"], strategies["last-only"])
	once := c.Apply(chain)
	assert.Equal(t, labels(once), labels(c.Apply(once)))
	assert.Equal(t, []string{"o1", "b2", "a3", "o2"}, labels(once))
}

func TestChain_NilAndEmpty(t *testing.T) {
	var c *Chain
	chain := []Action{other("o")}

	assert.Equal(t, chain, c.Apply(chain))
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, NewChain(LastOnly("set", nil)).Apply(nil))
}

func TestCanonicalKey_NullFallsBack(t *testing.T) {
	key := CanonicalKey(ir.Object(ir.O("v", ir.IRNull{})))
	assert.Equal(t, `{"v":null}`, key)
	assert.Equal(t, `{}`, CanonicalKey(nil))
}
