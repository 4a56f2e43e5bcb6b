package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterExchangeIsIdempotent(t *testing.T) {
	r := New()
	a := r.RegisterExchange("binance")
	b := r.RegisterExchange("binance")
	require.Equal(t, a, b)

	c := r.RegisterExchange("coinbase")
	require.NotEqual(t, a, c)

	name, ok := r.ExchangeName(a)
	require.True(t, ok)
	require.Equal(t, "binance", name)
}

func TestRegisterSymbolIsIdempotentPerExchange(t *testing.T) {
	r := New()
	ex := r.RegisterExchange("binance")

	a := r.RegisterSymbol(ex, "BTC-USD")
	b := r.RegisterSymbol(ex, "BTC-USD")
	require.Equal(t, a, b)

	otherEx := r.RegisterExchange("coinbase")
	c := r.RegisterSymbol(otherEx, "BTC-USD")
	require.NotEqual(t, a, c)

	gotEx, gotSym, ok := r.SymbolKey(a)
	require.True(t, ok)
	require.Equal(t, ex, gotEx)
	require.Equal(t, "BTC-USD", gotSym)
}

func TestSymbolIdLookupMissingReturnsFalse(t *testing.T) {
	r := New()
	ex := r.RegisterExchange("binance")
	_, ok := r.SymbolId(ex, "nonexistent")
	require.False(t, ok)
}

func TestGroupEconomicallyEquivalentSymbols(t *testing.T) {
	r := New()
	exA := r.RegisterExchange("binance")
	exB := r.RegisterExchange("coinbase")

	a := r.RegisterSymbol(exA, "BTC-USD")
	b := r.RegisterSymbol(exB, "BTC-USD")
	r.Group(a, b)

	group := r.EquivalentGroup(a)
	require.ElementsMatch(t, []interface{}{a, b}, toInterfaceSlice(group))

	group2 := r.EquivalentGroup(b)
	require.Equal(t, group, group2)
}

func TestGroupMergesExistingGroups(t *testing.T) {
	r := New()
	ex := r.RegisterExchange("x")
	a := r.RegisterSymbol(ex, "a")
	b := r.RegisterSymbol(ex, "b")
	c := r.RegisterSymbol(ex, "c")

	r.Group(a, b)
	r.Group(b, c)

	require.ElementsMatch(t, []interface{}{a, b, c}, toInterfaceSlice(r.EquivalentGroup(a)))
	require.ElementsMatch(t, []interface{}{a, b, c}, toInterfaceSlice(r.EquivalentGroup(c)))
}

func TestUngroupedSymbolReturnsItself(t *testing.T) {
	r := New()
	ex := r.RegisterExchange("x")
	a := r.RegisterSymbol(ex, "solo")
	require.Equal(t, 1, len(r.EquivalentGroup(a)))
}

func TestConcurrentRegistrationIsSafe(t *testing.T) {
	r := New()
	ex := r.RegisterExchange("x")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RegisterSymbol(ex, "shared")
		}()
	}
	wg.Wait()

	id, ok := r.SymbolId(ex, "shared")
	require.True(t, ok)
	gotEx, gotSym, ok := r.SymbolKey(id)
	require.True(t, ok)
	require.Equal(t, ex, gotEx)
	require.Equal(t, "shared", gotSym)
}

func toInterfaceSlice[T any](in []T) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
