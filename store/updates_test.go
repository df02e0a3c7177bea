package store_test

import (
	"testing"

	"github.com/on-the-ground/reactive_ive_go/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cart struct {
	Items []string
	Total int
}

func TestBind(t *testing.T) {
	s := store.New(counter{})
	incrementBy := store.Bind(s, func(by int) store.Mutation[counter] {
		return func(c counter) counter { return counter{Count: c.Count + by} }
	})

	incrementBy(2)
	incrementBy(3)
	assert.Equal(t, 5, s.Get().Count)
}

func TestDeclareUpdates(t *testing.T) {
	s := store.New(cart{})
	updates := store.DeclareUpdates(s, map[string]store.UpdateFactory[cart]{
		"add": func(args ...any) (store.Mutation[cart], error) {
			item, err := store.Arg[string](args, 0)
			if err != nil {
				return nil, err
			}
			price, err := store.Arg[int](args, 1)
			if err != nil {
				return nil, err
			}
			return func(c cart) cart {
				return cart{
					Items: append(append([]string(nil), c.Items...), item),
					Total: c.Total + price,
				}
			}, nil
		},
		"clear": func(...any) (store.Mutation[cart], error) {
			return func(cart) cart { return cart{} }, nil
		},
	})

	assert.Equal(t, []string{"add", "clear"}, updates.Names())
	assert.True(t, updates.Has("add"))

	require.NoError(t, updates.Call("add", "apple", 3))
	require.NoError(t, updates.Call("add", "pear", 4))
	assert.Equal(t, cart{Items: []string{"apple", "pear"}, Total: 7}, s.Get())

	err := updates.Call("add", "plum")
	assert.ErrorContains(t, err, `update "add"`)
	assert.Equal(t, 7, s.Get().Total)

	err = updates.Call("remove", "apple")
	assert.ErrorIs(t, err, store.ErrUnknownUpdate)

	require.NoError(t, updates.Call("clear"))
	assert.Equal(t, cart{}, s.Get())
}
