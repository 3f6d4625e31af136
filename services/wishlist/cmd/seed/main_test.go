package main

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

func TestBuildWishlists_Deterministic(t *testing.T) {
	a := buildWishlists(rand.New(rand.NewPCG(42, 7)), "seed-user-00007", 7)
	b := buildWishlists(rand.New(rand.NewPCG(42, 7)), "seed-user-00007", 7)

	assert.Equal(t, a, b)
}

func TestBuildWishlists_Shape(t *testing.T) {
	for i := range 50 {
		ws := buildWishlists(rand.New(rand.NewPCG(1, uint64(i))), "acct", i)

		require.NotEmpty(t, ws)
		assert.Equal(t, domain.DefaultWishlistTitle, ws[0].Title)
		for _, w := range ws {
			assert.Equal(t, "acct", w.OwnerID)
			seen := map[string]bool{}
			for _, item := range w.Items {
				assert.Equal(t, w.ID, item.WishlistID)
				assert.False(t, seen[item.ProductID], "duplicate product in one wishlist")
				seen[item.ProductID] = true
			}
		}
	}
}
