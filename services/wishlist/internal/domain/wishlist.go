package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultWishlistTitle is the reserved title of the implicit default wishlist
// that quick-add targets.
const DefaultWishlistTitle = "My Wishlist"

// ProductSnapshot is a point-in-time copy of catalog data taken when a
// product is saved. Items never refer back to the catalog.
type ProductSnapshot struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url,omitempty"`
	Brand     string `json:"brand,omitempty"`
}

// WishlistItem is one saved product inside a wishlist. Price is in minor
// currency units.
type WishlistItem struct {
	ID         string    `json:"id"`
	WishlistID string    `json:"wishlist_id"`
	ProductID  string    `json:"product_id"`
	Title      string    `json:"title"`
	Price      int64     `json:"price"`
	ImageURL   string    `json:"image_url,omitempty"`
	Brand      string    `json:"brand,omitempty"`
	AddedAt    time.Time `json:"added_at"`
}

// Wishlist is a named, user-owned collection of saved products.
type Wishlist struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	IsPublic    bool           `json:"is_public"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Items       []WishlistItem `json:"items"`
}

// ProfileDocument is the per-account persisted record holding the whole
// wishlist collection. Version increases by one on every successful write.
type ProfileDocument struct {
	ID        string     `json:"id"`
	Wishlists []Wishlist `json:"wishlists"`
	Version   int64      `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewWishlist builds an empty private wishlist with a fresh id.
func NewWishlist(ownerID, title, description string, now time.Time) Wishlist {
	return Wishlist{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       []WishlistItem{},
	}
}

// NewItem copies a product snapshot into a new item of wishlistID.
func NewItem(wishlistID string, p ProductSnapshot, now time.Time) WishlistItem {
	return WishlistItem{
		ID:         uuid.NewString(),
		WishlistID: wishlistID,
		ProductID:  p.ProductID,
		Title:      p.Title,
		Price:      p.Price,
		ImageURL:   p.ImageURL,
		Brand:      p.Brand,
		AddedAt:    now,
	}
}

// HasProduct reports whether the wishlist already holds productID.
func (w *Wishlist) HasProduct(productID string) bool {
	for i := range w.Items {
		if w.Items[i].ProductID == productID {
			return true
		}
	}
	return false
}

// FindItem returns the index of the item with the given id, or -1.
func (w *Wishlist) FindItem(itemID string) int {
	for i := range w.Items {
		if w.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no item storage with w.
func (w Wishlist) Clone() Wishlist {
	items := make([]WishlistItem, len(w.Items))
	copy(items, w.Items)
	w.Items = items
	return w
}

// Find returns the index of the wishlist with the given id, or -1.
func Find(wishlists []Wishlist, id string) int {
	for i := range wishlists {
		if wishlists[i].ID == id {
			return i
		}
	}
	return -1
}

// FindByTitle returns the index of the first wishlist titled title, or -1.
func FindByTitle(wishlists []Wishlist, title string) int {
	for i := range wishlists {
		if wishlists[i].Title == title {
			return i
		}
	}
	return -1
}

// CloneAll deep-copies a collection. A nil input yields an empty slice.
func CloneAll(wishlists []Wishlist) []Wishlist {
	out := make([]Wishlist, len(wishlists))
	for i := range wishlists {
		out[i] = wishlists[i].Clone()
	}
	return out
}

// Normalize fills defaults on records read from storage so callers never
// deal with missing fields. Records are never dropped.
func Normalize(ownerID string, raw []Wishlist) []Wishlist {
	out := CloneAll(raw)
	for i := range out {
		w := &out[i]
		if w.OwnerID == "" {
			w.OwnerID = ownerID
		}
		if w.UpdatedAt.IsZero() {
			w.UpdatedAt = w.CreatedAt
		}
		for j := range w.Items {
			if w.Items[j].WishlistID == "" {
				w.Items[j].WishlistID = w.ID
			}
		}
	}
	return out
}

// WishlistedProducts derives the set of product ids saved anywhere in the
// collection.
func WishlistedProducts(wishlists []Wishlist) map[string]struct{} {
	set := make(map[string]struct{})
	for i := range wishlists {
		for _, item := range wishlists[i].Items {
			set[item.ProductID] = struct{}{}
		}
	}
	return set
}

// ItemCount returns the number of items across all wishlists.
func ItemCount(wishlists []Wishlist) int {
	n := 0
	for i := range wishlists {
		n += len(wishlists[i].Items)
	}
	return n
}
