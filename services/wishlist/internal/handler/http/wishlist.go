package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/httputil"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/middleware"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/pagination"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/validator"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/notify"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/service"
)

// ProductLookup resolves a product ID to a catalog snapshot.
type ProductLookup interface {
	GetProduct(ctx context.Context, productID string) (*domain.ProductSnapshot, error)
}

// WishlistHandler handles HTTP requests for wishlist endpoints.
type WishlistHandler struct {
	sessions *service.SessionManager
	catalog  ProductLookup
	logger   *slog.Logger
	stream   StreamConfig
}

// NewWishlistHandler creates a new wishlist HTTP handler. catalog may be nil,
// in which case products must be sent as full snapshots.
func NewWishlistHandler(sessions *service.SessionManager, catalog ProductLookup, logger *slog.Logger, stream StreamConfig) *WishlistHandler {
	if stream.Heartbeat <= 0 {
		stream.Heartbeat = DefaultHeartbeat
	}
	return &WishlistHandler{
		sessions: sessions,
		catalog:  catalog,
		logger:   logger,
		stream:   stream,
	}
}

// --- Request DTOs ---

// ProductRequest identifies a product. When only product_id is given the
// snapshot is fetched from the catalog.
type ProductRequest struct {
	ProductID string `json:"product_id" validate:"required,notblank,max=100"`
	Title     string `json:"title" validate:"max=500"`
	Price     int64  `json:"price" validate:"gte=0"`
	ImageURL  string `json:"image_url" validate:"omitempty,url,max=2048"`
	Brand     string `json:"brand" validate:"max=255"`
}

// CreateWishlistRequest is the JSON request body for creating a wishlist.
type CreateWishlistRequest struct {
	Title       string          `json:"title" validate:"required,notblank,max=255"`
	Description string          `json:"description" validate:"max=2000"`
	Product     *ProductRequest `json:"product"`
}

// --- Response DTOs ---

// AddResponse reports the outcome of an add.
type AddResponse struct {
	Outcome   service.AddOutcome `json:"outcome"`
	ProductID string             `json:"product_id"`
}

// WishlistedResponse reports whether a product is saved.
type WishlistedResponse struct {
	ProductID  string `json:"product_id"`
	Wishlisted bool   `json:"wishlisted"`
}

// --- Handlers ---

// GetWishlists handles GET /api/v1/wishlists
func (h *WishlistHandler) GetWishlists(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: engine.Wishlists()})
}

// Reload handles POST /api/v1/wishlists/reload
func (h *WishlistHandler) Reload(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	engine.Load(r.Context())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: engine.Wishlists()})
}

// CreateWishlist handles POST /api/v1/wishlists
func (h *WishlistHandler) CreateWishlist(w http.ResponseWriter, r *http.Request) {
	var req CreateWishlistRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, inbox := notify.WithInbox(r.Context())

	var (
		wl  *domain.Wishlist
		err error
	)
	if req.Product != nil {
		product, perr := h.resolveProduct(ctx, req.Product)
		if perr != nil {
			httputil.WriteError(w, r, perr, h.logger)
			return
		}
		wl, err = engine.CreateWishlistWithItem(ctx, req.Title, *product, req.Description)
	} else {
		wl, err = engine.CreateWishlist(ctx, req.Title, req.Description)
	}
	if err != nil {
		h.writeFailure(w, r, err, inbox)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: wl, Message: message(inbox)})
}

// DeleteWishlist handles DELETE /api/v1/wishlists/{wishlistId}
func (h *WishlistHandler) DeleteWishlist(w http.ResponseWriter, r *http.Request) {
	wishlistID, ok := httputil.ParseUUID(w, "wishlist id", chi.URLParam(r, "wishlistId"))
	if !ok {
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, inbox := notify.WithInbox(r.Context())

	if err := engine.DeleteWishlist(ctx, wishlistID); err != nil {
		h.writeFailure(w, r, err, inbox)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Message: message(inbox)})
}

// ListItems handles GET /api/v1/wishlists/{wishlistId}/items
func (h *WishlistHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	wishlistID, ok := httputil.ParseUUID(w, "wishlist id", chi.URLParam(r, "wishlistId"))
	if !ok {
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	wishlists := engine.Wishlists().Wishlists
	idx := domain.Find(wishlists, wishlistID)
	if idx < 0 {
		httputil.WriteError(w, r, apperrors.NotFound("wishlist", wishlistID), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.Slice(wishlists[idx].Items, pagination.FromRequest(r)))
}

// AddItem handles POST /api/v1/wishlists/{wishlistId}/items
func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	wishlistID, ok := httputil.ParseUUID(w, "wishlist id", chi.URLParam(r, "wishlistId"))
	if !ok {
		return
	}
	var req ProductRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, inbox := notify.WithInbox(r.Context())

	product, err := h.resolveProduct(ctx, &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	outcome, err := engine.AddToWishlist(ctx, wishlistID, *product)
	if err != nil {
		h.writeFailure(w, r, err, inbox)
		return
	}
	h.writeAdd(w, outcome, product.ProductID, inbox)
}

// QuickAdd handles POST /api/v1/wishlists/quick-add
func (h *WishlistHandler) QuickAdd(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, inbox := notify.WithInbox(r.Context())

	product, err := h.resolveProduct(ctx, &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	outcome, err := engine.QuickAddToWishlist(ctx, *product)
	if err != nil {
		h.writeFailure(w, r, err, inbox)
		return
	}
	h.writeAdd(w, outcome, product.ProductID, inbox)
}

// RemoveItem handles DELETE /api/v1/wishlists/{wishlistId}/items/{itemId}
func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	wishlistID, ok := httputil.ParseUUID(w, "wishlist id", chi.URLParam(r, "wishlistId"))
	if !ok {
		return
	}
	itemID, ok := httputil.ParseUUID(w, "item id", chi.URLParam(r, "itemId"))
	if !ok {
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, inbox := notify.WithInbox(r.Context())

	removed, err := engine.RemoveFromWishlist(ctx, wishlistID, itemID)
	if err != nil {
		h.writeFailure(w, r, err, inbox)
		return
	}
	if !removed {
		msg := message(inbox)
		httputil.WriteJSON(w, http.StatusNotFound, httputil.Response{
			Message: msg,
			Error: &httputil.ErrorResponse{
				Code:      "NOT_FOUND",
				Message:   msg,
				RequestID: logger.CorrelationIDFromContext(r.Context()),
			},
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Message: message(inbox)})
}

// IsWishlisted handles GET /api/v1/wishlists/products/{productId}
func (h *WishlistHandler) IsWishlisted(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: WishlistedResponse{ProductID: productID, Wishlisted: engine.IsProductWishlisted(productID)},
	})
}

// EndSession handles DELETE /api/v1/wishlists/session
func (h *WishlistHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Evict(r.Context(), middleware.AccountIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *WishlistHandler) engine(w http.ResponseWriter, r *http.Request) (*service.WishlistEngine, bool) {
	engine, err := h.sessions.Get(r.Context(), middleware.AccountIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, false
	}
	return engine, true
}

func (h *WishlistHandler) resolveProduct(ctx context.Context, req *ProductRequest) (*domain.ProductSnapshot, error) {
	if req.Title != "" || h.catalog == nil {
		return &domain.ProductSnapshot{
			ProductID: req.ProductID,
			Title:     req.Title,
			Price:     req.Price,
			ImageURL:  req.ImageURL,
			Brand:     req.Brand,
		}, nil
	}
	return h.catalog.GetProduct(ctx, req.ProductID)
}

func (h *WishlistHandler) writeAdd(w http.ResponseWriter, outcome service.AddOutcome, productID string, inbox *notify.Inbox) {
	status := http.StatusOK
	if outcome == service.OutcomeAdded {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, httputil.Response{
		Data:    AddResponse{Outcome: outcome, ProductID: productID},
		Message: message(inbox),
	})
}

// writeFailure reports err using the notification the engine emitted for it,
// falling back to the generic error mapping.
func (h *WishlistHandler) writeFailure(w http.ResponseWriter, r *http.Request, err error, inbox *notify.Inbox) {
	n, ok := inbox.Last()
	if !ok || n.Level != domain.LevelError {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.WithContext(r.Context(), h.logger).ErrorContext(r.Context(), "wishlist operation failed",
			slog.String("error", err.Error()),
			slog.String("operation", n.Operation),
		)
	}
	httputil.WriteJSON(w, status, httputil.Response{
		Message: n.Message,
		Error: &httputil.ErrorResponse{
			Code:      apperrors.Code(err),
			Message:   n.Message,
			RequestID: logger.CorrelationIDFromContext(r.Context()),
		},
	})
}

func message(inbox *notify.Inbox) string {
	if n, ok := inbox.Last(); ok {
		return n.Message
	}
	return ""
}
