package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	store  Store
	cache  cache.CartCache
	logger *zap.Logger
	sfg    singleflight.Group // Prevents cache stampede
}

func NewCartService(store Store, cache cache.CartCache, logger *zap.Logger) *CartService {
	return &CartService{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// GetOrCreateCart resolves the cart for id. An identity carrying both a user
// and a session key has just logged in, so the guest cart is merged first.
func (s *CartService) GetOrCreateCart(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	if !id.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	if id.Authenticated() && id.SessionKey != "" {
		return s.MergeOnLogin(ctx, id.SessionKey, id.UserID)
	}
	return s.GetCart(ctx, id)
}

// GetCart serves the owner's cart from cache, falling back to the store and
// creating an empty cart when none exists yet.
func (s *CartService) GetCart(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	if !id.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	owner := id.Owner()
	key := owner.Key()

	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		cart, gen, err := s.cache.Get(ctx, key)
		if err == nil {
			return cart, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn(ctx, s.logger, "cache get error", zap.String("owner", key), zap.Error(err))
		}

		cart, err = s.store.GetOrCreateCart(ctx, owner)
		if err != nil {
			return nil, err
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		errSet := s.cache.Set(setCtx, key, gen, cart)
		switch {
		case errors.Is(errSet, cache.ErrStaleGeneration):
			logger.Debug(ctx, s.logger, "cart changed while loading, not cached", zap.String("owner", key))
		case errSet != nil:
			logger.Warn(ctx, s.logger, "cache set error", zap.String("owner", key), zap.Error(errSet))
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem puts quantity units of the variant in the cart, incrementing an
// existing line. The combined quantity must fit in the variant's stock.
func (s *CartService) AddItem(ctx context.Context, id domain.Identity, variantID int64, quantity int) (*domain.Cart, error) {
	if !id.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	owner := id.Owner()

	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		cart, err := lockCart(ctx, q, owner)
		if err != nil {
			return err
		}

		variant, err := q.GetVariant(ctx, variantID)
		if err != nil {
			return err
		}
		if !variant.IsActive {
			return domain.ErrVariantNotFound
		}

		if quantity > variant.AvailableStock() {
			return &domain.OutOfStockError{ProductName: variant.ProductTitle, Available: variant.AvailableStock()}
		}

		existing := cart.FindItem(variantID)
		if existing != nil {
			newQuantity := existing.Quantity + quantity
			if newQuantity > variant.AvailableStock() {
				return &domain.OutOfStockError{ProductName: variant.ProductTitle, Available: variant.AvailableStock()}
			}
			if err := q.SetCartItemQuantity(ctx, existing.ID, newQuantity); err != nil {
				return err
			}
		} else {
			vid := variant.ID
			item := &domain.CartItem{
				CartID:        cart.ID,
				VariantID:     &vid,
				Quantity:      quantity,
				PriceSnapshot: variant.EffectivePrice(),
				ProductTitle:  variant.ProductTitle,
				SKU:           variant.SKU,
				Attributes:    variant.Attributes,
			}
			if err := q.AddCartItem(ctx, item); err != nil {
				return err
			}
		}
		return q.TouchCart(ctx, cart.ID)
	})
	if err != nil {
		logger.Debug(ctx, s.logger, "add item failed", zap.String("owner", owner.Key()), zap.Int64("variant_id", variantID), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(ctx, owner)
	return s.GetCart(ctx, owner)
}

// UpdateQuantity sets a line's quantity after re-checking current stock.
// The price snapshot is left untouched.
func (s *CartService) UpdateQuantity(ctx context.Context, id domain.Identity, itemID int64, quantity int) (*domain.Cart, error) {
	if !id.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	owner := id.Owner()

	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		item, err := s.ownedItem(ctx, q, owner, itemID)
		if err != nil {
			return err
		}
		if item.Variant == nil || !item.Variant.IsActive {
			return &domain.OutOfStockError{ProductName: item.ProductTitle}
		}
		if quantity > item.Variant.AvailableStock() {
			return &domain.OutOfStockError{ProductName: item.ProductTitle, Available: item.Variant.AvailableStock()}
		}
		if err := q.SetCartItemQuantity(ctx, item.ID, quantity); err != nil {
			return err
		}
		return q.TouchCart(ctx, item.CartID)
	})
	if err != nil {
		logger.Debug(ctx, s.logger, "update quantity failed", zap.String("owner", owner.Key()), zap.Int64("item_id", itemID), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(ctx, owner)
	return s.GetCart(ctx, owner)
}

func (s *CartService) RemoveItem(ctx context.Context, id domain.Identity, itemID int64) (*domain.Cart, error) {
	if !id.Valid() {
		return nil, domain.ErrIdentityRequired
	}
	owner := id.Owner()

	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		item, err := s.ownedItem(ctx, q, owner, itemID)
		if err != nil {
			return err
		}
		if err := q.DeleteCartItem(ctx, item.CartID, item.ID); err != nil {
			return err
		}
		return q.TouchCart(ctx, item.CartID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, owner)
	return s.GetCart(ctx, owner)
}

// ClearCart empties the owner's cart; a missing cart is not an error.
func (s *CartService) ClearCart(ctx context.Context, id domain.Identity) error {
	if !id.Valid() {
		return domain.ErrIdentityRequired
	}
	owner := id.Owner()

	cart, err := s.store.GetCartByOwner(ctx, owner)
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.ClearCartItems(ctx, cart.ID); err != nil {
		logger.Error(ctx, s.logger, "clear cart failed", zap.Int64("cart_id", cart.ID), zap.Error(err))
		return err
	}

	s.invalidateCache(ctx, owner)
	return nil
}

// MergeOnLogin folds the session's guest cart into the user's cart in one
// transaction. Lines for the same variant are summed and capped at current
// stock; the excess is dropped. The guest cart is deleted afterwards.
func (s *CartService) MergeOnLogin(ctx context.Context, sessionKey string, userID int64) (*domain.Cart, error) {
	guestOwner := domain.Identity{SessionKey: sessionKey}
	userOwner := domain.Identity{UserID: userID}
	if !userOwner.Authenticated() {
		return nil, domain.ErrIdentityRequired
	}

	merged := false
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if sessionKey == "" {
			return nil
		}
		// User cart first, then guest: every path locks in this order.
		userCart, err := lockCart(ctx, q, userOwner)
		if err != nil {
			return err
		}

		guest, err := q.LockCartByOwner(ctx, guestOwner)
		if errors.Is(err, domain.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		for _, item := range guest.Items {
			if err := s.mergeItem(ctx, q, userCart, item); err != nil {
				return err
			}
		}

		if err := q.DeleteCart(ctx, guest.ID); err != nil {
			return err
		}
		merged = true
		return q.TouchCart(ctx, userCart.ID)
	})
	if err != nil {
		logger.Error(ctx, s.logger, "merge cart failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	if merged {
		logger.Info(ctx, s.logger, "guest cart merged", zap.Int64("user_id", userID))
		s.invalidateCache(ctx, guestOwner)
		s.invalidateCache(ctx, userOwner)
	}
	return s.GetCart(ctx, userOwner)
}

func (s *CartService) mergeItem(ctx context.Context, q repository.Querier, userCart *domain.Cart, item domain.CartItem) error {
	if item.VariantID == nil || item.Variant == nil {
		logger.Warn(ctx, s.logger, "dropping guest cart item without variant", zap.Int64("item_id", item.ID))
		return nil
	}
	stock := item.Variant.AvailableStock()

	if existing := userCart.FindItem(*item.VariantID); existing != nil {
		total := existing.Quantity + item.Quantity
		capped := min(total, stock)
		if capped < total {
			logger.Warn(ctx, s.logger, "merge capped at stock",
				zap.Int64("variant_id", *item.VariantID),
				zap.Int("requested", total),
				zap.Int("kept", capped),
			)
		}
		switch {
		case capped < 1:
			return q.DeleteCartItem(ctx, userCart.ID, existing.ID)
		case capped != existing.Quantity:
			return q.SetCartItemQuantity(ctx, existing.ID, capped)
		}
		return nil
	}

	if stock < 1 {
		logger.Warn(ctx, s.logger, "dropping guest cart item out of stock", zap.Int64("variant_id", *item.VariantID))
		return nil
	}
	if item.Quantity > stock {
		logger.Warn(ctx, s.logger, "merge capped at stock",
			zap.Int64("variant_id", *item.VariantID),
			zap.Int("requested", item.Quantity),
			zap.Int("kept", stock),
		)
		if err := q.SetCartItemQuantity(ctx, item.ID, stock); err != nil {
			return err
		}
	}
	return q.MoveCartItem(ctx, item.ID, userCart.ID)
}

// lockCart creates the owner's cart if needed and returns it locked for the
// rest of the transaction, with items read under the lock.
func lockCart(ctx context.Context, q repository.Querier, owner domain.Identity) (*domain.Cart, error) {
	cart, err := q.LockCartByOwner(ctx, owner)
	if !errors.Is(err, domain.ErrCartNotFound) {
		return cart, err
	}
	if _, err := q.GetOrCreateCart(ctx, owner); err != nil {
		return nil, err
	}
	return q.LockCartByOwner(ctx, owner)
}

func (s *CartService) ownedItem(ctx context.Context, q repository.Querier, owner domain.Identity, itemID int64) (*domain.CartItem, error) {
	cart, err := q.LockCartByOwner(ctx, owner)
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil, domain.ErrCartItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return q.GetCartItem(ctx, cart.ID, itemID)
}

// Invalidate drops the cached cart for id; used after order conversion.
func (s *CartService) Invalidate(ctx context.Context, id domain.Identity) {
	s.invalidateCache(ctx, id.Owner())
}

func (s *CartService) invalidateCache(ctx context.Context, owner domain.Identity) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if errInvalidate := s.cache.Delete(delCtx, owner.Key()); errInvalidate != nil {
		logger.Warn(ctx, s.logger, "cache invalidate error", zap.String("owner", owner.Key()), zap.Error(errInvalidate))
	}
}
