package repository

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

// Querier is every statement the services run, with or without a transaction.
type Querier interface {
	CreateProduct(ctx context.Context, p *domain.Product) error
	CreateVariant(ctx context.Context, v *domain.Variant) error
	ListProducts(ctx context.Context, f domain.ProductFilter, limit, offset int) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error)
	GetVariant(ctx context.Context, id int64) (*domain.Variant, error)
	DecrementStock(ctx context.Context, variantID int64, qty int) (bool, error)
	RestoreStock(ctx context.Context, variantID int64, qty int) error
	SetStock(ctx context.Context, variantID int64, stock int) error
	DeleteVariant(ctx context.Context, variantID int64) error

	CreateCategory(ctx context.Context, c *domain.Category) error
	CreateBrand(ctx context.Context, b *domain.Brand) error
	ListCategories(ctx context.Context, limit int) ([]*domain.Category, error)
	ListChildCategoriesWithProducts(ctx context.Context, limit int) ([]*domain.Category, error)
	SearchCategories(ctx context.Context, text string, limit int) ([]*domain.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
	ListBrands(ctx context.Context, limit int) ([]*domain.Brand, error)
	SearchBrands(ctx context.Context, text string, limit int) ([]*domain.Brand, error)
	GetBrandBySlug(ctx context.Context, slug string) (*domain.Brand, error)

	GetCartByOwner(ctx context.Context, owner domain.Identity) (*domain.Cart, error)
	LockCartByOwner(ctx context.Context, owner domain.Identity) (*domain.Cart, error)
	GetOrCreateCart(ctx context.Context, owner domain.Identity) (*domain.Cart, error)
	GetCartItem(ctx context.Context, cartID, itemID int64) (*domain.CartItem, error)
	AddCartItem(ctx context.Context, item *domain.CartItem) error
	SetCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	MoveCartItem(ctx context.Context, itemID, toCartID int64) error
	DeleteCartItem(ctx context.Context, cartID, itemID int64) error
	ClearCartItems(ctx context.Context, cartID int64) error
	DeleteCart(ctx context.Context, cartID int64) error
	TouchCart(ctx context.Context, cartID int64) error

	CreateAddress(ctx context.Context, a *domain.Address) error
	GetAddress(ctx context.Context, id int64) (*domain.Address, error)
	ListAddresses(ctx context.Context, userID int64) ([]*domain.Address, error)
	SetDefaultAddress(ctx context.Context, userID, id int64) error
	UpdateAddress(ctx context.Context, a *domain.Address) error
	DeleteAddress(ctx context.Context, userID, id int64) error

	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOrdersByOwner(ctx context.Context, owner domain.Identity, limit, offset int) ([]*domain.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus) (bool, error)
	MarkOrderPaid(ctx context.Context, orderID int64, transactionID string) (bool, error)

	InsertOutboxEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int64) error
	DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error)
}

var _ Querier = (*Queries)(nil)
