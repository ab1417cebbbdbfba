package service

import (
	"context"

	"github.com/shopspring/decimal"

	"kisan-choice-api/internal/apperror"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/validation"
)

const fixedQuantityMessage = "This item has a fixed quantity from a negotiation and cannot be changed."

// ViewCart prices every line of the consumer's cart at its effective unit price.
func (s *Service) ViewCart(ctx context.Context, consumerID string) (models.CartView, error) {
	view := models.CartView{Lines: []models.CartLineView{}, TotalPrice: decimal.Zero}

	cart, err := s.db.GetCartByConsumer(ctx, consumerID)
	if err != nil {
		return models.CartView{}, internal(err, "view cart")
	}
	if cart == nil {
		return view, nil
	}
	view.CartID = cart.ID

	lines, err := s.db.CartLines(ctx, consumerID)
	if err != nil {
		return models.CartView{}, internal(err, "view cart")
	}
	for _, l := range lines {
		price := l.EffectivePrice()
		total := price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		view.Lines = append(view.Lines, models.CartLineView{
			CartLine:              l,
			EffectivePricePerUnit: price,
			TotalItemPrice:        total,
		})
		view.TotalPrice = view.TotalPrice.Add(total)
	}
	return view, nil
}

// AddToCart adds a standard line, merging into an existing standard line for
// the same product. Negotiated lines are never merged into.
func (s *Service) AddToCart(ctx context.Context, consumerID string, req models.AddToCartRequest) (models.CartItem, error) {
	if err := invalid(validation.ValidateID(req.ProductID, "product_id")); err != nil {
		return models.CartItem{}, err
	}
	if req.Quantity != 0 {
		if err := invalid(validation.ValidateQuantity(req.Quantity)); err != nil {
			return models.CartItem{}, err
		}
	}

	now := s.now()
	var item models.CartItem

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		product, err := tx.GetProduct(ctx, req.ProductID)
		if notFound(err) {
			return apperror.NotFound("Product not found.")
		}
		if err != nil {
			return err
		}
		if product.SellerID == consumerID {
			return apperror.Validation("You cannot add your own product to the cart.")
		}

		qty := req.Quantity
		if qty == 0 {
			qty = product.MinQty
		}

		cart, err := tx.EnsureCart(ctx, consumerID, s.newID(), now)
		if err != nil {
			return err
		}
		existing, err := tx.FindStandardLine(ctx, cart.ID, product.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			qty += existing.Quantity
		}

		if err := checkQuantity(product.ID, product.Name, qty, product.MinQty, product.MaxQty, product.StockQuantity); err != nil {
			return err
		}

		if existing != nil {
			if _, err := tx.UpdateCartItemQuantity(ctx, existing.ID, qty); err != nil {
				return err
			}
			item = existing.CartItem
			item.Quantity = qty
			return nil
		}

		item = models.CartItem{
			ID:           s.newID(),
			CartID:       cart.ID,
			ProductID:    product.ID,
			Quantity:     qty,
			PricePerUnit: product.Price,
			AddedAt:      now,
		}
		return tx.InsertCartItem(ctx, item)
	})
	if err != nil {
		return models.CartItem{}, internal(err, "add to cart")
	}
	return item, nil
}

// UpdateCartItem changes the quantity of a standard line. Negotiated lines
// have a fixed quantity.
func (s *Service) UpdateCartItem(ctx context.Context, consumerID, itemID string, qty int) (models.CartItem, error) {
	if err := invalid(validation.ValidateQuantity(qty)); err != nil {
		return models.CartItem{}, err
	}
	if err := invalid(validation.ValidateID(itemID, "itemId")); err != nil {
		return models.CartItem{}, err
	}

	var item models.CartItem
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		line, err := tx.GetCartLine(ctx, itemID, consumerID)
		if notFound(err) {
			return apperror.NotFound("Cart item not found or does not belong to you.")
		}
		if err != nil {
			return err
		}
		if line.QuantityFixed {
			return apperror.Validation(fixedQuantityMessage)
		}
		if err := checkQuantity(line.ProductID, line.ProductName, qty, line.MinQty, line.MaxQty, line.StockQuantity); err != nil {
			return err
		}

		ok, err := tx.UpdateCartItemQuantity(ctx, line.ID, qty)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Validation(fixedQuantityMessage)
		}
		item = line.CartItem
		item.Quantity = qty
		return nil
	})
	if err != nil {
		return models.CartItem{}, internal(err, "update cart item")
	}
	return item, nil
}

// RemoveCartItem deletes one line. Offer audit rows behind a negotiated line stay.
func (s *Service) RemoveCartItem(ctx context.Context, consumerID, itemID string) error {
	if err := invalid(validation.ValidateID(itemID, "itemId")); err != nil {
		return err
	}
	ok, err := s.db.DeleteCartItem(ctx, itemID, consumerID)
	if err != nil {
		return internal(err, "remove cart item")
	}
	if !ok {
		return apperror.NotFound("Cart item not found or does not belong to you.")
	}
	return nil
}

// ClearCart removes every line from the consumer's cart.
func (s *Service) ClearCart(ctx context.Context, consumerID string) (int, error) {
	n, err := s.db.ClearCart(ctx, consumerID)
	if err != nil {
		return 0, internal(err, "clear cart")
	}
	return n, nil
}

func checkQuantity(productID, productName string, qty, minQty, maxQty, stock int) error {
	if qty < minQty || qty > maxQty {
		return apperror.Validation("Quantity must be between %d and %d.", minQty, maxQty)
	}
	if qty > stock {
		return apperror.InsufficientStock(productID, productName, stock)
	}
	return nil
}
