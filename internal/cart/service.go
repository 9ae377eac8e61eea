package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/oakmart/storefront/internal/redisx"
	"github.com/oakmart/storefront/internal/session"
)

// Invalidator is the slice of the cache the service needs: it never writes
// mutation results into the cache, it only marks the derived read stale so
// the next listing re-loads from Postgres.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// CheckoutPath is where a successful buy-now redirects.
const CheckoutPath = "/checkout"

// Service owns the buyer's cart. Postgres is the source of truth; the
// cached listing is invalidated after every successful mutation and never
// patched locally, so a failed request leaves no trace.
type Service struct {
	Repo  Store
	Cache Invalidator
	Guest *GuestStore

	guard inflight
}

func Key(userID string) string { return fmt.Sprintf(redisx.KeyCart, userID) }

// requireBuyer short-circuits guard violations before any repository call.
func requireBuyer(u session.User) error {
	if u.Anonymous() {
		return ErrLoginRequired
	}
	if u.Role != session.RoleBuyer {
		return ErrNotBuyer
	}
	return nil
}

func (s *Service) acquire(userID string) error {
	if !s.guard.tryAcquire(userID) {
		return ErrMutationInFlight
	}
	return nil
}

// Add creates or increments the buyer's line for the product.
func (s *Service) Add(ctx context.Context, u session.User, productID string, qty int) error {
	if err := requireBuyer(u); err != nil {
		return err
	}
	if qty < 1 {
		return ErrInvalidQty
	}
	if err := s.acquire(u.ID); err != nil {
		return err
	}
	defer s.guard.release(u.ID)
	return s.add(ctx, u.ID, productID, qty)
}

func (s *Service) add(ctx context.Context, userID, productID string, qty int) error {
	if err := s.Repo.Upsert(ctx, userID, productID, qty); err != nil {
		return err
	}
	_ = s.Cache.Invalidate(ctx, Key(userID))
	return nil
}

// UpdateQuantity sets the line's quantity. Zero or below removes the line
// outright.
func (s *Service) UpdateQuantity(ctx context.Context, u session.User, productID string, qty int) error {
	if err := requireBuyer(u); err != nil {
		return err
	}
	if err := s.acquire(u.ID); err != nil {
		return err
	}
	defer s.guard.release(u.ID)

	if qty <= 0 {
		_, err := s.Repo.Delete(ctx, u.ID, productID)
		if err != nil {
			return err
		}
		_ = s.Cache.Invalidate(ctx, Key(u.ID))
		return nil
	}
	if err := s.Repo.SetQty(ctx, u.ID, productID, qty); err != nil {
		return err
	}
	_ = s.Cache.Invalidate(ctx, Key(u.ID))
	return nil
}

// Remove deletes the line for the product. Removing something that is not
// there is a no-op; the refetch after invalidation is what confirms state.
func (s *Service) Remove(ctx context.Context, u session.User, productID string) error {
	if err := requireBuyer(u); err != nil {
		return err
	}
	if err := s.acquire(u.ID); err != nil {
		return err
	}
	defer s.guard.release(u.ID)

	if _, err := s.Repo.Delete(ctx, u.ID, productID); err != nil {
		return err
	}
	_ = s.Cache.Invalidate(ctx, Key(u.ID))
	return nil
}

// Clear deletes every line, one delete per item. This is not atomic: a
// failure partway leaves a partially cleared cart, the joined error reports
// which lines failed, and the next listing shows what remains. No retry, no
// rollback.
func (s *Service) Clear(ctx context.Context, u session.User) error {
	if err := requireBuyer(u); err != nil {
		return err
	}
	if err := s.acquire(u.ID); err != nil {
		return err
	}
	defer s.guard.release(u.ID)

	items, err := s.Repo.Items(ctx, u.ID)
	if err != nil {
		return err
	}
	var errs []error
	for _, it := range items {
		if _, err := s.Repo.Delete(ctx, u.ID, it.ProductID); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", it.ProductID, err))
		}
	}
	_ = s.Cache.Invalidate(ctx, Key(u.ID))
	return errors.Join(errs...)
}

// BuyNow is the single-item fast path: add, then hand back the checkout
// redirect. The redirect exists only on the success path; a failed add
// never navigates. Ordering is the guarantee, not a lock.
func (s *Service) BuyNow(ctx context.Context, u session.User, productID string, qty int) (string, error) {
	if err := s.Add(ctx, u, productID, qty); err != nil {
		return "", err
	}
	return CheckoutPath, nil
}

// List reads the cart from Postgres. Callers go through the read-through
// cache; this is its loader.
func (s *Service) List(ctx context.Context, u session.User) (Cart, error) {
	if err := requireBuyer(u); err != nil {
		return Cart{}, err
	}
	items, err := s.Repo.Items(ctx, u.ID)
	if err != nil {
		return Cart{}, err
	}
	return Cart{Items: items, TotalCents: Total(items)}, nil
}

// MigrateGuest replays a guest cart through the authenticated add path and
// drops the guest copy. Runs at login; the two modes are never mixed.
func (s *Service) MigrateGuest(ctx context.Context, u session.User, guestID string) error {
	if err := requireBuyer(u); err != nil {
		return err
	}
	if s.Guest == nil || guestID == "" {
		return nil
	}
	if err := s.acquire(u.ID); err != nil {
		return err
	}
	defer s.guard.release(u.ID)

	lines, err := s.Guest.Items(ctx, guestID)
	if err != nil {
		return fmt.Errorf("read guest cart: %w", err)
	}
	for _, l := range lines {
		if err := s.add(ctx, u.ID, l.ProductID, l.Qty); err != nil {
			// Unavailable or sold-out products just don't make the jump.
			if errors.Is(err, ErrProductNotFound) ||
				errors.Is(err, ErrProductUnavailable) ||
				errors.Is(err, ErrOutOfStock) {
				continue
			}
			return err
		}
		// The line is in Postgres now. Drop the guest copy right away so a
		// retry after a later failure cannot replay it into the upsert and
		// double the quantity.
		if err := s.Guest.Remove(ctx, guestID, l.ProductID); err != nil {
			return fmt.Errorf("drop migrated guest line %s: %w", l.ProductID, err)
		}
	}
	return s.Guest.Drop(ctx, guestID)
}
