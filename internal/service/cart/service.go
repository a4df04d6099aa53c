package cart

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/logging"
	cartrepo "storefront/internal/repository/cart"
)

type Service struct {
	repo     cartrepo.Repository
	variants variantLookup
	currency string
	taxRate  decimal.Decimal
	logger   logrus.FieldLogger
}

type variantLookup interface {
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
}

type Options struct {
	Currency string
	TaxRate  decimal.Decimal
	Logger   logrus.FieldLogger
}

func New(repo cartrepo.Repository, variants variantLookup, opts Options) *Service {
	currency := strings.TrimSpace(opts.Currency)
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		repo:     repo,
		variants: variants,
		currency: currency,
		taxRate:  opts.TaxRate,
		logger:   logging.OrDiscard(opts.Logger),
	}
}

func (s *Service) Create(ctx context.Context) (*domain.Cart, error) {
	cart, err := s.repo.Create(ctx, s.currency)
	if err != nil {
		return nil, err
	}
	cart.Recalculate(s.currency, s.taxRate)
	s.logger.WithField("cart_id", cart.ID).Info("cart created")
	return cart, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Cart, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrNotFound
	}
	cart, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cart.Recalculate(s.currency, s.taxRate)
	return cart, nil
}

func (s *Service) AddLines(ctx context.Context, id string, lines []domain.LineInput) (*domain.Cart, error) {
	if len(lines) == 0 {
		return nil, domain.NewValidationError("lines", "at least one line required")
	}
	type resolved struct {
		variant  domain.Variant
		quantity int
	}
	batch := make([]resolved, 0, len(lines))
	for _, line := range lines {
		merchandiseID := strings.TrimSpace(line.MerchandiseID)
		if merchandiseID == "" {
			return nil, domain.NewValidationError("merchandiseId", "required")
		}
		if line.Quantity <= 0 {
			return nil, domain.NewValidationError("quantity", "must be positive")
		}
		if s.variants == nil {
			return nil, errors.New("variant lookup unavailable")
		}
		variant, err := s.variants.GetVariant(ctx, merchandiseID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewValidationError("merchandiseId", "unknown merchandise "+merchandiseID)
			}
			return nil, err
		}
		if !variant.AvailableForSale {
			return nil, domain.NewValidationError("merchandiseId", "merchandise not available for sale")
		}
		batch = append(batch, resolved{variant: *variant, quantity: line.Quantity})
	}

	for _, r := range batch {
		if err := s.repo.AddLine(ctx, id, r.variant, r.quantity); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *Service) RemoveLines(ctx context.Context, id string, lineIDs []string) (*domain.Cart, error) {
	ids := make([]string, 0, len(lineIDs))
	seen := make(map[string]struct{}, len(lineIDs))
	for _, lineID := range lineIDs {
		lineID = strings.TrimSpace(lineID)
		if lineID == "" {
			return nil, domain.NewValidationError("lineId", "required")
		}
		if _, ok := seen[lineID]; ok {
			continue
		}
		seen[lineID] = struct{}{}
		ids = append(ids, lineID)
	}
	if len(ids) == 0 {
		return nil, domain.NewValidationError("lineIds", "at least one line required")
	}
	if err := s.repo.RemoveLines(ctx, id, ids); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) UpdateLines(ctx context.Context, id string, updates []domain.LineUpdate) (*domain.Cart, error) {
	if len(updates) == 0 {
		return nil, domain.NewValidationError("lines", "at least one line required")
	}
	for _, u := range updates {
		if strings.TrimSpace(u.ID) == "" {
			return nil, domain.NewValidationError("lineId", "required")
		}
	}
	for _, u := range updates {
		if err := s.repo.SetLineQuantity(ctx, id, strings.TrimSpace(u.ID), u.Quantity); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}
