package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"reservation-service/internal/models"
)

// Memory implements Store with in-memory maps guarded by one mutex, so the
// conditional updates have the same atomicity as the SQL transactions. Used
// for tests and development.
type Memory struct {
	mu        sync.Mutex
	products  map[string]*models.Product
	profiles  map[string]*models.Profile
	roles     map[string][]string
	blocked   map[string]map[string]bool // productID -> agentID
	overrides map[string]map[string]*models.CommissionOverride
	holds     map[string]*models.Hold
	deals     map[string]*models.Deal
	credits   []models.CommissionCredit
	processed map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		products:  make(map[string]*models.Product),
		profiles:  make(map[string]*models.Profile),
		roles:     make(map[string][]string),
		blocked:   make(map[string]map[string]bool),
		overrides: make(map[string]map[string]*models.CommissionOverride),
		holds:     make(map[string]*models.Hold),
		deals:     make(map[string]*models.Deal),
		processed: make(map[string]string),
	}
}

// --- Seed helpers (tests and dev fixtures) ---

// PutProduct upserts a product.
func (s *Memory) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

// PutProfile upserts a user profile.
func (s *Memory) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = &p
}

// GrantRole adds a role to a user.
func (s *Memory) GrantRole(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = append(s.roles[userID], role)
}

// BlockAgent blocks an agent from a product.
func (s *Memory) BlockAgent(productID, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked[productID] == nil {
		s.blocked[productID] = make(map[string]bool)
	}
	s.blocked[productID][agentID] = true
}

// PutCommissionOverride upserts a per-agent commission override.
func (s *Memory) PutCommissionOverride(o models.CommissionOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides[o.ProductID] == nil {
		s.overrides[o.ProductID] = make(map[string]*models.CommissionOverride)
	}
	s.overrides[o.ProductID][o.AgentID] = &o
}

// CommissionCredits returns a copy of the ledger (test inspection).
func (s *Memory) CommissionCredits() []models.CommissionCredit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CommissionCredit, len(s.credits))
	copy(out, s.credits)
	return out
}

// --- Catalog ---

func (s *Memory) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Memory) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) IsAgentBlocked(_ context.Context, productID, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[productID][agentID], nil
}

func (s *Memory) GetCommissionOverride(_ context.Context, productID, agentID string) (*models.CommissionOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overrides[productID][agentID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

// --- Users ---

func (s *Memory) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Memory) GetUserRoles(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := make([]string, len(s.roles[userID]))
	copy(roles, s.roles[userID])
	return roles, nil
}

// --- Hold lifecycle ---

func (s *Memory) CreateHoldTx(_ context.Context, hold *models.Hold, cooldown time.Duration) error {
	now := hold.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[hold.ProductID]
	if !ok {
		return models.ErrProductNotFound
	}
	if !product.Reservable(now) {
		return models.ErrProductInactive
	}

	// Lazy expiry of this agent's overdue holds, mirroring the SQL path.
	for _, h := range s.holds {
		if h.ProductID == hold.ProductID && h.AgentID == hold.AgentID &&
			h.Status == models.HoldStatusActive && !h.ExpiresAt.After(now) {
			h.Status = models.HoldStatusExpired
			h.UpdatedAt = now
		}
	}

	var lastExpired time.Time
	used := 0
	today := 0
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range s.holds {
		if h.ProductID != hold.ProductID {
			continue
		}
		if h.Status == models.HoldStatusConverted ||
			(h.Status == models.HoldStatusActive && h.ExpiresAt.After(now)) {
			used++
		}
		if h.AgentID == hold.AgentID {
			if h.Status == models.HoldStatusActive && h.ExpiresAt.After(now) {
				return models.ErrAlreadyHeld
			}
			if h.Status == models.HoldStatusExpired && h.UpdatedAt.After(lastExpired) {
				lastExpired = h.UpdatedAt
			}
		}
		if !h.CreatedAt.Before(dayStart) && h.CreatedAt.Before(dayStart.Add(24*time.Hour)) {
			today++
		}
	}

	if !lastExpired.IsZero() && now.Before(lastExpired.Add(cooldown)) {
		return models.ErrCooldown
	}
	if used >= product.TotalQty {
		return models.ErrSoldOut
	}
	if product.DailyLimit != nil && today >= *product.DailyLimit {
		return models.ErrSoldOut
	}

	cp := *hold
	s.holds[hold.ID] = &cp
	return nil
}

func (s *Memory) GetHoldByID(_ context.Context, id string) (*models.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return nil, models.ErrHoldNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *Memory) ListHolds(_ context.Context, agentID string) ([]models.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Hold, 0, len(s.holds))
	for _, h := range s.holds {
		if agentID != "" && h.AgentID != agentID {
			continue
		}
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) ExpireStaleHolds(_ context.Context, now time.Time) ([]models.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []models.Hold
	for _, h := range s.holds {
		if h.Status == models.HoldStatusActive && !h.ExpiresAt.After(now) {
			h.Status = models.HoldStatusExpired
			h.UpdatedAt = now
			expired = append(expired, *h)
		}
	}
	return expired, nil
}

func (s *Memory) ExtendHoldIf(_ context.Context, holdID, agentID string, newExpiry, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[holdID]
	if !ok || h.AgentID != agentID || h.Status != models.HoldStatusActive ||
		h.Extended || !h.ExpiresAt.After(now) {
		return false, nil
	}
	h.ExpiresAt = newExpiry
	h.Extended = true
	h.UpdatedAt = now
	return true, nil
}

func (s *Memory) CancelHoldIf(_ context.Context, holdID, agentID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[holdID]
	if !ok || h.AgentID != agentID || h.Status != models.HoldStatusActive ||
		!h.ExpiresAt.After(now) {
		return false, nil
	}
	h.Status = models.HoldStatusCancelled
	h.UpdatedAt = now
	return true, nil
}

// --- Conversion ---

func (s *Memory) ConvertHoldTx(_ context.Context, deal *models.Deal, now time.Time) error {
	if deal.HoldID == nil {
		return models.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holds[*deal.HoldID]
	if !ok {
		return models.ErrHoldNotFound
	}
	if h.AgentID != deal.AgentID {
		return models.ErrNotOwner
	}
	if h.Status == models.HoldStatusActive && !h.ExpiresAt.After(now) {
		return models.ErrHoldExpired
	}
	if h.Status != models.HoldStatusActive {
		return models.ErrInvalidState
	}

	h.Status = models.HoldStatusConverted
	h.UpdatedAt = now
	cp := *deal
	s.deals[deal.ID] = &cp
	return nil
}

// --- Deal review ---

func (s *Memory) GetDealByID(_ context.Context, id string) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return nil, models.ErrDealNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Memory) ListDeals(_ context.Context, agentID, status string) ([]models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Deal, 0, len(s.deals))
	for _, d := range s.deals {
		if agentID != "" && d.AgentID != agentID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) AdvanceDealTx(_ context.Context, dealID, from, to, note string, now time.Time, credit *models.CommissionCredit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deals[dealID]
	if !ok || d.Status != from {
		return models.ErrConflict
	}
	d.Status = to
	d.UpdatedAt = now
	if note != "" {
		d.AdminNote = note
	}
	if credit != nil {
		for _, c := range s.credits {
			if c.DealID == credit.DealID {
				return models.ErrConflict
			}
		}
		s.credits = append(s.credits, *credit)
	}
	return nil
}

func (s *Memory) SetDealReviewIf(_ context.Context, dealID, agentID, reviewLink, screenshotPath string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[dealID]
	if !ok || d.AgentID != agentID || d.Status != models.DealStatusApproved {
		return false, nil
	}
	d.Status = models.DealStatusReviewUploaded
	d.ReviewLink = reviewLink
	d.ReviewScreenshotPath = screenshotPath
	d.UpdatedAt = now
	return true, nil
}

// --- Commission ledger and reporting ---

func (s *Memory) ListCommissionCreditsByAgent(_ context.Context, agentID string) ([]models.CommissionCredit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CommissionCredit
	for _, c := range s.credits {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) GetSalesMetrics(_ context.Context, from, to time.Time) ([]models.SalesMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		day     time.Time
		country string
	}
	agg := make(map[key]*models.SalesMetric)
	for _, d := range s.deals {
		if d.Status != models.DealStatusCompleted {
			continue
		}
		if d.UpdatedAt.Before(from) || d.UpdatedAt.After(to) {
			continue
		}
		country := ""
		if p, ok := s.products[d.ProductID]; ok {
			country = p.MarketplaceCountry
		}
		day := d.UpdatedAt.Truncate(24 * time.Hour)
		k := key{day: day, country: country}
		m, ok := agg[k]
		if !ok {
			m = &models.SalesMetric{SaleDate: day, Country: country}
			agg[k] = m
		}
		m.DealCount++
		m.TotalCommissionCents += d.CommissionCents
	}

	out := make([]models.SalesMetric, 0, len(agg))
	for _, m := range agg {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SaleDate.Equal(out[j].SaleDate) {
			return out[i].SaleDate.Before(out[j].SaleDate)
		}
		return out[i].Country < out[j].Country
	})
	return out, nil
}

// --- Consumer idempotency ---

func (s *Memory) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *Memory) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = eventType
	return nil
}
