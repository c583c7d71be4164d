package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// defaultMenuPhotoURL is the catalog picture attached to menu replies.
const defaultMenuPhotoURL = "https://cdn.pavebot.example/menu/carta.jpg"

var acceptedPayments = map[string]struct{}{
	"efectivo":      {},
	"transferencia": {},
	"tarjeta":       {},
}

// MemoryService is the in-memory reference implementation of Service,
// used by tests and by deployments that run the real catalog elsewhere.
type MemoryService struct {
	mu        sync.Mutex
	menu      []MenuItem
	menuPhoto string
	orders    map[int64]*Order
	nextID    int64
}

// NewMemoryService builds the service with the pavé catalog.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		menu: []MenuItem{
			{ID: 1, Name: "Maracuyá", Size: "8 Onzas", Price: 12000, Category: "pave", PhotoURL: "https://cdn.pavebot.example/menu/maracuya-8.jpg"},
			{ID: 2, Name: "Maracuyá", Size: "16 Onzas", Price: 20000, Category: "pave", PhotoURL: "https://cdn.pavebot.example/menu/maracuya-16.jpg"},
			{ID: 3, Name: "Pave de Milo", Size: "8 Onzas", Price: 13000, Category: "pave", PhotoURL: "https://cdn.pavebot.example/menu/milo-8.jpg"},
			{ID: 4, Name: "Pave de Milo", Size: "16 Onzas", Price: 22000, Category: "pave", PhotoURL: "https://cdn.pavebot.example/menu/milo-16.jpg"},
			{ID: 5, Name: "Arequipe", Size: "8 Onzas", Price: 12500, Category: "pave", PhotoURL: "https://cdn.pavebot.example/menu/arequipe-8.jpg"},
			{ID: 6, Name: "Arequipe", Size: "16 Onzas", Price: 21000, Category: "pave", PhotoURL: "https://cdn.pavebot.example/menu/arequipe-16.jpg"},
			{ID: 7, Name: "Leche Klim", Size: "8 Onzas", Price: 12500, Category: "pave", PhotoURL: "https://cdn.pavebot.example/menu/klim-8.jpg"},
			{ID: 8, Name: "Leche Klim", Size: "16 Onzas", Price: 21000, Category: "pave", PhotoURL: "https://cdn.pavebot.example/menu/klim-16.jpg"},
		},
		menuPhoto: defaultMenuPhotoURL,
		orders:    make(map[int64]*Order),
		nextID:    1000,
	}
}

func (s *MemoryService) Menu(_ context.Context) ([]MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	menu := make([]MenuItem, len(s.menu))
	copy(menu, s.menu)
	return menu, nil
}

func (s *MemoryService) MenuPhotoURL() string {
	return s.menuPhoto
}

func (s *MemoryService) CreateOrder(_ context.Context, order NewOrder) (Order, error) {
	if len(order.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}
	payment := strings.ToLower(strings.TrimSpace(order.PaymentMethod))
	if payment != "" {
		if _, ok := acceptedPayments[payment]; !ok {
			return Order{}, ErrInvalidPayment
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.totalLocked(order.Items)
	if err != nil {
		return Order{}, err
	}

	s.nextID++
	now := time.Now().UTC()
	placed := &Order{
		ID:            s.nextID,
		Phone:         order.Phone,
		Items:         append([]OrderItem(nil), order.Items...),
		Address:       strings.TrimSpace(order.Address),
		PaymentMethod: payment,
		Notes:         strings.TrimSpace(order.Notes),
		Status:        StatusPending,
		Total:         total,
		ETAMinutes:    45,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.orders[placed.ID] = placed

	return *placed, nil
}

func (s *MemoryService) OrderStatus(_ context.Context, phone string, orderID int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if orderID != 0 {
		order, ok := s.orders[orderID]
		if !ok || order.Phone != phone {
			return Order{}, ErrNotFound
		}
		return *order, nil
	}

	latest := s.latestLocked(phone)
	if latest == nil {
		return Order{}, ErrNotFound
	}
	return *latest, nil
}

func (s *MemoryService) UpdateOrder(_ context.Context, phone string, orderID int64, items []OrderItem, address string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || order.Phone != phone {
		return Order{}, ErrNotFound
	}
	if order.Status != StatusPending {
		return Order{}, ErrOrderClosed
	}

	if len(items) > 0 {
		total, err := s.totalLocked(items)
		if err != nil {
			return Order{}, err
		}
		order.Items = append([]OrderItem(nil), items...)
		order.Total = total
	}
	if trimmed := strings.TrimSpace(address); trimmed != "" {
		order.Address = trimmed
	}
	order.UpdatedAt = time.Now().UTC()

	return *order, nil
}

func (s *MemoryService) CancelOrder(_ context.Context, phone string, orderID int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || order.Phone != phone {
		return Order{}, ErrNotFound
	}
	if order.Status == StatusDelivered || order.Status == StatusCancelled {
		return Order{}, ErrOrderClosed
	}

	order.Status = StatusCancelled
	order.UpdatedAt = time.Now().UTC()

	return *order, nil
}

func (s *MemoryService) totalLocked(items []OrderItem) (int64, error) {
	var total int64
	for _, item := range items {
		menuItem, ok := s.menuItemLocked(item.ProductID)
		if !ok {
			return 0, ErrUnknownProduct
		}
		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}
		total += menuItem.Price * int64(quantity)
	}

	return total, nil
}

func (s *MemoryService) menuItemLocked(id int64) (MenuItem, bool) {
	for _, item := range s.menu {
		if item.ID == id {
			return item, true
		}
	}

	return MenuItem{}, false
}

func (s *MemoryService) latestLocked(phone string) *Order {
	matches := make([]*Order, 0, 2)
	for _, order := range s.orders {
		if order.Phone == phone {
			matches = append(matches, order)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches[0]
}
