package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process Store. A single mutex serialises every
// operation; a transaction holds it for its whole duration and restores a
// snapshot when fn fails.
type MemoryStore struct {
	mu   sync.Mutex
	data memoryData
}

type memoryData struct {
	workOrders map[primitive.ObjectID]*models.WorkOrder
	parts      map[primitive.ObjectID]*models.SparePart
	schedules  map[primitive.ObjectID]*models.PMSchedule
	equipment  map[string]models.Equipment
	users      map[string]models.User
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memoryData{
		workOrders: map[primitive.ObjectID]*models.WorkOrder{},
		parts:      map[primitive.ObjectID]*models.SparePart{},
		schedules:  map[primitive.ObjectID]*models.PMSchedule{},
		equipment:  map[string]models.Equipment{},
		users:      map[string]models.User{},
	}}
}

type memTxKey struct{}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*MemoryStore)
	return owner == s
}

// acquire locks the store unless ctx already belongs to one of its transactions.
func (s *MemoryStore) acquire(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTransaction holds the store lock while fn runs and restores the
// previous data when fn fails.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close(context.Context) error { return nil }

// WithoutTransactions wraps s so that RunInTransaction runs fn directly and
// keeps whatever fn wrote before failing, the way a MongoDB store behaves
// with transactions switched off.
func WithoutTransactions(s Store) Store { return directStore{s} }

type directStore struct{ Store }

func (d directStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (s *MemoryStore) WorkOrders() WorkOrderCollection { return memWorkOrders{s} }
func (s *MemoryStore) SpareParts() SparePartCollection { return memSpareParts{s} }
func (s *MemoryStore) Schedules() ScheduleCollection   { return memSchedules{s} }
func (s *MemoryStore) Equipment() EquipmentCollection  { return memEquipment{s} }
func (s *MemoryStore) Users() UserCollection           { return memUsers{s} }

func (d memoryData) clone() memoryData {
	c := memoryData{
		workOrders: make(map[primitive.ObjectID]*models.WorkOrder, len(d.workOrders)),
		parts:      make(map[primitive.ObjectID]*models.SparePart, len(d.parts)),
		schedules:  make(map[primitive.ObjectID]*models.PMSchedule, len(d.schedules)),
		equipment:  make(map[string]models.Equipment, len(d.equipment)),
		users:      make(map[string]models.User, len(d.users)),
	}
	for k, v := range d.workOrders {
		c.workOrders[k] = v.Clone()
	}
	for k, v := range d.parts {
		p := *v
		c.parts[k] = &p
	}
	for k, v := range d.schedules {
		c.schedules[k] = v.Clone()
	}
	for k, v := range d.equipment {
		c.equipment[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	return c
}

type memWorkOrders struct{ s *MemoryStore }

func (m memWorkOrders) InsertWorkOrder(ctx context.Context, wo *models.WorkOrder) error {
	defer m.s.acquire(ctx)()
	if wo.ID.IsZero() {
		wo.ID = primitive.NewObjectID()
	}
	if _, exists := m.s.data.workOrders[wo.ID]; exists {
		return fmt.Errorf("work order %s already exists", wo.ID.Hex())
	}
	normaliseWorkOrder(wo)
	m.s.data.workOrders[wo.ID] = wo.Clone()
	return nil
}

func (m memWorkOrders) get(id string) (*models.WorkOrder, error) {
	oid, err := objectID("work order", id)
	if err != nil {
		return nil, err
	}
	wo, ok := m.s.data.workOrders[oid]
	if !ok {
		return nil, apperrors.NotFound("work order", id)
	}
	return wo, nil
}

func (m memWorkOrders) FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	defer m.s.acquire(ctx)()
	wo, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return wo.Clone(), nil
}

func (m memWorkOrders) FindWorkOrders(ctx context.Context, f models.WorkOrderFilter) ([]models.WorkOrder, error) {
	defer m.s.acquire(ctx)()
	out := []models.WorkOrder{}
	for _, wo := range m.s.data.workOrders {
		if f.Matches(wo) {
			out = append(out, *wo.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out, nil
}

func (m memWorkOrders) ReplaceWorkOrder(ctx context.Context, wo *models.WorkOrder, expectedVersion int64) error {
	defer m.s.acquire(ctx)()
	current, err := m.get(wo.ID.Hex())
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("work order %s was modified concurrently: %w", wo.ID.Hex(), apperrors.ErrConflict)
	}
	normaliseWorkOrder(wo)
	wo.Version = expectedVersion + 1
	m.s.data.workOrders[wo.ID] = wo.Clone()
	return nil
}

func (m memWorkOrders) AppendPartUsage(ctx context.Context, id string, usage models.PartUsage, at time.Time) error {
	defer m.s.acquire(ctx)()
	wo, err := m.get(id)
	if err != nil {
		return err
	}
	if wo.Status.IsTerminal() {
		return apperrors.InvalidTransition(string(wo.Status), string(wo.Status), "work order is closed")
	}
	wo.PartsUsed = append(wo.PartsUsed, usage)
	wo.UpdatedAt = at
	wo.Version++
	return nil
}

func (m memWorkOrders) DeleteWorkOrder(ctx context.Context, id string) error {
	defer m.s.acquire(ctx)()
	wo, err := m.get(id)
	if err != nil {
		return err
	}
	delete(m.s.data.workOrders, wo.ID)
	return nil
}

type memSpareParts struct{ s *MemoryStore }

func (m memSpareParts) InsertSparePart(ctx context.Context, part *models.SparePart) error {
	defer m.s.acquire(ctx)()
	if part.ID.IsZero() {
		part.ID = primitive.NewObjectID()
	}
	if _, exists := m.s.data.parts[part.ID]; exists {
		return fmt.Errorf("spare part %s already exists", part.ID.Hex())
	}
	p := *part
	m.s.data.parts[part.ID] = &p
	return nil
}

func (m memSpareParts) get(id string) (*models.SparePart, error) {
	oid, err := objectID("spare part", id)
	if err != nil {
		return nil, err
	}
	p, ok := m.s.data.parts[oid]
	if !ok {
		return nil, apperrors.NotFound("spare part", id)
	}
	return p, nil
}

func (m memSpareParts) FindSparePartByID(ctx context.Context, id string) (*models.SparePart, error) {
	defer m.s.acquire(ctx)()
	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	out := *p
	return &out, nil
}

func (m memSpareParts) FindSpareParts(ctx context.Context, f models.SparePartFilter) ([]models.SparePart, error) {
	defer m.s.acquire(ctx)()
	out := []models.SparePart{}
	for _, p := range m.s.data.parts {
		if f.Matches(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (m memSpareParts) PatchSparePart(ctx context.Context, id string, patch models.SparePartPatch, at time.Time) (*models.SparePart, error) {
	defer m.s.acquire(ctx)()
	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	patch.Apply(p)
	p.LastUpdated = at
	out := *p
	return &out, nil
}

func (m memSpareParts) DeleteSparePart(ctx context.Context, id string) error {
	defer m.s.acquire(ctx)()
	p, err := m.get(id)
	if err != nil {
		return err
	}
	delete(m.s.data.parts, p.ID)
	return nil
}

func (m memSpareParts) DecrementStock(ctx context.Context, id string, qty int, at time.Time) (*models.SparePart, error) {
	defer m.s.acquire(ctx)()
	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if p.Quantity < qty {
		return nil, apperrors.InsufficientStock(id, qty, p.Quantity)
	}
	p.Quantity -= qty
	p.LastUpdated = at
	out := *p
	return &out, nil
}

func (m memSpareParts) IncrementStock(ctx context.Context, id string, qty int, at time.Time) (*models.SparePart, error) {
	defer m.s.acquire(ctx)()
	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	p.Quantity += qty
	p.LastUpdated = at
	out := *p
	return &out, nil
}

type memSchedules struct{ s *MemoryStore }

func (m memSchedules) InsertSchedule(ctx context.Context, sc *models.PMSchedule) error {
	defer m.s.acquire(ctx)()
	if sc.ID.IsZero() {
		sc.ID = primitive.NewObjectID()
	}
	if _, exists := m.s.data.schedules[sc.ID]; exists {
		return fmt.Errorf("pm schedule %s already exists", sc.ID.Hex())
	}
	m.s.data.schedules[sc.ID] = sc.Clone()
	return nil
}

func (m memSchedules) get(id string) (*models.PMSchedule, error) {
	oid, err := objectID("pm schedule", id)
	if err != nil {
		return nil, err
	}
	sc, ok := m.s.data.schedules[oid]
	if !ok {
		return nil, apperrors.NotFound("pm schedule", id)
	}
	return sc, nil
}

func (m memSchedules) FindScheduleByID(ctx context.Context, id string) (*models.PMSchedule, error) {
	defer m.s.acquire(ctx)()
	sc, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return sc.Clone(), nil
}

func (m memSchedules) FindSchedules(ctx context.Context, activeOnly bool) ([]models.PMSchedule, error) {
	defer m.s.acquire(ctx)()
	return m.collect(func(sc *models.PMSchedule) bool { return !activeOnly || sc.IsActive }), nil
}

func (m memSchedules) FindDueSchedules(ctx context.Context, now time.Time) ([]models.PMSchedule, error) {
	defer m.s.acquire(ctx)()
	return m.collect(func(sc *models.PMSchedule) bool { return sc.IsDue(now) }), nil
}

func (m memSchedules) collect(keep func(*models.PMSchedule) bool) []models.PMSchedule {
	out := []models.PMSchedule{}
	for _, sc := range m.s.data.schedules {
		if keep(sc) {
			out = append(out, *sc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextDueDate.Equal(out[j].NextDueDate) {
			return out[i].NextDueDate.Before(out[j].NextDueDate)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}

func (m memSchedules) PatchSchedule(ctx context.Context, id string, patch models.PMSchedulePatch, at time.Time) (*models.PMSchedule, error) {
	defer m.s.acquire(ctx)()
	sc, err := m.get(id)
	if err != nil {
		return nil, err
	}
	patch.Apply(sc)
	sc.UpdatedAt = at
	return sc.Clone(), nil
}

func (m memSchedules) DeleteSchedule(ctx context.Context, id string) error {
	defer m.s.acquire(ctx)()
	sc, err := m.get(id)
	if err != nil {
		return err
	}
	delete(m.s.data.schedules, sc.ID)
	return nil
}

func (m memSchedules) AdvanceSchedule(ctx context.Context, id string, expectedDue, nextDue, generatedAt time.Time) (bool, error) {
	defer m.s.acquire(ctx)()
	sc, err := m.get(id)
	if err != nil {
		return false, err
	}
	if !sc.IsActive || !sc.NextDueDate.Equal(expectedDue) {
		return false, nil
	}
	gen := generatedAt
	sc.NextDueDate = nextDue
	sc.LastGeneratedDate = &gen
	sc.UpdatedAt = generatedAt
	return true, nil
}

type memEquipment struct{ s *MemoryStore }

func (m memEquipment) InsertEquipment(ctx context.Context, e models.Equipment) error {
	defer m.s.acquire(ctx)()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.s.data.equipment[e.ID] = e
	return nil
}

func (m memEquipment) FindEquipmentByID(ctx context.Context, id string) (*models.Equipment, error) {
	defer m.s.acquire(ctx)()
	e, ok := m.s.data.equipment[id]
	if !ok {
		return nil, apperrors.NotFound("equipment", id)
	}
	return &e, nil
}

type memUsers struct{ s *MemoryStore }

func (m memUsers) InsertUser(ctx context.Context, u models.User) error {
	defer m.s.acquire(ctx)()
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.s.data.users[u.ID] = u
	return nil
}

func (m memUsers) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	defer m.s.acquire(ctx)()
	u, ok := m.s.data.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	return &u, nil
}
