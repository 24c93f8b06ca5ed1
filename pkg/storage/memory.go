package storage

import (
	"sort"
	"sync"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/pkg/errors"
)

type memData struct {
	orders      map[string]models.Order
	steps       map[string]models.Step
	orderSteps  map[string][]string
	logs        []models.StepLog
	nextLogID   int64
	units       map[string]models.WorkUnit
	scanCodes   map[string]string
	orderUnits  map[string][]string
	transitions map[string][]models.Transition
}

func newMemData() *memData {
	return &memData{
		orders:      map[string]models.Order{},
		steps:       map[string]models.Step{},
		orderSteps:  map[string][]string{},
		units:       map[string]models.WorkUnit{},
		scanCodes:   map[string]string{},
		orderUnits:  map[string][]string{},
		transitions: map[string][]models.Transition{},
	}
}

// clone copies the maps; values are replaced, never mutated in place, so they are shared.
func (d *memData) clone() *memData {
	c := &memData{
		orders:      make(map[string]models.Order, len(d.orders)),
		steps:       make(map[string]models.Step, len(d.steps)),
		orderSteps:  make(map[string][]string, len(d.orderSteps)),
		logs:        append([]models.StepLog(nil), d.logs...),
		nextLogID:   d.nextLogID,
		units:       make(map[string]models.WorkUnit, len(d.units)),
		scanCodes:   make(map[string]string, len(d.scanCodes)),
		orderUnits:  make(map[string][]string, len(d.orderUnits)),
		transitions: make(map[string][]models.Transition, len(d.transitions)),
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.steps {
		c.steps[k] = v
	}
	for k, v := range d.orderSteps {
		c.orderSteps[k] = v
	}
	for k, v := range d.units {
		c.units[k] = v
	}
	for k, v := range d.scanCodes {
		c.scanCodes[k] = v
	}
	for k, v := range d.orderUnits {
		c.orderUnits[k] = v
	}
	for k, v := range d.transitions {
		c.transitions[k] = v
	}
	return c
}

type memOp func(*memData) error

type memTx struct {
	view   *memData
	ops    []memOp
	closed bool
}

// MemoryStore implements Store in memory. A transaction works on a snapshot and
// replays its writes against the latest committed state on Commit, so version
// checks catch writers that committed in between.
type MemoryStore struct {
	mu   *sync.RWMutex
	root **memData
	tx   *memTx
}

func NewMemoryStore() *MemoryStore {
	root := newMemData()
	return &MemoryStore{mu: &sync.RWMutex{}, root: &root}
}

func (m *MemoryStore) Begin() (Store, error) {
	if m.tx != nil {
		return nil, errors.New("nested transactions are not supported")
	}
	m.mu.RLock()
	view := (*m.root).clone()
	m.mu.RUnlock()
	return &MemoryStore{mu: m.mu, root: m.root, tx: &memTx{view: view}}, nil
}

func (m *MemoryStore) Commit() error {
	if m.tx == nil {
		return errors.New("cannot commit: not a transaction")
	}
	if m.tx.closed {
		return errors.New("transaction already closed")
	}
	m.tx.closed = true

	m.mu.Lock()
	defer m.mu.Unlock()
	next := (*m.root).clone()
	for _, op := range m.tx.ops {
		if err := op(next); err != nil {
			return err
		}
	}
	*m.root = next
	return nil
}

func (m *MemoryStore) Rollback() error {
	if m.tx == nil {
		return errors.New("cannot rollback: not a transaction")
	}
	if m.tx.closed {
		return errors.New("transaction already closed")
	}
	m.tx.closed = true
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) read(fn func(*memData)) {
	if m.tx != nil {
		fn(m.tx.view)
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(*m.root)
}

func (m *MemoryStore) write(op memOp) error {
	if m.tx != nil {
		if m.tx.closed {
			return errors.New("transaction already closed")
		}
		if err := op(m.tx.view); err != nil {
			return err
		}
		m.tx.ops = append(m.tx.ops, op)
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return op(*m.root)
}

func (m *MemoryStore) SaveOrder(o models.Order) error {
	return m.write(func(d *memData) error {
		if _, ok := d.orders[o.ID]; ok {
			return errors.Errorf("order %s already exists", o.ID)
		}
		d.orders[o.ID] = o
		return nil
	})
}

func (m *MemoryStore) GetOrder(id string) (o models.Order, err error) {
	m.read(func(d *memData) {
		var ok bool
		if o, ok = d.orders[id]; !ok {
			err = errors.Wrapf(models.ErrNotFound, "order %s", id)
		}
	})
	return o, err
}

func (m *MemoryStore) ListOrders(workspace string, status models.OrderStatus) ([]models.Order, error) {
	orders := []models.Order{}
	m.read(func(d *memData) {
		for _, o := range d.orders {
			if (workspace == "" || o.Workspace == workspace) && (status == "" || o.Status == status) {
				orders = append(orders, o)
			}
		}
	})
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

func (m *MemoryStore) UpdateOrder(o models.Order) error {
	return m.write(func(d *memData) error {
		current, ok := d.orders[o.ID]
		if !ok {
			return errors.Wrapf(models.ErrNotFound, "order %s", o.ID)
		}
		if current.Version != o.Version {
			return errors.Wrapf(models.ErrConflictingUpdate, "order %s is at version %d, not %d", o.ID, current.Version, o.Version)
		}
		next := o
		next.Version++
		d.orders[o.ID] = next
		return nil
	})
}

func (m *MemoryStore) SaveSteps(steps []models.Step) error {
	return m.write(func(d *memData) error {
		for _, s := range steps {
			if _, ok := d.steps[s.ID]; ok {
				return errors.Errorf("step %s already exists", s.ID)
			}
		}
		for _, s := range steps {
			d.steps[s.ID] = s
			d.orderSteps[s.OrderID] = append(append([]string(nil), d.orderSteps[s.OrderID]...), s.ID)
		}
		return nil
	})
}

func (m *MemoryStore) GetStep(id string) (s models.Step, err error) {
	m.read(func(d *memData) {
		var ok bool
		if s, ok = d.steps[id]; !ok {
			err = errors.Wrapf(models.ErrNotFound, "step %s", id)
		}
	})
	return s, err
}

func (m *MemoryStore) ListSteps(orderID string) ([]models.Step, error) {
	steps := []models.Step{}
	m.read(func(d *memData) {
		for _, id := range d.orderSteps[orderID] {
			steps = append(steps, d.steps[id])
		}
	})
	sort.Slice(steps, func(i, j int) bool { return steps[i].Sequence < steps[j].Sequence })
	return steps, nil
}

func (m *MemoryStore) UpdateStep(s models.Step) error {
	return m.write(func(d *memData) error {
		current, ok := d.steps[s.ID]
		if !ok {
			return errors.Wrapf(models.ErrNotFound, "step %s", s.ID)
		}
		if current.Version != s.Version {
			return errors.Wrapf(models.ErrConflictingUpdate, "step %s is at version %d, not %d", s.ID, current.Version, s.Version)
		}
		next := s
		next.Version++
		d.steps[s.ID] = next
		return nil
	})
}

func (m *MemoryStore) SaveStepLog(l models.StepLog) error {
	return m.write(func(d *memData) error {
		d.nextLogID++
		entry := l
		entry.ID = d.nextLogID
		d.logs = append(d.logs, entry)
		return nil
	})
}

func (m *MemoryStore) ListStepLogs(orderID string) ([]models.StepLog, error) {
	logs := []models.StepLog{}
	m.read(func(d *memData) {
		for _, l := range d.logs {
			if l.OrderID == orderID {
				logs = append(logs, l)
			}
		}
	})
	return logs, nil
}

func (m *MemoryStore) SaveWorkUnit(u models.WorkUnit) error {
	return m.write(func(d *memData) error {
		if _, ok := d.scanCodes[u.ScanCode]; ok {
			return errors.Wrapf(models.ErrDuplicateScanCode, "scan code %s", u.ScanCode)
		}
		if _, ok := d.units[u.ID]; ok {
			return errors.Errorf("work unit %s already exists", u.ID)
		}
		stored := u
		stored.History = nil
		d.units[u.ID] = stored
		d.scanCodes[u.ScanCode] = u.ID
		d.orderUnits[u.OrderID] = append(append([]string(nil), d.orderUnits[u.OrderID]...), u.ID)
		return nil
	})
}

func (m *MemoryStore) GetWorkUnitByScanCode(scanCode string) (u models.WorkUnit, err error) {
	m.read(func(d *memData) {
		id, ok := d.scanCodes[scanCode]
		if !ok {
			err = errors.Wrapf(models.ErrNotFound, "work unit %s", scanCode)
			return
		}
		u = d.units[id]
		u.History = append([]models.Transition(nil), d.transitions[id]...)
	})
	return u, err
}

func (m *MemoryStore) ListWorkUnits(orderID string) ([]models.WorkUnit, error) {
	units := []models.WorkUnit{}
	m.read(func(d *memData) {
		for _, id := range d.orderUnits[orderID] {
			u := d.units[id]
			u.History = append([]models.Transition(nil), d.transitions[id]...)
			units = append(units, u)
		}
	})
	return units, nil
}

func (m *MemoryStore) UpdateWorkUnit(u models.WorkUnit) error {
	return m.write(func(d *memData) error {
		current, ok := d.units[u.ID]
		if !ok {
			return errors.Wrapf(models.ErrNotFound, "work unit %s", u.ScanCode)
		}
		if current.Version != u.Version {
			return errors.Wrapf(models.ErrConflictingUpdate, "work unit %s is at version %d, not %d", u.ScanCode, current.Version, u.Version)
		}
		next := u
		next.Version++
		next.History = nil
		next.Quantity = current.Quantity
		d.units[u.ID] = next
		return nil
	})
}

func (m *MemoryStore) SaveTransition(t models.Transition) error {
	return m.write(func(d *memData) error {
		if _, ok := d.units[t.UnitID]; !ok {
			return errors.Wrapf(models.ErrNotFound, "work unit %s", t.UnitID)
		}
		d.transitions[t.UnitID] = append(append([]models.Transition(nil), d.transitions[t.UnitID]...), t)
		return nil
	})
}
