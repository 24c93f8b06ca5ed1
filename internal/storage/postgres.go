package storage

import (
	"database/sql"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/storage"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore implements storage.Store on PostgreSQL. A store returned by Begin wraps a
// transaction; every other store wraps the connection pool.
type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, errors.New("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return errors.New("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return errors.New("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// checkVersioned turns an UPDATE ... WHERE version = $n that touched nothing into a
// conflict, or into not-found when the row does not exist at all.
func (s *PostgresStore) checkVersioned(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.Get(&exists, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id); err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(models.ErrNotFound, "%s %s", table, id)
	}
	return errors.Wrapf(models.ErrConflictingUpdate, "%s %s was modified concurrently", table, id)
}

func notFound(err error, what, id string) error {
	if err == sql.ErrNoRows {
		return errors.Wrapf(models.ErrNotFound, "%s %s", what, id)
	}
	return err
}

func (s *PostgresStore) SaveOrder(o models.Order) error {
	_, err := s.db.Exec(`INSERT INTO orders (id, workspace, reference, method, quantity, target_date, status, schedule_at_risk, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.Workspace, o.Reference, o.Method, o.Quantity, o.TargetDate, o.Status, o.ScheduleAtRisk, o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "save order %s", o.ID)
	}
	return nil
}

func (s *PostgresStore) GetOrder(id string) (models.Order, error) {
	var o models.Order
	err := s.db.Get(&o, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return models.Order{}, notFound(err, "order", id)
	}
	return o, nil
}

func (s *PostgresStore) ListOrders(workspace string, status models.OrderStatus) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.Select(&orders, `SELECT * FROM orders
		WHERE ($1 = '' OR workspace = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at, id`, workspace, string(status))
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *PostgresStore) UpdateOrder(o models.Order) error {
	res, err := s.db.Exec(`UPDATE orders SET status = $1, schedule_at_risk = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		o.Status, o.ScheduleAtRisk, o.UpdatedAt, o.ID, o.Version)
	if err != nil {
		return errors.Wrapf(err, "update order %s", o.ID)
	}
	return s.checkVersioned(res, "orders", o.ID)
}

// SaveSteps inserts the steps and then their dependency edges, so edges may point at any
// step of the batch.
func (s *PostgresStore) SaveSteps(steps []models.Step) error {
	for _, st := range steps {
		_, err := s.db.Exec(`INSERT INTO steps (id, order_id, sequence, name, workcenter, join_type, duration, due_by, status, block_reason, outsourceable, started_at, finished_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			st.ID, st.OrderID, st.Sequence, st.Name, st.Workcenter, st.Join, int64(st.Duration), st.DueBy, st.Status, st.BlockReason, st.Outsourceable, st.StartedAt, st.FinishedAt, st.Version)
		if err != nil {
			return errors.Wrapf(err, "save step %s", st.ID)
		}
	}
	for _, st := range steps {
		for _, dep := range st.Predecessors {
			_, err := s.db.Exec("INSERT INTO step_dependencies (step_id, depends_on, order_id) VALUES ($1, $2, $3)", st.ID, dep, st.OrderID)
			if err != nil {
				return errors.Wrapf(err, "save dependency %s -> %s", st.ID, dep)
			}
		}
	}
	return nil
}

func (s *PostgresStore) GetStep(id string) (models.Step, error) {
	var st models.Step
	if err := s.db.Get(&st, "SELECT * FROM steps WHERE id = $1", id); err != nil {
		return models.Step{}, notFound(err, "step", id)
	}
	preds := []string{}
	if err := s.db.Select(&preds, "SELECT depends_on FROM step_dependencies WHERE step_id = $1 ORDER BY depends_on", id); err != nil {
		return models.Step{}, errors.Wrapf(err, "get dependencies of step %s", id)
	}
	st.Predecessors = preds
	return st, nil
}

func (s *PostgresStore) ListSteps(orderID string) ([]models.Step, error) {
	steps := []models.Step{}
	if err := s.db.Select(&steps, "SELECT * FROM steps WHERE order_id = $1 ORDER BY sequence", orderID); err != nil {
		return nil, err
	}
	var deps []models.StepDependency
	if err := s.db.Select(&deps, "SELECT step_id, depends_on, order_id FROM step_dependencies WHERE order_id = $1", orderID); err != nil {
		return nil, errors.Wrapf(err, "list dependencies of order %s", orderID)
	}
	byStep := make(map[string][]string)
	for _, d := range deps {
		byStep[d.StepID] = append(byStep[d.StepID], d.DependsOn)
	}
	for i := range steps {
		steps[i].Predecessors = byStep[steps[i].ID]
		if steps[i].Predecessors == nil {
			steps[i].Predecessors = []string{}
		}
	}
	return steps, nil
}

func (s *PostgresStore) UpdateStep(st models.Step) error {
	res, err := s.db.Exec(`UPDATE steps SET status = $1, block_reason = $2, started_at = $3, finished_at = $4, version = version + 1
		WHERE id = $5 AND version = $6`,
		st.Status, st.BlockReason, st.StartedAt, st.FinishedAt, st.ID, st.Version)
	if err != nil {
		return errors.Wrapf(err, "update step %s", st.ID)
	}
	return s.checkVersioned(res, "steps", st.ID)
}

func (s *PostgresStore) SaveStepLog(l models.StepLog) error {
	_, err := s.db.Exec(`INSERT INTO step_logs (step_id, order_id, from_status, to_status, actor, message, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.StepID, l.OrderID, l.From, l.To, l.Actor, l.Message, l.LoggedAt)
	if err != nil {
		return errors.Wrapf(err, "save log for step %s", l.StepID)
	}
	return nil
}

func (s *PostgresStore) ListStepLogs(orderID string) ([]models.StepLog, error) {
	logs := []models.StepLog{}
	if err := s.db.Select(&logs, "SELECT * FROM step_logs WHERE order_id = $1 ORDER BY id", orderID); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *PostgresStore) SaveWorkUnit(u models.WorkUnit) error {
	_, err := s.db.Exec(`INSERT INTO work_units (id, order_id, step_id, scan_code, quantity, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.OrderID, u.StepID, u.ScanCode, u.Quantity, u.Status, u.Version, u.CreatedAt, u.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "work_units_scan_code_key" {
		return errors.Wrapf(models.ErrDuplicateScanCode, "scan code %s", u.ScanCode)
	}
	if err != nil {
		return errors.Wrapf(err, "save work unit %s", u.ScanCode)
	}
	return nil
}

func (s *PostgresStore) transitions(query string, arg string) (map[string][]models.Transition, error) {
	var rows []models.Transition
	if err := s.db.Select(&rows, query, arg); err != nil {
		return nil, err
	}
	byUnit := make(map[string][]models.Transition)
	for _, t := range rows {
		byUnit[t.UnitID] = append(byUnit[t.UnitID], t)
	}
	return byUnit, nil
}

func (s *PostgresStore) GetWorkUnitByScanCode(scanCode string) (models.WorkUnit, error) {
	var u models.WorkUnit
	if err := s.db.Get(&u, "SELECT * FROM work_units WHERE scan_code = $1", scanCode); err != nil {
		return models.WorkUnit{}, notFound(err, "work unit", scanCode)
	}
	history, err := s.transitions(`SELECT unit_id, at, actor, from_status, to_status, reason
		FROM work_unit_transitions WHERE unit_id = $1 ORDER BY id`, u.ID)
	if err != nil {
		return models.WorkUnit{}, errors.Wrapf(err, "get history of %s", scanCode)
	}
	u.History = history[u.ID]
	if u.History == nil {
		u.History = []models.Transition{}
	}
	return u, nil
}

func (s *PostgresStore) ListWorkUnits(orderID string) ([]models.WorkUnit, error) {
	units := []models.WorkUnit{}
	if err := s.db.Select(&units, "SELECT * FROM work_units WHERE order_id = $1 ORDER BY created_at, id", orderID); err != nil {
		return nil, err
	}
	history, err := s.transitions(`SELECT t.unit_id, t.at, t.actor, t.from_status, t.to_status, t.reason
		FROM work_unit_transitions t JOIN work_units u ON u.id = t.unit_id
		WHERE u.order_id = $1 ORDER BY t.id`, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list history of order %s", orderID)
	}
	for i := range units {
		units[i].History = history[units[i].ID]
		if units[i].History == nil {
			units[i].History = []models.Transition{}
		}
	}
	return units, nil
}

// UpdateWorkUnit changes status and step. Quantity is immutable and never written.
func (s *PostgresStore) UpdateWorkUnit(u models.WorkUnit) error {
	res, err := s.db.Exec(`UPDATE work_units SET status = $1, step_id = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		u.Status, u.StepID, u.UpdatedAt, u.ID, u.Version)
	if err != nil {
		return errors.Wrapf(err, "update work unit %s", u.ScanCode)
	}
	return s.checkVersioned(res, "work_units", u.ID)
}

func (s *PostgresStore) SaveTransition(t models.Transition) error {
	_, err := s.db.Exec(`INSERT INTO work_unit_transitions (unit_id, at, actor, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.UnitID, t.At, t.Actor, t.From, t.To, t.Reason)
	if err != nil {
		return errors.Wrapf(err, "save transition of %s", t.UnitID)
	}
	return nil
}
