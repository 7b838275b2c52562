package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"roadwork/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB
	tx *sql.Tx
}

// Tx returns a Repo whose queries run inside tx.
func (r Repo) Tx(tx *sql.Tx) Repo {
	return Repo{DB: r.DB, tx: tx}
}

func (r Repo) q() Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Users

func (r Repo) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO users(id,name,org_unit,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=COALESCE(excluded.name,users.name), org_unit=COALESCE(excluded.org_unit,users.org_unit)`,
		u.ID, nullable(u.Name), nullable(u.OrgUnit), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.q().QueryRowContext(ctx, `SELECT id,COALESCE(name,''),COALESCE(org_unit,''),created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.OrgUnit, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// Activities

const activityColumns = `id,name,status,start_of_construction,end_of_construction,date_consult_end,date_report_end,date_info_end,is_private,is_editing_allowed,created_at,updated_at`

func scanActivity(row rowScanner) (domain.Activity, error) {
	var (
		a                                 domain.Activity
		start, end, consult, report, info sql.NullString
		private, editing                  int
	)
	err := row.Scan(&a.ID, &a.Name, &a.Status, &start, &end, &consult, &report, &info, &private, &editing, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.StartOfConstruction = ptr(start)
	a.EndOfConstruction = ptr(end)
	a.DateConsultEnd = ptr(consult)
	a.DateReportEnd = ptr(report)
	a.DateInfoEnd = ptr(info)
	a.IsPrivate = private == 1
	a.IsEditingAllowed = editing == 1
	return a, nil
}

func (r Repo) InsertActivity(ctx context.Context, a domain.Activity) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO activities(`+activityColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Status, nullablePtr(a.StartOfConstruction), nullablePtr(a.EndOfConstruction),
		nullablePtr(a.DateConsultEnd), nullablePtr(a.DateReportEnd), nullablePtr(a.DateInfoEnd),
		boolInt(a.IsPrivate), boolInt(a.IsEditingAllowed), a.CreatedAt, a.UpdatedAt)
	return err
}

// GetActivity loads an activity with the ids of its assigned needs.
func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	a, err := scanActivity(r.q().QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id))
	if err != nil {
		return a, err
	}
	a.NeedIDs, err = r.assignedNeedIDs(ctx, id)
	return a, err
}

func (r Repo) assignedNeedIDs(ctx context.Context, activityID string) ([]string, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT id FROM needs WHERE activity_id=? AND relation_type=? ORDER BY is_primary DESC, created_at, id`,
		activityID, string(domain.RelationAssigned))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) ListActivities(ctx context.Context, status string) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateActivity writes every mutable column except status.
func (r Repo) UpdateActivity(ctx context.Context, a domain.Activity) error {
	return affected(r.q().ExecContext(ctx, `UPDATE activities SET name=?,start_of_construction=?,end_of_construction=?,date_consult_end=?,date_report_end=?,date_info_end=?,is_private=?,is_editing_allowed=?,updated_at=? WHERE id=?`,
		a.Name, nullablePtr(a.StartOfConstruction), nullablePtr(a.EndOfConstruction),
		nullablePtr(a.DateConsultEnd), nullablePtr(a.DateReportEnd), nullablePtr(a.DateInfoEnd),
		boolInt(a.IsPrivate), boolInt(a.IsEditingAllowed), a.UpdatedAt, a.ID))
}

func (r Repo) UpdateActivityStatus(ctx context.Context, id, status, updatedAt string) error {
	return affected(r.q().ExecContext(ctx, `UPDATE activities SET status=?,updated_at=? WHERE id=?`, status, updatedAt, id))
}

// Needs

const needColumns = `id,name,COALESCE(orderer_id,''),COALESCE(org_unit,''),finish_early_to,finish_optimum_to,finish_late_to,is_primary,relation_type,COALESCE(activity_id,''),created_at,updated_at`

func scanNeed(row rowScanner) (domain.Need, error) {
	var (
		n       domain.Need
		primary int
		rel     string
	)
	err := row.Scan(&n.ID, &n.Name, &n.OrdererID, &n.OrgUnit, &n.FinishEarlyTo, &n.FinishOptimumTo, &n.FinishLateTo,
		&primary, &rel, &n.ActivityID, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return n, ErrNotFound
	}
	n.IsPrimary = primary == 1
	n.ActivityRelationType = domain.RelationType(rel)
	return n, err
}

func (r Repo) InsertNeed(ctx context.Context, n domain.Need) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO needs(id,name,orderer_id,org_unit,finish_early_to,finish_optimum_to,finish_late_to,is_primary,relation_type,activity_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.Name, nullable(n.OrdererID), nullable(n.OrgUnit), n.FinishEarlyTo, n.FinishOptimumTo, n.FinishLateTo,
		boolInt(n.IsPrimary), string(n.ActivityRelationType), nullable(n.ActivityID), n.CreatedAt, n.UpdatedAt)
	return err
}

func (r Repo) GetNeed(ctx context.Context, id string) (domain.Need, error) {
	return scanNeed(r.q().QueryRowContext(ctx, `SELECT `+needColumns+` FROM needs WHERE id=?`, id))
}

type NeedFilter struct {
	Relation   string
	ActivityID string
	OrgUnit    string
}

// ListNeeds returns needs matching f, primary needs first.
func (r Repo) ListNeeds(ctx context.Context, f NeedFilter) ([]domain.Need, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Relation != "" {
		clauses = append(clauses, "relation_type=?")
		args = append(args, f.Relation)
	}
	if f.ActivityID != "" {
		clauses = append(clauses, "activity_id=?")
		args = append(args, f.ActivityID)
	}
	if f.OrgUnit != "" {
		clauses = append(clauses, "org_unit=?")
		args = append(args, f.OrgUnit)
	}
	query := fmt.Sprintf(`SELECT %s FROM needs WHERE %s ORDER BY is_primary DESC, created_at, id`, needColumns, strings.Join(clauses, " AND "))
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Need{}
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) UpdateNeed(ctx context.Context, n domain.Need) error {
	return affected(r.q().ExecContext(ctx, `UPDATE needs SET name=?,orderer_id=?,org_unit=?,finish_early_to=?,finish_optimum_to=?,finish_late_to=?,is_primary=?,relation_type=?,activity_id=?,updated_at=? WHERE id=?`,
		n.Name, nullable(n.OrdererID), nullable(n.OrgUnit), n.FinishEarlyTo, n.FinishOptimumTo, n.FinishLateTo,
		boolInt(n.IsPrimary), string(n.ActivityRelationType), nullable(n.ActivityID), n.UpdatedAt, n.ID))
}

// PrimaryNeedID returns the primary need of an activity, or "" if none.
func (r Repo) PrimaryNeedID(ctx context.Context, activityID string) (string, error) {
	var id string
	err := r.q().QueryRowContext(ctx, `SELECT id FROM needs WHERE activity_id=? AND is_primary=1 LIMIT 1`, activityID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// Consultation inputs

const inputColumns = `id,activity_id,input_by,feedback_phase,COALESCE(orderer_feedback,''),COALESCE(manager_feedback,''),decline,valuation,last_edit`

func scanInput(row rowScanner) (domain.ConsultationInput, error) {
	var (
		in      domain.ConsultationInput
		decline int
	)
	err := row.Scan(&in.ID, &in.ActivityID, &in.InputBy, &in.FeedbackPhase, &in.OrdererFeedback, &in.ManagerFeedback, &decline, &in.Valuation, &in.LastEdit)
	in.Decline = decline == 1
	return in, err
}

func (r Repo) ListConsultationInputs(ctx context.Context, activityID string) ([]domain.ConsultationInput, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+inputColumns+` FROM consultation_inputs WHERE activity_id=? ORDER BY last_edit DESC, id`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ConsultationInput{}
	for rows.Next() {
		in, err := scanInput(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) InsertConsultationInput(ctx context.Context, in domain.ConsultationInput) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO consultation_inputs(id,activity_id,input_by,feedback_phase,orderer_feedback,manager_feedback,decline,valuation,last_edit) VALUES (?,?,?,?,?,?,?,?,?)`,
		in.ID, in.ActivityID, in.InputBy, in.FeedbackPhase, nullable(in.OrdererFeedback), nullable(in.ManagerFeedback), boolInt(in.Decline), in.Valuation, in.LastEdit)
	return err
}

func (r Repo) UpdateConsultationInput(ctx context.Context, in domain.ConsultationInput) error {
	return affected(r.q().ExecContext(ctx, `UPDATE consultation_inputs SET orderer_feedback=?,manager_feedback=?,decline=?,valuation=?,last_edit=? WHERE id=?`,
		nullable(in.OrdererFeedback), nullable(in.ManagerFeedback), boolInt(in.Decline), in.Valuation, in.LastEdit, in.ID))
}
