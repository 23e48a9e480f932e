package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrConflict is returned when an insert collides with a uniqueness
// constraint (duplicate operator profile, taken username).
var ErrConflict = errors.New("conflict")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) InsertUser(ctx context.Context, user User) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user rows: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	tests, err := s.userTests(ctx, user.ID)
	if err != nil {
		return User{}, err
	}
	user.AuthorizedTests = tests
	return user, nil
}

// GetUserByLogin resolves a sign-in identifier against username or email.
func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, created_at
		FROM users WHERE username=$1 OR email=$1
	`, login).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	tests, err := s.userTests(ctx, user.ID)
	if err != nil {
		return User{}, err
	}
	user.AuthorizedTests = tests
	return user, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddUserTest(ctx context.Context, userID, testID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_tests (user_id, test_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, test_id) DO NOTHING
	`, userID, testID)
	if err != nil {
		return fmt.Errorf("add user test: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveUserTest(ctx context.Context, userID, testID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_tests WHERE user_id=$1 AND test_id=$2`, userID, testID)
	if err != nil {
		return fmt.Errorf("remove user test: %w", err)
	}
	return nil
}

func (s *PostgresStore) userTests(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT test_id FROM user_tests WHERE user_id=$1 ORDER BY test_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user tests: %w", err)
	}
	defer rows.Close()

	tests := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user test: %w", err)
		}
		tests = append(tests, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user tests: %w", err)
	}
	return tests, nil
}

// Campaigns and persons. These exist for the surrounding CRUD layer and the
// roster importer; the core only reads them.

func (s *PostgresStore) InsertCampaign(ctx context.Context, campaign Campaign) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, campaign.ID, campaign.Name, campaign.Status)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPerson(ctx context.Context, person Person) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, roll_number, email, eligible)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, person.ID, person.Name, person.RollNumber, person.Email, person.Eligible)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, personID string) (Person, error) {
	var person Person
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, roll_number, email, eligible FROM persons WHERE id=$1
	`, personID).Scan(&person.ID, &person.Name, &person.RollNumber, &person.Email, &person.Eligible)
	if err != nil {
		return Person{}, err
	}
	return person, nil
}

// Tests

func (s *PostgresStore) InsertTest(ctx context.Context, test Test) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tests (id, campaign_id, name, cycle_name, test_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, test.ID, test.CampaignID, test.Name, test.CycleName, test.Date, test.Status)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTest(ctx context.Context, testID string) (Test, error) {
	var test Test
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, name, cycle_name, test_date, status
		FROM tests WHERE id=$1
	`, testID).Scan(&test.ID, &test.CampaignID, &test.Name, &test.CycleName, &test.Date, &test.Status)
	if err != nil {
		return Test{}, err
	}
	return test, nil
}

// MarkTestCompleted flips a test to completed. The conditional write makes a
// second completion a detectable no-op rather than an error.
func (s *PostgresStore) MarkTestCompleted(ctx context.Context, testID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tests SET status='completed' WHERE id=$1 AND status <> 'completed'
	`, testID)
	if err != nil {
		return false, fmt.Errorf("complete test: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete test rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) MarkTestReopened(ctx context.Context, testID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tests SET status='upcoming' WHERE id=$1 AND status='completed'
	`, testID)
	if err != nil {
		return false, fmt.Errorf("reopen test: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reopen test rows: %w", err)
	}
	return affected > 0, nil
}

// Operators

func (s *PostgresStore) InsertOperator(ctx context.Context, op Operator) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (id, campaign_id, person_id, user_id, display_name, email, roll_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (campaign_id, person_id) DO NOTHING
	`, op.ID, op.CampaignID, op.PersonID, op.UserID, op.DisplayName, op.Email, op.RollNumber)
	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert operator rows: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) GetOperator(ctx context.Context, operatorID string) (Operator, error) {
	var op Operator
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, person_id, user_id, display_name, email, roll_number, created_at
		FROM operators WHERE id=$1
	`, operatorID).Scan(&op.ID, &op.CampaignID, &op.PersonID, &op.UserID, &op.DisplayName, &op.Email, &op.RollNumber, &op.CreatedAt)
	if err != nil {
		return Operator{}, err
	}
	tests, err := s.operatorTests(ctx, op.ID)
	if err != nil {
		return Operator{}, err
	}
	op.AuthorizedTests = tests
	return op, nil
}

func (s *PostgresStore) DeleteOperator(ctx context.Context, operatorID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM operators WHERE id=$1`, operatorID); err != nil {
		return fmt.Errorf("delete operator: %w", err)
	}
	return nil
}

func (s *PostgresStore) LinkOperatorUser(ctx context.Context, operatorID, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operators SET user_id=$2 WHERE id=$1`, operatorID, userID)
	if err != nil {
		return fmt.Errorf("link operator user: %w", err)
	}
	return nil
}

// ClearUserLinks removes the weak back-reference from every profile that
// points at the given user.
func (s *PostgresStore) ClearUserLinks(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operators SET user_id=NULL WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("clear user links: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddOperatorTest(ctx context.Context, operatorID, testID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operator_tests (operator_id, test_id)
		VALUES ($1, $2)
		ON CONFLICT (operator_id, test_id) DO NOTHING
	`, operatorID, testID)
	if err != nil {
		return fmt.Errorf("add operator test: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveOperatorTest(ctx context.Context, operatorID, testID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM operator_tests WHERE operator_id=$1 AND test_id=$2`, operatorID, testID)
	if err != nil {
		return fmt.Errorf("remove operator test: %w", err)
	}
	return nil
}

func (s *PostgresStore) operatorTests(ctx context.Context, operatorID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT test_id FROM operator_tests WHERE operator_id=$1 ORDER BY test_id`, operatorID)
	if err != nil {
		return nil, fmt.Errorf("list operator tests: %w", err)
	}
	defer rows.Close()

	tests := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan operator test: %w", err)
		}
		tests = append(tests, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operator tests: %w", err)
	}
	return tests, nil
}

// UserAuthorizationCount recomputes how many authorizations remain across
// every profile still linked to the user. The coordinator calls this before
// deciding a hard delete; the user_tests cache is never trusted for it.
func (s *PostgresStore) UserAuthorizationCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM operator_tests ot
		JOIN operators o ON o.id = ot.operator_id
		WHERE o.user_id = $1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count user authorizations: %w", err)
	}
	return count, nil
}

// Roster

func (s *PostgresStore) AddRosterEntry(ctx context.Context, testID, operatorID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_roster (test_id, operator_id)
		VALUES ($1, $2)
		ON CONFLICT (test_id, operator_id) DO NOTHING
	`, testID, operatorID)
	if err != nil {
		return fmt.Errorf("add roster entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveRosterEntry(ctx context.Context, testID, operatorID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM test_roster WHERE test_id=$1 AND operator_id=$2`, testID, operatorID)
	if err != nil {
		return fmt.Errorf("remove roster entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearRoster(ctx context.Context, testID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM test_roster WHERE test_id=$1`, testID); err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRoster(ctx context.Context, testID string) ([]Operator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.campaign_id, o.person_id, o.user_id, o.display_name, o.email, o.roll_number, o.created_at
		FROM test_roster tr
		JOIN operators o ON o.id = tr.operator_id
		WHERE tr.test_id = $1
		ORDER BY o.display_name
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()

	items := make([]Operator, 0)
	for rows.Next() {
		var op Operator
		if err := rows.Scan(&op.ID, &op.CampaignID, &op.PersonID, &op.UserID, &op.DisplayName, &op.Email, &op.RollNumber, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		items = append(items, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return items, nil
}

// Applicants

func (s *PostgresStore) InsertApplicant(ctx context.Context, applicant Applicant) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO applicants (id, test_id, person_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (test_id, person_id) DO NOTHING
	`, applicant.ID, applicant.TestID, applicant.PersonID)
	if err != nil {
		return false, fmt.Errorf("insert applicant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert applicant rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListApplicants(ctx context.Context, testID string) ([]Applicant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.test_id, a.person_id, p.name, p.roll_number, p.email, a.attended, a.venue, a.seat_info
		FROM applicants a
		JOIN persons p ON p.id = a.person_id
		WHERE a.test_id = $1
		ORDER BY p.roll_number
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("list applicants: %w", err)
	}
	defer rows.Close()

	items := make([]Applicant, 0)
	for rows.Next() {
		var a Applicant
		if err := rows.Scan(&a.ID, &a.TestID, &a.PersonID, &a.Name, &a.RollNumber, &a.Email, &a.Attended, &a.Venue, &a.SeatInfo); err != nil {
			return nil, fmt.Errorf("scan applicant: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applicants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) FindApplicant(ctx context.Context, testID, rollNumber string) (Applicant, error) {
	var a Applicant
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.test_id, a.person_id, p.name, p.roll_number, p.email, a.attended, a.venue, a.seat_info
		FROM applicants a
		JOIN persons p ON p.id = a.person_id
		WHERE a.test_id = $1 AND p.roll_number = $2
	`, testID, rollNumber).Scan(&a.ID, &a.TestID, &a.PersonID, &a.Name, &a.RollNumber, &a.Email, &a.Attended, &a.Venue, &a.SeatInfo)
	if err != nil {
		return Applicant{}, err
	}
	return a, nil
}

// MarkApplicantPresent performs the attended false->true transition as a
// single conditional update. Under concurrent scans exactly one caller
// observes marked=true; the rest see the row already flipped.
func (s *PostgresStore) MarkApplicantPresent(ctx context.Context, testID, rollNumber string) (Applicant, bool, error) {
	var a Applicant
	err := s.db.QueryRowContext(ctx, `
		UPDATE applicants a
		SET attended = TRUE
		FROM persons p
		WHERE a.person_id = p.id
			AND a.test_id = $1
			AND p.roll_number = $2
			AND a.attended = FALSE
		RETURNING a.id, a.test_id, a.person_id, p.name, p.roll_number, p.email, a.attended, a.venue, a.seat_info
	`, testID, rollNumber).Scan(&a.ID, &a.TestID, &a.PersonID, &a.Name, &a.RollNumber, &a.Email, &a.Attended, &a.Venue, &a.SeatInfo)
	if errors.Is(err, sql.ErrNoRows) {
		return Applicant{}, false, nil
	}
	if err != nil {
		return Applicant{}, false, fmt.Errorf("mark applicant present: %w", err)
	}
	return a, true, nil
}

func (s *PostgresStore) SetApplicantVenue(ctx context.Context, applicantID, venue, seatInfo string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE applicants SET venue=$2, seat_info=$3 WHERE id=$1
	`, applicantID, venue, seatInfo)
	if err != nil {
		return fmt.Errorf("set applicant venue: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateApplicantVenue(ctx context.Context, testID, personID, venue string) (Applicant, error) {
	var a Applicant
	err := s.db.QueryRowContext(ctx, `
		UPDATE applicants a
		SET venue = $3
		FROM persons p
		WHERE a.person_id = p.id
			AND a.test_id = $1
			AND a.person_id = $2
		RETURNING a.id, a.test_id, a.person_id, p.name, p.roll_number, p.email, a.attended, a.venue, a.seat_info
	`, testID, personID, venue).Scan(&a.ID, &a.TestID, &a.PersonID, &a.Name, &a.RollNumber, &a.Email, &a.Attended, &a.Venue, &a.SeatInfo)
	if err != nil {
		return Applicant{}, err
	}
	return a, nil
}

func (s *PostgresStore) GetTestStats(ctx context.Context, testID string) (TestStats, error) {
	var stats TestStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE attended)
		FROM applicants WHERE test_id=$1
	`, testID).Scan(&stats.Registered, &stats.Present)
	if err != nil {
		return TestStats{}, fmt.Errorf("test stats: %w", err)
	}
	return stats, nil
}
