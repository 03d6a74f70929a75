package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devroom-io/devroom/internal/types"
)

func (db *PgRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (id, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, email, created_at",
		NewId(),
		params.Email,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Email,
		&a.CreatedAt,
	)

	return a, err
}

func (db *PgRepository) GetAccountById(id string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, password_hash, created_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Email,
		&a.PasswordHash,
		&a.CreatedAt,
	)

	return a, err
}

func (db *PgRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, password_hash, created_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Email,
		&a.PasswordHash,
		&a.CreatedAt,
	)

	return a, err
}

func (db *PgRepository) ListAccounts() ([]Account, error) {
	rows, err := db.conn.Query("SELECT id, email, created_at FROM accounts ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Id, &a.Email, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

func (db *PgRepository) CreateProject(params CreateProjectParams) (Project, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Project{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"INSERT INTO projects (id, name, owner_id, file_tree, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, name, owner_id, created_at",
		NewId(),
		params.Name,
		params.OwnerId,
		[]byte("{}"),
		time.Now().UTC(),
	)

	var p Project
	if err := row.Scan(&p.Id, &p.Name, &p.OwnerId, &p.CreatedAt); err != nil {
		return Project{}, err
	}

	// the owner is always a collaborator
	if _, err := tx.Exec(
		"INSERT INTO project_users (project_id, account_id, created_at) VALUES ($1, $2, $3)",
		p.Id, params.OwnerId, time.Now().UTC(),
	); err != nil {
		return Project{}, err
	}

	if err := tx.Commit(); err != nil {
		return Project{}, err
	}

	p.FileTree = types.FileTree{}
	return p, nil
}

func (db *PgRepository) GetProjectById(id string) (Project, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, owner_id, file_tree, created_at, updated_at FROM projects "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var (
		p         Project
		rawTree   []byte
		updatedAt sql.NullTime
	)
	if err := row.Scan(&p.Id, &p.Name, &p.OwnerId, &rawTree, &p.CreatedAt, &updatedAt); err != nil {
		return Project{}, err
	}
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}

	if len(rawTree) > 0 {
		if err := json.Unmarshal(rawTree, &p.FileTree); err != nil {
			return Project{}, fmt.Errorf("decode file tree: %w", err)
		}
	}

	users, err := db.getProjectUsers(p.Id)
	if err != nil {
		return Project{}, err
	}
	p.Users = users

	return p, nil
}

func (db *PgRepository) getProjectUsers(projectId string) ([]Account, error) {
	rows, err := db.conn.Query(
		"SELECT a.id, a.email, a.created_at FROM accounts a "+
			"JOIN project_users pu ON pu.account_id = a.id "+
			"WHERE pu.project_id = $1 ORDER BY pu.created_at",
		projectId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Id, &a.Email, &a.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, a)
	}

	return users, rows.Err()
}

func (db *PgRepository) ListProjectsForAccount(accountId string) ([]Project, error) {
	rows, err := db.conn.Query(
		"SELECT p.id, p.name, p.owner_id, p.created_at FROM projects p "+
			"JOIN project_users pu ON pu.project_id = p.id "+
			"WHERE pu.account_id = $1 ORDER BY p.created_at",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Id, &p.Name, &p.OwnerId, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

func (db *PgRepository) AddProjectUser(projectId, accountId string) error {
	_, err := db.conn.Exec(
		"INSERT INTO project_users (project_id, account_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (project_id, account_id) DO NOTHING",
		projectId, accountId, time.Now().UTC(),
	)
	return err
}

func (db *PgRepository) IsProjectUser(projectId, accountId string) bool {
	row := db.conn.QueryRow(
		"SELECT 1 FROM project_users WHERE project_id = $1 AND account_id = $2 LIMIT 1",
		projectId, accountId,
	)

	var one int
	return row.Scan(&one) == nil
}

func (db *PgRepository) UpdateFileTree(projectId string, tree types.FileTree) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode file tree: %w", err)
	}

	res, err := db.conn.Exec(
		"UPDATE projects SET file_tree = $2, updated_at = $3 WHERE id = $1",
		projectId, raw, time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}
