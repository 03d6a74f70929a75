package database

import "github.com/devroom-io/devroom/internal/types"

type Repository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(id string) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	ListAccounts() ([]Account, error)
	CreateProject(params CreateProjectParams) (Project, error)
	GetProjectById(id string) (Project, error)
	ListProjectsForAccount(accountId string) ([]Project, error)
	AddProjectUser(projectId, accountId string) error
	IsProjectUser(projectId, accountId string) bool
	UpdateFileTree(projectId string, tree types.FileTree) error
}
