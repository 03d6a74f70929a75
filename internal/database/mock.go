package database

import (
	"github.com/devroom-io/devroom/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetAccountById(id string) (Account, error) {
	args := m.Called(id)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) ListAccounts() ([]Account, error) {
	args := m.Called()
	return args.Get(0).([]Account), args.Error(1)
}
func (m *MockRepository) CreateProject(params CreateProjectParams) (Project, error) {
	args := m.Called(params)
	return args.Get(0).(Project), args.Error(1)
}
func (m *MockRepository) GetProjectById(id string) (Project, error) {
	args := m.Called(id)
	return args.Get(0).(Project), args.Error(1)
}
func (m *MockRepository) ListProjectsForAccount(accountId string) ([]Project, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Project), args.Error(1)
}
func (m *MockRepository) AddProjectUser(projectId, accountId string) error {
	args := m.Called(projectId, accountId)
	return args.Error(0)
}
func (m *MockRepository) IsProjectUser(projectId, accountId string) bool {
	args := m.Called(projectId, accountId)
	return args.Bool(0)
}
func (m *MockRepository) UpdateFileTree(projectId string, tree types.FileTree) error {
	args := m.Called(projectId, tree)
	return args.Error(0)
}
