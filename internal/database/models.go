package database

import (
	"time"

	"github.com/devroom-io/devroom/internal/types"
)

type Account struct {
	Id           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Project struct {
	Id        string
	Name      string
	OwnerId   string
	FileTree  types.FileTree
	Users     []Account
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateAccountParams struct {
	Email        string
	PasswordHash string
}

type CreateProjectParams struct {
	Name    string `json:"name"`
	OwnerId string `json:"-"`
}
