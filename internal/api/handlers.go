package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/devroom-io/devroom/internal/auth"
	"github.com/devroom-io/devroom/internal/database"
	"github.com/devroom-io/devroom/internal/server"
	"github.com/devroom-io/devroom/internal/types"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type AddUserRequest struct {
	ProjectId string   `json:"projectId"`
	Users     []string `json:"users"`
}

type UpdateFileTreeRequest struct {
	ProjectId string         `json:"projectId"`
	FileTree  types.FileTree `json:"fileTree"`
}

func (s *DevroomApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func accountToUser(a database.Account) types.User {
	return types.User{
		Id:        a.Id,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func projectToType(p database.Project) types.Project {
	proj := types.Project{
		Id:        p.Id,
		Name:      p.Name,
		OwnerId:   p.OwnerId,
		FileTree:  p.FileTree,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for _, a := range p.Users {
		proj.Users = append(proj.Users, accountToUser(a))
	}
	return proj
}

func (s *DevroomApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newAccount, err := s.db.CreateAccount(database.CreateAccountParams{
		Email:        req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.authn.CreateToken(newAccount)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createTokenCookie(token, auth.DefaultTokenTTL))
	s.writeJson(w, http.StatusCreated, LoginResponse{
		User:  accountToUser(newAccount),
		Token: token,
	})
}

func (s *DevroomApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountByEmail(req.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(account.PasswordHash, req.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.authn.CreateToken(account)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createTokenCookie(token, auth.DefaultTokenTTL))
	s.writeJson(w, http.StatusOK, LoginResponse{
		User:  accountToUser(account),
		Token: token,
	})
}

func (s *DevroomApp) session(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountById(identity.Id)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, accountToUser(account))
}

func (s *DevroomApp) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := rawTokenFrom(r.Context()); ok {
		if err := s.authn.RevokeToken(r.Context(), token); err != nil {
			s.log.Printf("revoke token: %v", err)
		}
	}

	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createTokenCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *DevroomApp) listUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.db.ListAccounts()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, accountToUser(a))
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *DevroomApp) createProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	project, err := s.db.CreateProject(database.CreateProjectParams{
		Name:    req.Name,
		OwnerId: identity.Id,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, projectToType(project))
}

func (s *DevroomApp) listProjects(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbProjects, err := s.db.ListProjectsForAccount(identity.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	projects := make([]types.Project, 0, len(dbProjects))
	for _, p := range dbProjects {
		projects = append(projects, projectToType(p))
	}

	s.writeJson(w, http.StatusOK, projects)
}

func (s *DevroomApp) getProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id := r.PathValue("id")
	if !auth.ValidRoomId(id) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	project, err := s.db.GetProjectById(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsProjectUser(project.Id, identity.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, projectToType(project))
}

func (s *DevroomApp) participants(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id := r.PathValue("id")
	if !auth.ValidRoomId(id) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsProjectUser(id, identity.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roster := s.cs.Roster(id)
	if roster == nil {
		roster = []types.Participant{}
	}

	s.writeJson(w, http.StatusOK, roster)
}

func (s *DevroomApp) addProjectUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Users) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsProjectUser(req.ProjectId, identity.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	for _, userId := range req.Users {
		if err := s.db.AddProjectUser(req.ProjectId, userId); err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	project, err := s.db.GetProjectById(req.ProjectId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, projectToType(project))
}

func (s *DevroomApp) updateFileTree(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateFileTreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsProjectUser(req.ProjectId, identity.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UpdateFileTree(req.ProjectId, req.FileTree); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveWs authenticates a connection attempt and hands the socket to the
// chat server. The credential rides in the Authorization header or a token
// query field; the target room is the projectId query parameter. A failed
// admission is rejected before the upgrade with a descriptive error.
func (s *DevroomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	projectId := r.URL.Query().Get("projectId")

	identity, project, err := s.authn.Admit(r.Context(), token, projectId)
	if err != nil {
		s.log.Printf("ws admission for room %q: %v", projectId, err)
		errResp := wsAdmissionError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:    identity.Id,
		Email: identity.Email,
	}, project.Id, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

func wsAdmissionError(err error) *ApiError {
	switch {
	case errors.Is(err, auth.ErrInvalidRoomId):
		return &ApiError{StatusCode: http.StatusBadRequest, Message: "invalid room id"}
	case errors.Is(err, auth.ErrRoomNotFound):
		return &ApiError{StatusCode: http.StatusNotFound, Message: "room not found"}
	case errors.Is(err, auth.ErrMissingCredential):
		return NewAuthFailedError("missing credential")
	case errors.Is(err, auth.ErrInvalidCredential):
		return NewAuthFailedError("invalid credential")
	default:
		return NewInternalServerError(err)
	}
}

func createTokenCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
