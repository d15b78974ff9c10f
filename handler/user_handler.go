package handler

import (
	"context"
	"errors"
	"net/http"

	"go-token-auth/common"
	"go-token-auth/logger"
	"go-token-auth/model"
	"go-token-auth/repository"

	"github.com/sirupsen/logrus"
)

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, req model.RegisterRequest) (*model.UserIdentity, error)
}

type UserHandler struct {
	users Registrar
}

func NewUserHandler(users Registrar) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.RegisterRequest
	if !common.ValidateAndDecode(w, r, &req) {
		return nil
	}

	log := logger.Log.WithFields(logrus.Fields{"username": req.Username})
	log.Info("Register request received")

	identity, err := h.users.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return common.NewAppError(http.StatusConflict, "Username or email already taken", nil)
		}
		return common.NewAppError(http.StatusInternalServerError, "Error creating user", err)
	}

	writeJSON(w, http.StatusCreated, identity)
	return nil
}
