package handler

import (
	"strings"
	"time"

	"github.com/kupapos/kupa/internal/model"
	"github.com/kupapos/kupa/internal/service"
)

// userDTO is the public projection of a user.  The password hash and the
// active flag never leave the server.
type userDTO struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	BusinessID string    `json:"businessId"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toUserDTO(u model.User) userDTO {
	return userDTO{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       string(u.Role),
		BusinessID: u.BusinessID,
		CreatedAt:  u.CreatedAt,
	}
}

// principalDTO is what the session probe reports about the caller.
type principalDTO struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	BusinessID string `json:"businessId"`
}

func toPrincipalDTO(p model.Principal) principalDTO {
	return principalDTO{ID: p.ID, Role: string(p.Role), BusinessID: p.BusinessID}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerReq struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	BusinessName string `json:"businessName"`
	Role         string `json:"role"`
}

func (r registerReq) registration() service.Registration {
	return service.Registration{
		Email:        r.Email,
		Password:     r.Password,
		Name:         r.Name,
		BusinessName: r.BusinessName,
		Role:         model.Role(strings.ToUpper(strings.TrimSpace(r.Role))),
	}
}
