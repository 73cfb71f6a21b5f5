package handler

import "blog-account-server/internal/domain"

// UserView 对外的用户形态；不含密码哈希
type UserView struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	RegisterTime int64  `json:"registerTime"`
	UpdateTime   int64  `json:"updateTime"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Enabled      bool   `json:"enabled"`
	Locked       bool   `json:"locked"`
	Canceled     bool   `json:"canceled"`
	State        string `json:"state"`
}

func ToView(u domain.User) UserView {
	return UserView{
		ID:           u.ID,
		Username:     u.Username,
		Role:         string(u.Role),
		RegisterTime: u.RegisterTime,
		UpdateTime:   u.UpdateTime,
		Email:        u.Email,
		Phone:        u.Phone,
		Enabled:      u.Enabled,
		Locked:       u.Locked,
		Canceled:     u.Canceled,
		State:        u.State().String(),
	}
}

func toViews(us []domain.User) []UserView {
	out := make([]UserView, 0, len(us))
	for _, u := range us {
		out = append(out, ToView(u))
	}
	return out
}
