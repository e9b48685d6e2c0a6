package services

import (
	"github.com/ghdlabs/ghd-market-maker/domain"
)

type usersStorage interface {
	NewUser(user *domain.User)
	GetUsers() []domain.User
	FindUser(user *domain.User) (domain.User, bool)
}

// UsersService tracks the chats subscribed to engine notifications.
type UsersService struct {
	storage usersStorage
}

func NewUsersService(storage usersStorage) *UsersService {
	return &UsersService{storage: storage}
}

// Subscribe stores the user; subscribing twice is a no-op.
func (usersService *UsersService) Subscribe(user *domain.User) {
	if _, ok := usersService.storage.FindUser(user); !ok {
		usersService.storage.NewUser(user)
	}
}

func (usersService *UsersService) Subscribers() []domain.User {
	return usersService.storage.GetUsers()
}
