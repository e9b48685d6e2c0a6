package services_test

import (
	"testing"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"github.com/ghdlabs/ghd-market-maker/services"
	"github.com/stretchr/testify/assert"
)

type testUsersStorage struct {
	users []domain.User
}

func (testUsersStorage *testUsersStorage) NewUser(user *domain.User) {
	testUsersStorage.users = append(testUsersStorage.users, *user)
}

func (testUsersStorage *testUsersStorage) GetUsers() []domain.User {
	return testUsersStorage.users
}

func (testUsersStorage *testUsersStorage) FindUser(findUser *domain.User) (domain.User, bool) {
	for _, user := range testUsersStorage.users {
		if user.ChatID == findUser.ChatID {
			return user, true
		}
	}
	return domain.User{}, false
}

func TestSubscribeIsIdempotent(t *testing.T) {
	storage := testUsersStorage{}
	usersService := services.NewUsersService(&storage)

	assert.Equal(t, []domain.User(nil), usersService.Subscribers())

	user1 := domain.User{ChatID: 1}
	usersService.Subscribe(&user1)
	assert.Equal(t, []domain.User{user1}, usersService.Subscribers())

	usersService.Subscribe(&user1)
	usersService.Subscribe(&user1)
	assert.Equal(t, []domain.User{user1}, usersService.Subscribers())

	user2 := domain.User{ChatID: 2}
	usersService.Subscribe(&user2)
	assert.Equal(t, []domain.User{user1, user2}, usersService.Subscribers())
}
